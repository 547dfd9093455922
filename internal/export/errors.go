package export

import (
	"errors"
)

// AbortCode is the error code of a cancelled run.
const AbortCode = "ABORT"

// ErrAborted matches every *AbortError through errors.Is.
var ErrAborted = errors.New("export aborted")

// AbortError is returned when a run is cancelled. The output directory has
// been removed by the time it is returned.
type AbortError struct {
	// Cause is the context error that stopped the run.
	Cause error
}

func (e *AbortError) Error() string { return "export aborted" }

// Code returns AbortCode.
func (e *AbortError) Code() string { return AbortCode }

func (e *AbortError) Unwrap() error { return e.Cause }

func (e *AbortError) Is(target error) bool { return target == ErrAborted }
