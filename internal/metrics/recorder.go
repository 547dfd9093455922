package metrics

import "time"

// RunOutcome is the final status of an export run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomeFailed  RunOutcome = "failed"
	OutcomeAborted RunOutcome = "aborted"
)

// FileAction is what a run did with one file.
type FileAction string

const (
	ActionCompiled FileAction = "compiled"
	ActionReused   FileAction = "reused"
	ActionCopied   FileAction = "copied"
	ActionMinified FileAction = "minified"
	ActionRemoved  FileAction = "removed"
)

// Recorder receives export metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome RunOutcome)
	IncFileAction(action FileAction)
	ObserveCompileDuration(compiler string, d time.Duration)
	SetReusableRecords(n int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)             {}
func (NoopRecorder) IncRunOutcome(RunOutcome)                     {}
func (NoopRecorder) IncFileAction(FileAction)                     {}
func (NoopRecorder) ObserveCompileDuration(string, time.Duration) {}
func (NoopRecorder) SetReusableRecords(int)                       {}
