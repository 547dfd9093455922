package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPath       = "path"
	KeyInput      = "input"
	KeyOutput     = "output"
	KeyCompiler   = "compiler"
	KeyIdentity   = "identity"
	KeyAction     = "action"
	KeyReason     = "reason"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Input(p string) slog.Attr         { return slog.String(KeyInput, p) }
func Output(p string) slog.Attr        { return slog.String(KeyOutput, p) }
func Compiler(name string) slog.Attr   { return slog.String(KeyCompiler, name) }
func Identity(id string) slog.Attr     { return slog.String(KeyIdentity, id) }
func Action(a string) slog.Attr        { return slog.String(KeyAction, a) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
