// Package events carries export progress notifications. Events are purely
// observational: sinks receive them, but nothing a sink does can change the
// outcome of a run.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
)

// Type names a lifecycle notification.
type Type string

const (
	RunStarted      Type = "run.started"
	DirEntered      Type = "dir.entered"
	CompileStarted  Type = "compile.started"
	CompileFinished Type = "compile.finished"
	CompileReused   Type = "compile.reused"
	FileCopied      Type = "file.copied"
	FileRemoved     Type = "file.removed"
	RunFinished     Type = "run.finished"
	RunFailed       Type = "run.failed"
)

// Event is one progress notification. Path is relative to the input root for
// per-file events and to the output root for removals.
type Event struct {
	RunID  string            `json:"run_id"`
	Type   Type              `json:"type"`
	Path   string            `json:"path,omitempty"`
	Time   time.Time         `json:"time"`
	Detail map[string]string `json:"detail,omitempty"`
}

// Sink receives events. Errors are reported, never propagated into the run.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Emitter fans events out to sinks. It is safe for concurrent use and
// serializes delivery so sinks observe events in emission order.
type Emitter struct {
	mu     sync.Mutex
	sinks  []Sink
	logger *slog.Logger
}

// NewEmitter returns an Emitter; a nil logger means slog.Default.
func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sinks: sinks, logger: logger}
}

// Add registers another sink.
func (em *Emitter) Add(s Sink) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.sinks = append(em.sinks, s)
}

// Emit stamps e and delivers it to every sink.
func (em *Emitter) Emit(ctx context.Context, e Event) {
	if em == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	for _, s := range em.sinks {
		if err := s.Emit(context.WithoutCancel(ctx), e); err != nil {
			em.logger.Warn("Event sink failed", slog.String("event", string(e.Type)), logfields.Error(err))
		}
	}
}

// LogSink writes events to a slog logger: run boundaries at info, per-file
// events at debug.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelDebug
	switch e.Type {
	case RunStarted, RunFinished:
		level = slog.LevelInfo
	case RunFailed:
		level = slog.LevelError
	}
	attrs := []slog.Attr{logfields.RunID(e.RunID)}
	if e.Path != "" {
		attrs = append(attrs, logfields.Path(e.Path))
	}
	for k, v := range e.Detail {
		attrs = append(attrs, slog.String(k, v))
	}
	l.LogAttrs(ctx, level, string(e.Type), attrs...)
	return nil
}

// BusSink republishes events on a Bus without blocking the run. Events a
// full subscriber cannot take are dropped.
type BusSink struct {
	Bus *Bus
}

func (s BusSink) Emit(ctx context.Context, e Event) error {
	_, err := s.Bus.TryPublish(ctx, e)
	return err
}

// MetricsSink counts per-file actions.
type MetricsSink struct {
	Recorder metrics.Recorder
}

func (s MetricsSink) Emit(_ context.Context, e Event) error {
	switch e.Type {
	case CompileFinished:
		if e.Detail[DetailAction] == string(metrics.ActionMinified) {
			s.Recorder.IncFileAction(metrics.ActionMinified)
		} else {
			s.Recorder.IncFileAction(metrics.ActionCompiled)
		}
	case CompileReused:
		s.Recorder.IncFileAction(metrics.ActionReused)
	case FileCopied:
		s.Recorder.IncFileAction(metrics.ActionCopied)
	case FileRemoved:
		s.Recorder.IncFileAction(metrics.ActionRemoved)
	}
	return nil
}

// Detail keys used by the exporter.
const (
	DetailAction   = "action"
	DetailCompiler = "compiler"
	DetailIdentity = "identity"
	DetailOutput   = "output"
	DetailError    = "error"
	DetailFiles    = "files"
	DetailInput    = "input_dir"
	DetailOutDir   = "output_dir"
	DetailOutcome  = "outcome"
	// DetailDuration is the run duration in milliseconds.
	DetailDuration = "duration_ms"
)
