// Package export is the incremental export pipeline. A run walks the input
// tree, reuses, compiles or copies every file into the output tree, deletes
// outputs no longer backed by a source and persists the ledger the next run
// validates against.
//
// A run has exactly two outcomes: success with a reconciled output directory
// and a persisted ledger, or failure with the output directory removed.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/events"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/ledger"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/observability"
	"git.home.luguber.info/inful/pressroom/internal/transform"
)

// Exporter runs exports against a compiler registry. Runs on one Exporter
// are serialized.
type Exporter struct {
	registry   *compiler.Registry
	prefixer   transform.Autoprefixer
	minifier   transform.Minifier
	store      *ledger.Store
	logger     *slog.Logger
	emitter    *events.Emitter
	recorder   metrics.Recorder
	newRunID   func() string
	digestSize int

	runMu    sync.Mutex
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithSinks adds progress event sinks.
func WithSinks(sinks ...events.Sink) Option {
	return func(e *Exporter) {
		for _, s := range sinks {
			e.emitter.Add(s)
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Exporter) { e.recorder = r }
}

// WithMinifier replaces the built-in minifier.
func WithMinifier(m transform.Minifier) Option {
	return func(e *Exporter) { e.minifier = m }
}

// WithAutoprefixer replaces the built-in autoprefixer.
func WithAutoprefixer(p transform.Autoprefixer) Option {
	return func(e *Exporter) { e.prefixer = p }
}

// WithRunIDs sets the run ID generator.
func WithRunIDs(f func() string) Option {
	return func(e *Exporter) { e.newRunID = f }
}

// WithDigestCacheSize bounds the per-run digest cache.
func WithDigestCacheSize(n int) Option {
	return func(e *Exporter) { e.digestSize = n }
}

// New returns an Exporter routing files through reg.
func New(reg *compiler.Registry, opts ...Option) *Exporter {
	e := &Exporter{
		registry: reg,
		prefixer: transform.TablePrefixer{},
		minifier: transform.DefaultMinifier{},
		recorder: metrics.NoopRecorder{},
		newRunID: uuid.NewString,
		emitter:  events.NewEmitter(nil),
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.store = ledger.NewStore(e.logger)
	return e
}

// Abort cancels the run in progress, if any. The run stops starting new
// files, removes the output directory and returns an *AbortError.
func (e *Exporter) Abort() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Exporter) setCancel(c context.CancelFunc) {
	e.cancelMu.Lock()
	e.cancel = c
	e.cancelMu.Unlock()
}

// Run exports inputDir into outputDir.
func (e *Exporter) Run(ctx context.Context, inputDir, outputDir string, opts RunOptions) (Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	in, out, err := resolveDirs(inputDir, outputDir)
	if err != nil {
		return Result{}, err
	}
	for _, x := range opts.Exclusions {
		if err := x.Validate(); err != nil {
			return Result{}, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid exclusion").Build()
		}
	}
	m, err := newMatcher(in, opts.Exclusions, opts.RespectGitignore)
	if err != nil {
		return Result{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read .gitignore").Build()
	}

	runID := e.newRunID()
	ctx, cancel := context.WithCancel(observability.WithRunID(ctx, runID))
	defer cancel()
	e.setCancel(cancel)
	defer e.setCancel(nil)

	r := &run{
		e:    e,
		id:   runID,
		in:   in,
		out:  out,
		opts: opts,
		dispatcher: compiler.NewDispatcher(e.registry, e.prefixer),
		plan: &planner{registry: e.registry, minifier: e.minifier, matcher: m, opts: opts},
	}
	e.emitter.Emit(ctx, events.Event{RunID: runID, Type: events.RunStarted, Detail: map[string]string{
		events.DetailInput:  in,
		events.DetailOutDir: out,
	}})
	e.logger.InfoContext(ctx, "Export started", logfields.Input(in), logfields.Output(out))

	res, err := r.execute(ctx)
	res.Duration = time.Since(start)
	e.recorder.ObserveRunDuration(res.Duration)
	if err != nil {
		return Result{}, r.fail(ctx, err)
	}

	e.recorder.IncRunOutcome(metrics.OutcomeSuccess)
	e.emitter.Emit(ctx, events.Event{RunID: runID, Type: events.RunFinished, Detail: map[string]string{
		events.DetailOutcome:  string(metrics.OutcomeSuccess),
		events.DetailFiles:    fmt.Sprint(res.Files),
		events.DetailDuration: fmt.Sprint(res.Duration.Milliseconds()),
	}})
	e.logger.InfoContext(ctx, "Export finished",
		logfields.Count(res.Files),
		slog.Int("compiled", res.Compiled),
		slog.Int("reused", res.Reused),
		slog.Int("copied", res.Copied),
		slog.Int("minified", res.Minified),
		slog.Int("removed", res.Removed),
		logfields.Duration(res.Duration))
	return res, nil
}

// resolveDirs makes both roots absolute and refuses layouts where removing
// the output directory would destroy the input.
func resolveDirs(inputDir, outputDir string) (string, string, error) {
	in, err := filepath.Abs(inputDir)
	if err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryValidation, "invalid input directory").Build()
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryValidation, "invalid output directory").Build()
	}
	st, err := os.Stat(in)
	if err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryValidation, "input directory not found").
			WithContext("input", in).Build()
	}
	if !st.IsDir() {
		return "", "", ferrors.ValidationError("input is not a directory").WithContext("input", in).Build()
	}
	if in == out || isWithin(out, in) {
		return "", "", ferrors.ValidationError("output directory must not contain the input directory").
			WithContext("input", in).WithContext("output", out).Build()
	}
	if st, err := os.Stat(out); err == nil && !st.IsDir() {
		return "", "", ferrors.ValidationError("output is not a directory").WithContext("output", out).Build()
	}
	return in, out, nil
}

func isWithin(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fail removes the output directory and classifies err.
func (r *run) fail(ctx context.Context, err error) error {
	e := r.e
	if rmErr := os.RemoveAll(r.out); rmErr != nil {
		e.logger.ErrorContext(ctx, "Failed to remove output directory", logfields.Path(r.out), logfields.Error(rmErr))
	}

	var out error
	outcome := metrics.OutcomeFailed
	if ctx.Err() != nil {
		out = &AbortError{Cause: ctx.Err()}
		outcome = metrics.OutcomeAborted
	} else {
		out = classify(err)
	}
	e.recorder.IncRunOutcome(outcome)
	e.emitter.Emit(ctx, events.Event{RunID: r.id, Type: events.RunFailed, Detail: map[string]string{
		events.DetailOutcome: string(outcome),
		events.DetailError:   out.Error(),
	}})
	if outcome == metrics.OutcomeAborted {
		e.logger.WarnContext(ctx, "Export aborted, output removed", logfields.Output(r.out))
	} else {
		e.logger.ErrorContext(ctx, "Export failed, output removed", logfields.Output(r.out), logfields.Error(out))
	}
	return out
}

func classify(err error) error {
	if _, ok := ferrors.AsClassified(err); ok {
		return err
	}
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		b := ferrors.WrapError(err, ferrors.CategoryCompile, "compilation failed").WithContext("compiler", cerr.Compiler)
		if cerr.File != "" {
			b = b.WithContext("file", cerr.File)
		}
		if cerr.Line > 0 {
			b = b.WithContext("line", cerr.Line)
		}
		return b.Build()
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "file system error").WithContext("path", perr.Path).Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryInternal, "export failed").Build()
}
