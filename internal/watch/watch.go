// Package watch re-runs incremental exports when the input tree changes or a
// schedule fires. Every run is an ordinary export: it either completes or
// leaves no output behind.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pressroom/internal/events"
	"git.home.luguber.info/inful/pressroom/internal/export"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Trigger names what requested a run.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerChange   Trigger = "change"
	TriggerSchedule Trigger = "schedule"
)

// Request asks the watcher for one export run.
type Request struct {
	Trigger Trigger
	// Path is the last changed file for change triggers.
	Path string
	At   time.Time
}

// Runner runs one export. *export.Exporter implements it.
type Runner interface {
	Run(ctx context.Context, inputDir, outputDir string, opts export.RunOptions) (export.Result, error)
}

// Options configures a Watcher.
type Options struct {
	Input  string
	Output string
	Run    export.RunOptions
	// Debounce delays change-triggered runs until the tree has been quiet
	// this long. Zero runs on every event.
	Debounce time.Duration
	// Every schedules an additional run at a fixed interval. Zero disables it.
	Every time.Duration
	// MetricsAddr, when set, serves Metrics at /metrics on that address.
	MetricsAddr string
	Metrics     http.Handler
	Logger      *slog.Logger
	// Bus carries run requests. A private bus is created when nil.
	Bus *events.Bus
}

// Watcher drives repeated exports of one input tree.
type Watcher struct {
	runner Runner
	opts   Options
	in     string
	out    string
	logger *slog.Logger
	bus    *events.Bus
	ownBus bool

	mu    sync.Mutex
	timer *time.Timer
}

// New validates the directories and returns a Watcher. Nothing is watched
// until Run is called.
func New(runner Runner, opts Options) (*Watcher, error) {
	if runner == nil {
		return nil, ferrors.ValidationError("watch requires an exporter").Build()
	}
	in, err := filepath.Abs(opts.Input)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid input directory").Build()
	}
	if st, statErr := os.Stat(in); statErr != nil || !st.IsDir() {
		return nil, ferrors.FileSystemError("input directory not found").
			WithContext("input", in).
			Build()
	}
	out, err := filepath.Abs(opts.Output)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid output directory").Build()
	}
	if opts.Debounce < 0 || opts.Every < 0 {
		return nil, ferrors.ValidationError("watch intervals must not be negative").Build()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{runner: runner, opts: opts, in: in, out: out, logger: logger, bus: opts.Bus}
	if w.bus == nil {
		w.bus = events.NewBus()
		w.ownBus = true
	}
	return w, nil
}

// Run performs an initial export and then keeps the output up to date until
// ctx is cancelled. Cancelling ctx aborts a run in progress.
func (w *Watcher) Run(ctx context.Context) error {
	// A single buffered slot coalesces requests that arrive while a run is in
	// progress into one follow-up run.
	requests, unsubscribe := events.Subscribe[Request](w.bus, 1)
	defer unsubscribe()
	if w.ownBus {
		defer w.bus.Close()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create file watcher").Build()
	}
	defer func() { _ = fsw.Close() }()
	w.addDirsRecursive(fsw, w.in)

	if w.opts.Every > 0 {
		sched, err := w.startScheduler(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				w.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if w.opts.MetricsAddr != "" {
		srv, err := w.serveMetrics()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				w.logger.Warn("Metrics server shutdown failed", logfields.Error(err))
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx, requests)
	}()

	w.request(ctx, Request{Trigger: TriggerStartup})
	w.logger.Info("Watching for changes", logfields.Input(w.in), logfields.Output(w.out))

	err = w.loop(ctx, fsw)
	w.stopTimer()
	wg.Wait()
	w.logger.Info("Watch stopped")
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleFileEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) worker(ctx context.Context, requests <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			w.process(ctx, req)
		}
	}
}

func (w *Watcher) process(ctx context.Context, req Request) {
	attrs := []any{slog.String("trigger", string(req.Trigger))}
	if req.Path != "" {
		attrs = append(attrs, logfields.Path(req.Path))
	}
	w.logger.Info("Running export", attrs...)

	if _, err := w.runner.Run(ctx, w.in, w.out, w.opts.Run); err != nil {
		if ctx.Err() != nil {
			w.logger.Info("Export aborted by shutdown")
			return
		}
		w.logger.Warn("Export failed", append(attrs, logfields.Error(err))...)
	}
}

// request publishes req without blocking. A request is dropped when one is
// already queued.
func (w *Watcher) request(ctx context.Context, req Request) {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	dropped, err := w.bus.TryPublish(ctx, req)
	if err != nil {
		w.logger.Debug("Run request not delivered", logfields.Error(err))
		return
	}
	if dropped > 0 {
		w.logger.Debug("Run already queued", slog.String("trigger", string(req.Trigger)))
	}
}

// trigger debounces change requests.
func (w *Watcher) trigger(ctx context.Context, path string) {
	if w.opts.Debounce <= 0 {
		w.request(ctx, Request{Trigger: TriggerChange, Path: path})
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.request(ctx, Request{Trigger: TriggerChange, Path: path})
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) handleFileEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if w.shouldIgnore(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addDirsRecursive(fsw, ev.Name)
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.trigger(ctx, ev.Name)
}

func (w *Watcher) addDirsRecursive(fsw *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.in && (w.isOutput(path) || d.Name() == ".git") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

func (w *Watcher) isOutput(path string) bool {
	return path == w.out || strings.HasPrefix(path, w.out+string(filepath.Separator))
}

// shouldIgnore reports events that cannot change the export: anything under
// the output directory, editor swap files and hidden files other than
// .gitignore.
func (w *Watcher) shouldIgnore(path string) bool {
	if w.isOutput(path) {
		return true
	}
	return shouldIgnoreName(filepath.Base(path))
}

func shouldIgnoreName(base string) bool {
	if base == ".gitignore" {
		return false
	}
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}

func (w *Watcher) startScheduler(ctx context.Context) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.opts.Every),
		gocron.NewTask(w.scheduled, ctx),
		gocron.WithName("scheduled-export"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to schedule export").
			WithContext("every", w.opts.Every.String()).
			Build()
	}
	s.Start()
	w.logger.Info("Scheduled export", slog.Duration("every", w.opts.Every))
	return s, nil
}

// scheduled is called by gocron.
func (w *Watcher) scheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.request(ctx, Request{Trigger: TriggerSchedule})
}

func (w *Watcher) serveMetrics() (*http.Server, error) {
	handler := w.opts.Metrics
	if handler == nil {
		return nil, ferrors.ConfigError("metrics address set without a metrics handler").Build()
	}
	ln, err := net.Listen("tcp", w.opts.MetricsAddr)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("failed to listen on %s", w.opts.MetricsAddr)).Build()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	w.logger.Info("Serving metrics", slog.String("addr", srv.Addr))
	return srv, nil
}
