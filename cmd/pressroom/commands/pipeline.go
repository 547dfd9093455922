package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/events"
	"git.home.luguber.info/inful/pressroom/internal/eventstore"
	"git.home.luguber.info/inful/pressroom/internal/eventstore/natsink"
	"git.home.luguber.info/inful/pressroom/internal/export"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
)

// pipeline is an Exporter together with the sinks it owns.
type pipeline struct {
	exporter *export.Exporter
	closers  []func() error
}

// Close releases the history database and the NATS connection.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			slog.Warn("Failed to close event sink", logfields.Error(err))
		}
	}
}

// newPipeline builds the compiler registry and an Exporter wired to the
// sinks cfg enables. A sink that cannot be opened is logged and skipped;
// sinks never decide whether a run succeeds.
func newPipeline(ctx context.Context, cfg *config.Config, rec metrics.Recorder) (*pipeline, error) {
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	p := &pipeline{}
	logger := slog.Default()
	sinks := []events.Sink{events.LogSink{Logger: logger}, events.MetricsSink{Recorder: rec}}

	if path := cfg.Events.HistoryDB; path != "" {
		store, err := openHistory(path)
		if err != nil {
			slog.Warn("Run history disabled", logfields.Path(path), logfields.Error(err))
		} else {
			sinks = append(sinks, eventstore.NewSink(store, events.DirEntered))
			p.closers = append(p.closers, store.Close)
		}
	}

	if url := cfg.Events.NATSURL; url != "" {
		var conn *natsink.Conn
		err := cfg.Events.NATSRetry.Policy().Do(ctx, func(attempt int) error {
			if attempt > 0 {
				slog.Info("Retrying NATS connection", slog.Int("attempt", attempt))
			}
			var err error
			conn, err = natsink.Connect(url, cfg.Events.NATSSubject)
			return err
		})
		if err != nil {
			slog.Warn("NATS event sink disabled", logfields.Error(err))
		} else {
			sinks = append(sinks, conn)
			p.closers = append(p.closers, conn.Close)
		}
	}

	p.exporter = export.New(reg,
		export.WithLogger(logger),
		export.WithRecorder(rec),
		export.WithSinks(sinks...),
	)
	return p, nil
}

func openHistory(path string) (*eventstore.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create history directory").Build()
	}
	return eventstore.NewSQLiteStore(path)
}
