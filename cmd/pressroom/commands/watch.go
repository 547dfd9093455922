package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Input string `arg:"" optional:"" help:"Input directory (overrides the configuration)" type:"path"`

	RunFlags `embed:""`

	Debounce    time.Duration `help:"Quiet period before a change triggers a run"`
	Every       time.Duration `help:"Also re-export on this interval"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	w.apply(cfg, w.Input)
	if w.Debounce > 0 {
		cfg.Watch.Debounce = w.Debounce
	}
	if w.Every > 0 {
		cfg.Watch.Every = w.Every
	}
	if w.MetricsAddr != "" {
		cfg.Watch.MetricsAddr = w.MetricsAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunWatch(ctx, cfg)
}

// RunWatch keeps cfg.Output in sync with cfg.Input until ctx is cancelled.
func RunWatch(ctx context.Context, cfg *config.Config) error {
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	p, err := newPipeline(ctx, cfg, rec)
	if err != nil {
		return err
	}
	defer p.Close()

	w, err := watch.New(p.exporter, watch.Options{
		Input:       cfg.Input,
		Output:      cfg.Output,
		Run:         cfg.RunOptions(),
		Debounce:    cfg.Watch.Debounce,
		Every:       cfg.Watch.Every,
		MetricsAddr: cfg.Watch.MetricsAddr,
		Metrics:     metrics.HTTPHandler(reg),
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
