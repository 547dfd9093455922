package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/export"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/preflight"
)

// RunFlags override run options from the configuration file. Unset pointer
// flags keep the configured value.
type RunFlags struct {
	Output     string `short:"o" help:"Output directory (overrides the configuration)"`
	Compile    *bool  `help:"Route files through their compilers"`
	Minify     *bool  `help:"Minify compiled and eligible files"`
	SourceMaps *bool  `name:"sourcemaps" help:"Write source maps next to compiled outputs"`
	Workers    int    `short:"j" help:"Concurrent workers (0 uses the configuration or one per CPU)"`
}

func (f RunFlags) apply(cfg *config.Config, input string) {
	if input != "" {
		cfg.Input = input
	}
	if f.Output != "" {
		cfg.Output = f.Output
	}
	if f.Compile != nil {
		cfg.Compile = *f.Compile
	}
	if f.Minify != nil {
		cfg.Minify = *f.Minify
	}
	if f.SourceMaps != nil {
		cfg.SourceMaps = *f.SourceMaps
	}
	if f.Workers > 0 {
		cfg.Workers = f.Workers
	}
}

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Input string `arg:"" optional:"" help:"Input directory (overrides the configuration)" type:"path"`

	RunFlags `embed:""`

	Preflight bool `help:"Inspect the directories first and refuse to run on errors"`
}

func (e *ExportCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	e.apply(cfg, e.Input)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunExport(ctx, g.out(), cfg, e.Preflight)
}

// RunExport performs one export described by cfg and prints a summary.
func RunExport(ctx context.Context, w io.Writer, cfg *config.Config, withPreflight bool) error {
	if withPreflight {
		report, err := preflight.Inspect(cfg.Input, cfg.Output)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "preflight failed").Build()
		}
		if !report.OK() {
			printReport(w, report)
			return ferrors.ValidationError("preflight found errors").
				WithContext("input", report.InputDir).
				WithContext("output", report.OutputDir).
				Build()
		}
	}

	p, err := newPipeline(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.exporter.Run(ctx, cfg.Input, cfg.Output, cfg.RunOptions())
	if err != nil {
		return err
	}
	printResult(w, res)
	return nil
}

func printResult(w io.Writer, res export.Result) {
	_, _ = fmt.Fprintf(w, "Exported %d files in %s: %d compiled, %d minified, %d reused, %d copied, %d removed\n",
		res.Files, res.Duration.Round(time.Millisecond), res.Compiled, res.Minified, res.Reused, res.Copied, res.Removed)
}
