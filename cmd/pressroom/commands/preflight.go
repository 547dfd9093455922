package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/preflight"
)

// PreflightCmd implements the 'preflight' command.
type PreflightCmd struct {
	Input  string `arg:"" optional:"" help:"Input directory (overrides the configuration)" type:"path"`
	Output string `short:"o" help:"Output directory (overrides the configuration)"`
	JSON   bool   `name:"json" help:"Print the report as JSON"`
}

func (p *PreflightCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	RunFlags{Output: p.Output}.apply(cfg, p.Input)

	report, err := preflight.Inspect(cfg.Input, cfg.Output)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "preflight failed").Build()
	}
	if p.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode report").Build()
		}
	} else {
		printReport(g.out(), report)
	}
	if !report.OK() {
		return ferrors.ValidationError("preflight found errors").Build()
	}
	return nil
}

func printReport(w io.Writer, r *preflight.Report) {
	_, _ = fmt.Fprintf(w, "Input:  %s (%s)\n", r.InputDir, describeDir(r.InputExists, r.InputIsDir, r.InputEmpty))
	_, _ = fmt.Fprintf(w, "Output: %s (%s)\n", r.OutputDir, describeDir(r.OutputExists, r.OutputIsDir, r.OutputEmpty))
	if r.HasLedger {
		_, _ = fmt.Fprintln(w, "Ledger: present, incremental run possible")
	}
	if r.HasGitignore {
		_, _ = fmt.Fprintln(w, "Gitignore: present")
	}
	if len(r.DependencyDirs) > 0 {
		_, _ = fmt.Fprintf(w, "Dependency folders: %s\n", strings.Join(r.DependencyDirs, ", "))
	}
	for _, i := range r.Issues {
		_, _ = fmt.Fprintf(w, "[%s] %s\n", i.Level, i.Message)
	}
	if r.OK() {
		_, _ = fmt.Fprintln(w, "OK")
	}
}

func describeDir(exists, isDir, empty bool) string {
	switch {
	case !exists:
		return "missing"
	case !isDir:
		return "not a directory"
	case empty:
		return "empty"
	default:
		return "ok"
	}
}
