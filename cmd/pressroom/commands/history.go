package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/eventstore"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int           `short:"n" default:"20" help:"Number of runs to list"`
	RunID string        `name:"run" help:"Show the recorded events of one run"`
	Prune time.Duration `help:"Delete runs older than this before listing"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Events.HistoryDB
	if path == "" {
		return ferrors.ConfigError("run history is disabled; set events.history_db").Build()
	}
	if _, err := os.Stat(path); err != nil {
		return ferrors.FileSystemError("no run history recorded yet").WithContext("path", path).Build()
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if h.Prune > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-h.Prune))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Pruned %d events\n", n)
	}
	if h.RunID != "" {
		return printRunEvents(ctx, g.out(), store, h.RunID)
	}
	return printHistory(ctx, g.out(), store, h.Limit)
}

func printHistory(ctx context.Context, w io.Writer, store eventstore.Store, limit int) error {
	proj := eventstore.NewRunHistoryProjection(store, limit)
	if err := proj.Rebuild(ctx); err != nil {
		return err
	}
	runs := proj.GetHistory()
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tDURATION\tFILES\tCOMPILED\tREUSED\tCOPIED\tREMOVED")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Duration.Round(time.Millisecond),
			r.Files, r.Compiled, r.Reused, r.Copied, r.Removed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range runs {
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", r.RunID, r.Error)
		}
	}
	return nil
}

func printRunEvents(ctx context.Context, w io.Writer, store eventstore.Store, runID string) error {
	evs, err := store.GetByRunID(ctx, runID)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return ferrors.NewError(ferrors.CategoryNotFound, "run not found").WithContext("run_id", runID).Build()
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tPATH\tDETAIL")
	for _, e := range evs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp().Local().Format("15:04:05.000"), e.Type(), eventstore.EventPath(e), formatDetail(e.Metadata()))
	}
	return tw.Flush()
}

func formatDetail(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}
