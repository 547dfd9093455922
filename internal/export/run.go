package export

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/digest"
	"git.home.luguber.info/inful/pressroom/internal/events"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/ledger"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/observability"
)

// run holds the state of one export. Fields are read-only once the walk starts.
type run struct {
	e          *Exporter
	id         string
	in, out    string
	opts       RunOptions
	dispatcher *compiler.Dispatcher
	plan       *planner
	digests    *digest.Cache
	reuse      ledger.Reusable
}

// entry is one source file found by the walk.
type entry struct {
	rel string
	abs string
}

// outcome is what processing one entry contributes to the run.
type outcome struct {
	rel      string
	handling handling
	reused   bool
	record   *ledger.Record
	// outputs are output-relative paths written or kept for this entry.
	outputs []string
}

// accumulator folds outcomes into the new ledger and the output whitelist.
// Only the collector goroutine touches it.
type accumulator struct {
	records   ledger.Ledger
	whitelist map[string]string
	res       Result
}

func newAccumulator() *accumulator {
	return &accumulator{whitelist: map[string]string{}}
}

func (a *accumulator) add(o outcome) error {
	for _, p := range o.outputs {
		if prev, ok := a.whitelist[p]; ok && prev != o.rel {
			return collision(p, prev, o.rel)
		}
		a.whitelist[p] = o.rel
	}
	if o.record != nil {
		a.records = append(a.records, *o.record)
	}
	a.res.Files++
	switch {
	case o.reused:
		a.res.Reused++
	case o.handling == handleCompile:
		a.res.Compiled++
	case o.handling == handleMinify:
		a.res.Minified++
	default:
		a.res.Copied++
	}
	return nil
}

// collision reports two sources claiming output p, naming the ".src" copy
// when that is what collides.
func collision(p, first, second string) error {
	msg := "two sources produce the same output"
	for _, pair := range [][2]string{{first, second}, {second, first}} {
		if sourceCompanion(pair[0]) == p {
			msg = fmt.Sprintf("source copy of %s collides with the output of %s", pair[0], pair[1])
			break
		}
	}
	return ferrors.ValidationError(msg).
		WithContext("output", p).
		WithContext("sources", first+", "+second).
		Build()
}

func (r *run) emit(ctx context.Context, t events.Type, rel string, detail map[string]string) {
	r.e.emitter.Emit(ctx, events.Event{RunID: r.id, Type: t, Path: rel, Detail: detail})
}

func (r *run) execute(ctx context.Context) (Result, error) {
	r.digests = digest.NewCache(r.e.digestSize)

	prior, ok := r.e.store.Load(r.out)
	if ok {
		v := ledger.NewValidator(r.plan.identityOf, ledger.WithDigestCache(r.digests), ledger.WithLogger(r.e.logger))
		reuse, err := v.Filter(observability.WithPhase(ctx, "validate"), prior, r.in, r.out)
		if err != nil {
			return Result{}, err
		}
		r.reuse = reuse
		r.e.logger.DebugContext(ctx, "Ledger validated", slog.Int("records", len(prior)), slog.Int("reusable", reuse.Len()))
	}
	r.e.recorder.SetReusableRecords(r.reuse.Len())

	acc, err := r.walk(observability.WithPhase(ctx, "walk"))
	if err != nil {
		return Result{}, err
	}

	removed, err := r.reconcile(observability.WithPhase(ctx, "reconcile"), acc.whitelist)
	if err != nil {
		return Result{}, err
	}
	acc.res.Removed = removed

	acc.records.Sort()
	if err := r.e.store.Persist(r.out, acc.records); err != nil {
		return Result{}, ferrors.WrapError(err, ferrors.CategoryLedger, "failed to persist ledger").Build()
	}
	return acc.res, nil
}

// walk streams the input tree into a bounded worker group and folds the
// outcomes. It returns once every started file is done.
func (r *run) walk(ctx context.Context) (*accumulator, error) {
	if err := os.MkdirAll(r.out, 0o755); err != nil {
		return nil, err
	}

	workers := r.opts.workers()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan outcome, workers)
	acc := newAccumulator()
	var foldErr error
	folded := make(chan struct{})
	go func() {
		defer close(folded)
		for o := range results {
			if foldErr == nil {
				foldErr = acc.add(o)
			}
		}
	}()

	walkErr := filepath.WalkDir(r.in, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if p == r.in {
			return nil
		}
		rel, err := filepath.Rel(r.in, p)
		if err != nil {
			return err
		}
		rel = normalizeRel(rel)

		if d.IsDir() {
			if p == r.out || r.plan.matcher.excluded(rel, true) {
				return filepath.SkipDir
			}
			r.emit(gctx, events.DirEntered, rel, nil)
			return nil
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			st, err := os.Stat(p)
			if err != nil {
				return err
			}
			if st.IsDir() {
				r.e.logger.DebugContext(gctx, "Skipping symlinked directory", logfields.Path(rel))
				return nil
			}
		case !d.Type().IsRegular():
			return nil
		}

		dec := r.plan.decide(rel)
		if dec.handling == handleSkip {
			r.e.logger.DebugContext(gctx, "Excluded", logfields.Path(rel))
			return nil
		}
		ent := entry{rel: rel, abs: p}
		g.Go(func() error {
			// no new file starts once the run is cancelled
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := r.process(gctx, ent, dec)
			if err != nil {
				return err
			}
			results <- o
			return nil
		})
		return nil
	})

	groupErr := g.Wait()
	close(results)
	<-folded

	switch {
	case groupErr != nil:
		return nil, groupErr
	case walkErr != nil:
		return nil, walkErr
	case foldErr != nil:
		return nil, foldErr
	}
	return acc, nil
}

func (r *run) process(ctx context.Context, ent entry, dec decision) (outcome, error) {
	if dec.handling == handleCopy {
		return r.copyThrough(ctx, ent)
	}
	if rec, ok := r.reuse.Lookup(ent.rel); ok && rec.Type == dec.identity {
		return r.reused(ctx, ent, dec, rec)
	}
	return r.compile(ctx, ent, dec)
}

func (r *run) copyThrough(ctx context.Context, ent entry) (outcome, error) {
	if err := copyFile(ent.abs, r.outPath(ent.rel)); err != nil {
		return outcome{}, err
	}
	r.emit(ctx, events.FileCopied, ent.rel, nil)
	return outcome{rel: ent.rel, handling: handleCopy, outputs: []string{ent.rel}}, nil
}

func (r *run) reused(ctx context.Context, ent entry, dec decision, rec ledger.Record) (outcome, error) {
	outputs := append([]string(nil), rec.Output...)
	if r.opts.SourceMaps {
		src, err := r.copySourceCompanion(ent)
		if err != nil {
			return outcome{}, err
		}
		outputs = append(outputs, src)
	}
	r.emit(ctx, events.CompileReused, ent.rel, map[string]string{
		events.DetailIdentity: rec.Type,
		events.DetailOutput:   rec.Main(),
	})
	return outcome{rel: ent.rel, handling: dec.handling, reused: true, record: &rec, outputs: outputs}, nil
}

// reconcile deletes every output file not in the whitelist, then prunes
// directories left empty. The ledger sidecar is always kept.
func (r *run) reconcile(ctx context.Context, whitelist map[string]string) (int, error) {
	removed := 0
	var dirs []string
	err := filepath.WalkDir(r.out, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != r.out {
				dirs = append(dirs, p)
			}
			return nil
		}
		rel, err := filepath.Rel(r.out, p)
		if err != nil {
			return err
		}
		rel = normalizeRel(rel)
		if rel == ledger.FileName {
			return nil
		}
		if _, ok := whitelist[rel]; ok {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove stale output: %w", err)
		}
		removed++
		r.emit(ctx, events.FileRemoved, rel, nil)
		return nil
	})
	if err != nil {
		return removed, err
	}

	// deepest first so parents empty out before they are checked
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(d); err != nil {
			return removed, fmt.Errorf("remove empty directory: %w", err)
		}
	}
	return removed, nil
}
