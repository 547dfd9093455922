package export

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/digest"
	"git.home.luguber.info/inful/pressroom/internal/events"
	"git.home.luguber.info/inful/pressroom/internal/ledger"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/sourcemap"
)

// compile renders ent, writes the artifact and its map, and builds the
// ledger record. Minify-only files take the same path with the passthrough
// compiler.
func (r *run) compile(ctx context.Context, ent entry, dec decision) (outcome, error) {
	// digest before rendering: an edit racing the compile invalidates the record
	srcSHA, err := r.digests.File(ent.abs)
	if err != nil {
		return outcome{}, err
	}

	name := dec.compiler.Descriptor().Name
	if name == "" {
		name = string(metrics.ActionMinified)
	}
	r.emit(ctx, events.CompileStarted, ent.rel, map[string]string{events.DetailCompiler: name})

	started := time.Now()
	res, err := r.dispatcher.Render(ctx, dec.compiler, ent.abs, compiler.Options{
		SourceMap:  r.opts.SourceMaps,
		Minify:     r.opts.Minify,
		Autoprefix: r.opts.Autoprefix,
		Filename:   ent.abs,
	})
	if err != nil {
		return outcome{}, err
	}
	r.e.recorder.ObserveCompileDuration(name, time.Since(started))

	outRel := ent.rel
	if res.Extension != strings.ToLower(path.Ext(ent.rel)) {
		outRel = strings.TrimSuffix(ent.rel, path.Ext(ent.rel)) + res.Extension
	}
	outAbs := r.outPath(outRel)
	content := res.Content

	var mapRel string
	var mapData []byte
	if r.opts.SourceMaps && res.SourceMap != nil {
		mapRel = outRel + ".map"
		m := res.SourceMap.Rewrite(sourcemap.Placement{
			SourcePath:     ent.abs,
			InputDir:       r.in,
			OutputDir:      r.out,
			OutputPath:     outAbs,
			SourceCopyPath: r.outPath(sourceCompanion(ent.rel)),
		})
		if mapData, err = m.Marshal(); err != nil {
			return outcome{}, err
		}
		content = sourcemap.AppendURL(content, res.Extension, path.Base(mapRel))
	}

	if r.opts.Minify && r.e.minifier != nil && r.e.minifier.CanMinify(res.Extension) {
		if content, err = r.e.minifier.Minify(res.Extension, content); err != nil {
			return outcome{}, &compiler.Error{Compiler: name, File: ent.abs, Message: "minify: " + err.Error(), Err: err}
		}
	}

	if err := writeFile(outAbs, []byte(content)); err != nil {
		return outcome{}, err
	}
	var outputs []string
	if mapRel != "" {
		if err := writeFile(r.outPath(mapRel), mapData); err != nil {
			return outcome{}, err
		}
		outputs = append(outputs, mapRel)
	}
	outputs = append(outputs, outRel)

	rec := &ledger.Record{
		Input:     ent.rel,
		InputSHA:  append([]ledger.InputDigest{{File: ent.rel, SHA: srcSHA}}, r.dependencyDigests(ctx, ent, res)...),
		OutputSHA: digest.String(content),
		Type:      dec.identity,
		Output:    outputs,
	}

	whitelist := append([]string(nil), outputs...)
	if r.opts.SourceMaps {
		src, err := r.copySourceCompanion(ent)
		if err != nil {
			return outcome{}, err
		}
		whitelist = append(whitelist, src)
	}

	detail := map[string]string{
		events.DetailCompiler: name,
		events.DetailIdentity: dec.identity,
		events.DetailOutput:   outRel,
	}
	if dec.handling == handleMinify {
		detail[events.DetailAction] = string(metrics.ActionMinified)
	}
	r.emit(ctx, events.CompileFinished, ent.rel, detail)
	return outcome{rel: ent.rel, handling: dec.handling, record: rec, outputs: whitelist}, nil
}

// dependencyDigests digests every file the artifact was built from besides
// the source itself: source map sources and compiler-reported dependencies.
// A dependency that cannot be read is recorded with an empty digest so the
// record never validates.
func (r *run) dependencyDigests(ctx context.Context, ent entry, res *compiler.Result) []ledger.InputDigest {
	seen := map[string]struct{}{filepath.Clean(ent.abs): {}}
	var deps []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		deps = append(deps, p)
	}
	for _, p := range res.SourceMap.ResolveSources(ent.abs) {
		add(p)
	}
	for _, d := range res.Dependencies {
		p := filepath.FromSlash(d)
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(ent.abs), p)
		}
		add(p)
	}
	sort.Strings(deps)

	out := make([]ledger.InputDigest, 0, len(deps))
	for _, p := range deps {
		rel, err := filepath.Rel(r.in, p)
		if err != nil || filepath.IsAbs(rel) {
			r.e.logger.WarnContext(ctx, "Dependency not addressable from the input root, ignoring",
				logfields.Input(ent.rel), logfields.Path(p))
			continue
		}
		rel = normalizeRel(rel)
		if rel == ent.rel {
			continue
		}
		sum, err := r.digests.File(p)
		if err != nil {
			r.e.logger.WarnContext(ctx, "Dependency unreadable, output will be rebuilt next run",
				logfields.Input(ent.rel), logfields.Path(rel), logfields.Error(err))
		}
		out = append(out, ledger.InputDigest{File: rel, SHA: sum})
	}
	return out
}
