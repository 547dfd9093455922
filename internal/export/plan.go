package export

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/identity"
	"git.home.luguber.info/inful/pressroom/internal/transform"
)

type handling int

const (
	handleSkip handling = iota
	handleCompile
	handleMinify
	handleCopy
)

func (h handling) String() string {
	switch h {
	case handleSkip:
		return "skip"
	case handleCompile:
		return "compile"
	case handleMinify:
		return "minify"
	default:
		return "copy"
	}
}

// decision is the handling chosen for one source path.
type decision struct {
	handling handling
	compiler compiler.Compiler
	identity string
}

func (d decision) transforms() bool {
	return d.handling == handleCompile || d.handling == handleMinify
}

// planner chooses the handling of each source path. It depends only on the
// path and the run options, so the reuse check can ask it about ledger
// records before the walk starts.
type planner struct {
	registry *compiler.Registry
	minifier transform.Minifier
	matcher  *matcher
	opts     RunOptions
}

func (p *planner) decide(rel string) decision {
	if p.matcher.excluded(rel, false) {
		return decision{handling: handleSkip}
	}
	ext := strings.ToLower(path.Ext(rel))
	blocked := p.matcher.dontCompile(rel) || strings.HasPrefix(path.Base(rel), "_")

	if route := p.registry.Route(ext); p.opts.Compile && route.Kind == compiler.RouteCompile && !blocked {
		desc := route.Descriptor()
		return decision{
			handling: handleCompile,
			compiler: route.Compiler,
			identity: identity.Resolve(desc, p.identityOptions(identity.TargetExt(desc, ext))),
		}
	}
	if p.opts.Minify && p.minifier != nil && p.minifier.CanMinify(ext) && !blocked {
		pass := compiler.Passthrough{}
		desc := pass.Descriptor()
		return decision{
			handling: handleMinify,
			compiler: pass,
			identity: identity.Resolve(&desc, p.identityOptions(ext)),
		}
	}
	return decision{handling: handleCopy}
}

func (p *planner) identityOptions(target string) identity.Options {
	return identity.Options{
		SourceMaps: p.opts.SourceMaps,
		Minify:     p.opts.Minify,
		Autoprefix: p.opts.Autoprefix,
		TargetExt:  target,
	}
}

// identityOf implements ledger.IdentityFunc.
func (p *planner) identityOf(input string) (string, bool) {
	d := p.decide(input)
	if !d.transforms() {
		return "", false
	}
	return d.identity, true
}
