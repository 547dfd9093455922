package compiler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/pressroom/internal/transform"
)

// Dispatcher renders files through their routed compiler and normalizes the
// result: the extension is always set, and stylesheets are autoprefixed when
// targets are requested.
type Dispatcher struct {
	registry *Registry
	prefixer transform.Autoprefixer
}

// NewDispatcher returns a Dispatcher over reg. A nil prefixer disables
// autoprefixing regardless of options.
func NewDispatcher(reg *Registry, prefixer transform.Autoprefixer) *Dispatcher {
	return &Dispatcher{registry: reg, prefixer: prefixer}
}

// Registry returns the registry the dispatcher routes through.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Route resolves the handling for a source extension.
func (d *Dispatcher) Route(ext string) Route { return d.registry.Route(ext) }

// Render compiles sourcePath with c. Errors are always *Error.
func (d *Dispatcher) Render(ctx context.Context, c Compiler, sourcePath string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := c.Descriptor()
	if opts.Filename == "" {
		opts.Filename = sourcePath
	}
	res, err := c.Render(ctx, sourcePath, opts)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			if cerr.Compiler == "" {
				cerr.Compiler = desc.Name
			}
			if cerr.File == "" {
				cerr.File = sourcePath
			}
			return nil, cerr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Compiler: desc.Name, File: sourcePath, Err: err}
	}
	if res == nil {
		return nil, &Error{Compiler: desc.Name, File: sourcePath, Message: "compiler returned no result"}
	}

	out := *res
	out.Extension = NormalizeExt(out.Extension)
	target := NormalizeExt(desc.Target)
	if out.Extension != "" && target != "" && out.Extension != target {
		return nil, &Error{
			Compiler: desc.Name,
			File:     sourcePath,
			Message:  fmt.Sprintf("compiler declares target %s but returned %s", target, out.Extension),
		}
	}
	if out.Extension == "" {
		out.Extension = target
	}
	if out.Extension == "" {
		out.Extension = NormalizeExt(filepath.Ext(sourcePath))
	}

	if out.Extension == ".css" && len(opts.Autoprefix) > 0 && d.prefixer != nil {
		prefixed, err := d.prefixer.Prefix(out.Content, opts.Autoprefix)
		if err != nil {
			return nil, &Error{Compiler: desc.Name, File: sourcePath, Message: fmt.Sprintf("autoprefix: %v", err), Err: err}
		}
		out.Content = prefixed
	}
	return &out, nil
}
