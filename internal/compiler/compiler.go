// Package compiler defines the boundary between the export pipeline and the
// format-specific compilers (templates, stylesheets, scripts). Every compiler
// is reduced to "render a file, return text plus an optional source map and an
// optional dependency list".
package compiler

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/sourcemap"
)

// Descriptor identifies a compiler for routing and cache discrimination.
type Descriptor struct {
	// Name is the registry id, e.g. "sass" or "markdown".
	Name string
	// Version participates in the transform identity; bump it to invalidate outputs.
	Version string
	// Extensions lists the source extensions this compiler claims (".scss").
	Extensions []string
	// Target is the default output extension (".css"). Empty keeps the source extension.
	Target string
}

// Options are the per-run settings handed to a compiler.
type Options struct {
	SourceMap  bool
	Minify     bool
	Autoprefix []string
	// Filename is the path used by compilers that resolve relative imports.
	Filename string
}

// Result is a compiled artifact as returned by a compiler.
type Result struct {
	Content   string
	Extension string
	SourceMap *sourcemap.Map
	// Dependencies lists files the output depends on, for compilers that
	// cannot express them through a source map. Relative entries are resolved
	// against the source file's directory.
	Dependencies []string
}

// Compiler renders one source file.
type Compiler interface {
	Descriptor() Descriptor
	Render(ctx context.Context, sourcePath string, opts Options) (*Result, error)
}

// Error is a compiler-reported failure, optionally pointing into a file.
type Error struct {
	Compiler string
	File     string
	Line     int
	Column   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Compiler != "" {
		b.WriteString(e.Compiler)
		b.WriteString(": ")
	}
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&b, ":%d", e.Column)
			}
		}
		b.WriteString(": ")
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	b.WriteString(msg)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NormalizeExt lower-cases ext and guarantees a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
