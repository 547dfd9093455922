// Package identity derives the transform identity of a file: a string naming
// the compiler, its version and every run option that changes the produced
// bytes. Ledger records carry it so a change in configuration invalidates
// outputs built under the old one.
package identity

import (
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
)

// Options are the run options folded into an identity.
type Options struct {
	SourceMaps bool
	Minify     bool
	Autoprefix []string
	// TargetExt is the extension of the produced artifact.
	TargetExt string
}

const (
	markerSourceMap  = "sourcemap"
	markerMinify     = "minify"
	prefixAutoprefix = "autoprefix="
)

// Resolve returns the identity for a file compiled by desc under opts. A nil
// desc, or one without a name, means no compiler is involved.
func Resolve(desc *compiler.Descriptor, opts Options) string {
	parts := make([]string, 0, 4)
	if desc != nil && desc.Name != "" {
		parts = append(parts, desc.Name+"@"+desc.Version)
	} else {
		parts = append(parts, "")
	}
	if opts.SourceMaps {
		parts = append(parts, markerSourceMap)
	}
	if opts.Minify {
		parts = append(parts, markerMinify)
	}
	if len(opts.Autoprefix) > 0 && mayEmitCSS(desc, opts.TargetExt) {
		parts = append(parts, prefixAutoprefix+strings.Join(opts.Autoprefix, ","))
	}
	return strings.Join(parts, "|")
}

// mayEmitCSS reports whether the artifact can be a stylesheet. A compiler
// that does not declare its target may return any extension, and the
// dispatcher autoprefixes whatever comes back as ".css".
func mayEmitCSS(desc *compiler.Descriptor, targetExt string) bool {
	if desc != nil && desc.Name != "" && desc.Target == "" {
		return true
	}
	return compiler.NormalizeExt(targetExt) == ".css"
}

// TargetExt predicts the artifact extension for a source extension routed to
// desc, before the compiler has run.
func TargetExt(desc *compiler.Descriptor, sourceExt string) string {
	if desc != nil && desc.Target != "" {
		return compiler.NormalizeExt(desc.Target)
	}
	return compiler.NormalizeExt(sourceExt)
}
