package compiler

import (
	"fmt"
	"sort"
)

// RouteKind is the capability tag chosen for an extension.
type RouteKind int

const (
	// RouteCopy passes files through unchanged.
	RouteCopy RouteKind = iota
	// RouteCompile sends files through a registered compiler.
	RouteCompile
)

func (k RouteKind) String() string {
	if k == RouteCompile {
		return "compile"
	}
	return "copy"
}

// Route is the resolved handling for one source extension.
type Route struct {
	Kind     RouteKind
	Compiler Compiler
}

// Descriptor returns the routed compiler's descriptor, or nil for copies.
func (r Route) Descriptor() *Descriptor {
	if r.Kind != RouteCompile || r.Compiler == nil {
		return nil
	}
	d := r.Compiler.Descriptor()
	return &d
}

// Registry maps source extensions to routes. It is immutable once built;
// Reload produces a new Registry.
type Registry struct {
	compilers []Compiler
	routes    map[string]Route
}

// NewRegistry builds a registry. Two compilers claiming the same extension is
// a configuration error.
func NewRegistry(compilers ...Compiler) (*Registry, error) {
	r := &Registry{routes: make(map[string]Route)}
	owner := make(map[string]string)
	for _, c := range compilers {
		if c == nil {
			continue
		}
		d := c.Descriptor()
		if d.Name == "" {
			return nil, fmt.Errorf("compiler without a name")
		}
		for _, ext := range d.Extensions {
			ext = NormalizeExt(ext)
			if ext == "" {
				continue
			}
			if prev, ok := owner[ext]; ok {
				return nil, fmt.Errorf("extension %s claimed by both %s and %s", ext, prev, d.Name)
			}
			owner[ext] = d.Name
			r.routes[ext] = Route{Kind: RouteCompile, Compiler: c}
		}
		r.compilers = append(r.compilers, c)
	}
	return r, nil
}

// Reload returns a new registry built from compilers. The receiver is unchanged.
func (r *Registry) Reload(compilers ...Compiler) (*Registry, error) {
	return NewRegistry(compilers...)
}

// Route returns the handling for a source extension.
func (r *Registry) Route(ext string) Route {
	if r == nil {
		return Route{Kind: RouteCopy}
	}
	if route, ok := r.routes[NormalizeExt(ext)]; ok {
		return route
	}
	return Route{Kind: RouteCopy}
}

// Compilable reports whether ext is claimed by a compiler.
func (r *Registry) Compilable(ext string) bool {
	return r.Route(ext).Kind == RouteCompile
}

// Extensions returns the claimed extensions in sorted order.
func (r *Registry) Extensions() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.routes))
	for ext := range r.routes {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Compilers returns the registered compilers in registration order.
func (r *Registry) Compilers() []Compiler {
	if r == nil {
		return nil
	}
	return append([]Compiler(nil), r.compilers...)
}
