package commands

import (
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/pressroom/internal/identity"
)

// CompilersCmd implements the 'compilers' command.
type CompilersCmd struct{}

func (c *CompilersCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.out(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "EXTENSION\tROUTE\tCOMPILER\tTARGET\tIDENTITY")
	for _, ext := range reg.Extensions() {
		route := reg.Route(ext)
		desc := route.Descriptor()
		target := identity.TargetExt(desc, ext)
		id := identity.Resolve(desc, identity.Options{
			SourceMaps: cfg.SourceMaps,
			Minify:     cfg.Minify,
			Autoprefix: cfg.Autoprefix,
			TargetExt:  target,
		})
		name := "-"
		if desc != nil {
			name = desc.Name + "@" + desc.Version
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ext, route.Kind, name, target, id)
	}
	return tw.Flush()
}
