package compiler

import (
	"context"
	"os"
	"path/filepath"
)

// Passthrough is the identity compiler used when minification is the only
// transform applied to a file. Its descriptor has no name so the transform
// identity of a minify-only file carries no compiler component.
type Passthrough struct{}

func (Passthrough) Descriptor() Descriptor { return Descriptor{} }

func (Passthrough) Render(_ context.Context, sourcePath string, _ Options) (*Result, error) {
	// #nosec G304 - sourcePath comes from the input tree walk
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	return &Result{Content: string(data), Extension: filepath.Ext(sourcePath)}, nil
}
