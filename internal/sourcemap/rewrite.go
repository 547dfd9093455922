package sourcemap

import (
	"path/filepath"
	"strings"
)

// Placement describes where a compiled artifact lands relative to its source.
type Placement struct {
	// SourcePath is the absolute path of the compiled source file.
	SourcePath string
	// InputDir and OutputDir are the absolute export roots.
	InputDir  string
	OutputDir string
	// OutputPath is the absolute path of the written artifact.
	OutputPath string
	// SourceCopyPath is the absolute path of the ".src" copy of the primary
	// source in the output tree. Empty means the primary source is treated
	// like any other source.
	SourceCopyPath string
}

// Rewrite returns a copy of m whose sources are relative to the artifact's
// directory in the output tree. A source inside the input root points at its
// mirrored location under the output root; the primary source points at its
// ".src" copy; a source outside the input root points at its real location.
func (m *Map) Rewrite(pl Placement) *Map {
	out := m.Clone()
	resolvedBase := m.baseDir(pl.SourcePath)
	outDir := filepath.Dir(pl.OutputPath)
	source := filepath.Clean(pl.SourcePath)

	for i, s := range m.Sources {
		abs, ok := localPath(s)
		if !ok {
			continue
		}
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(resolvedBase, abs)
		}
		abs = filepath.Clean(abs)

		target := abs
		switch {
		case abs == source && pl.SourceCopyPath != "":
			target = pl.SourceCopyPath
		case within(pl.InputDir, abs):
			rel, _ := filepath.Rel(pl.InputDir, abs)
			target = filepath.Join(pl.OutputDir, rel)
		}
		rel, err := filepath.Rel(outDir, target)
		if err != nil {
			rel = target
		}
		out.Sources[i] = filepath.ToSlash(rel)
	}
	out.SourceRoot = ""
	out.File = filepath.Base(pl.OutputPath)
	return out
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// URLComment returns the sourceMappingURL reference for an artifact with the
// given extension. Stylesheets use the block comment form, scripts the line
// comment form; other formats have no reference.
func URLComment(ext, mapName string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".css":
		return "/*# sourceMappingURL=" + mapName + " */", true
	case ".js", ".mjs", ".cjs":
		return "//# sourceMappingURL=" + mapName, true
	default:
		return "", false
	}
}

// AppendURL appends the sourceMappingURL reference to content.
func AppendURL(content, ext, mapName string) string {
	comment, ok := URLComment(ext, mapName)
	if !ok {
		return content
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + comment + "\n"
}
