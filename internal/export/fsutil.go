package export

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

func (r *run) outPath(rel string) string {
	return filepath.Join(r.out, filepath.FromSlash(rel))
}

// sourceCompanion names the copy of a source kept next to its artifact so
// source map references resolve: "css/site.scss" becomes "css/site.src.scss".
func sourceCompanion(rel string) string {
	ext := path.Ext(rel)
	return strings.TrimSuffix(rel, ext) + ".src" + ext
}

func (r *run) copySourceCompanion(ent entry) (string, error) {
	rel := sourceCompanion(ent.rel)
	if err := copyFile(ent.abs, r.outPath(rel)); err != nil {
		return "", err
	}
	return rel, nil
}

func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// #nosec G306 - exported site files are meant to be world readable
	return os.WriteFile(p, data, 0o644)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	// #nosec G304 - src comes from the input tree walk
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G302 G304 - exported site files are meant to be world readable
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
