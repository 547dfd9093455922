// Package sourcemap models revision 3 source maps and the path rewriting the
// export pipeline applies when an artifact moves from the input tree to the
// output tree.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Map is a revision 3 source map. Members without a field here, such as
// "sections" or "x_*" extensions, are kept in Extra and written back
// unchanged.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownMembers = map[string]struct{}{
	"version":        {},
	"file":           {},
	"sourceRoot":     {},
	"sources":        {},
	"sourcesContent": {},
	"names":          {},
	"mappings":       {},
}

// Parse decodes a source map document.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	for k, v := range members {
		if _, ok := knownMembers[k]; ok {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}
		m.Extra[k] = v
	}
	if m.Version == 0 {
		m.Version = 3
	}
	return &m, nil
}

// Marshal encodes the map as compact JSON.
func (m *Map) Marshal() ([]byte, error) {
	out := *m
	if out.Sources == nil {
		out.Sources = []string{}
	}
	if out.Names == nil {
		out.Names = []string{}
	}
	data, err := json.Marshal(&out)
	if err != nil || len(m.Extra) == 0 {
		return data, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, ok := members[k]; !ok {
			members[k] = v
		}
	}
	return json.Marshal(members)
}

// Clone returns a copy whose slices can be modified independently.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	c := *m
	c.Sources = append([]string(nil), m.Sources...)
	c.Names = append([]string(nil), m.Names...)
	if m.SourcesContent != nil {
		c.SourcesContent = append([]*string(nil), m.SourcesContent...)
	}
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// localPath returns the file a source entry names. "file://" URLs name
// local files; other URLs, data URIs and names like "<stdin>" do not.
func localPath(source string) (string, bool) {
	if rest, ok := strings.CutPrefix(source, "file://"); ok {
		if u, err := url.Parse(source); err == nil && u.Path != "" {
			rest = u.Path
		}
		return filepath.FromSlash(rest), rest != ""
	}
	if source == "" ||
		strings.Contains(source, "://") ||
		strings.HasPrefix(source, "data:") ||
		strings.HasPrefix(source, "<") {
		return "", false
	}
	return filepath.FromSlash(source), true
}

// baseDir is the directory relative sources resolve against: the directory
// of the compiled file, adjusted by sourceRoot.
func (m *Map) baseDir(sourcePath string) string {
	base := filepath.Dir(sourcePath)
	if root, ok := localPath(m.SourceRoot); ok {
		if filepath.IsAbs(root) {
			return root
		}
		return filepath.Join(base, root)
	}
	return base
}

// ResolveSources returns the absolute, cleaned file paths named by the map's
// sources. Relative entries are resolved against the directory of the
// compiled source file and the map's sourceRoot. Virtual sources are skipped.
func (m *Map) ResolveSources(sourcePath string) []string {
	if m == nil {
		return nil
	}
	base := m.baseDir(sourcePath)
	out := make([]string, 0, len(m.Sources))
	for _, s := range m.Sources {
		p, ok := localPath(s)
		if !ok {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
