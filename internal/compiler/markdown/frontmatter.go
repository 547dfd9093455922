package markdown

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front matter delimiter but never closed it.
var ErrMissingClosingDelimiter = errors.New("yaml front matter start delimiter found but closing delimiter is missing")

// Meta is the subset of front matter the compiler acts on.
type Meta struct {
	Title string `yaml:"title"`
	Lang  string `yaml:"lang"`
}

// splitFrontMatter separates `---` delimited YAML front matter from the body.
// had is false when the document carries none.
func splitFrontMatter(content []byte) (fm []byte, body []byte, had bool, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}
	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}
	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closing)
	if idx < 0 {
		// a closing delimiter on the last line has no trailing newline
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			return content[start : len(content)-3], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return content[start : start+idx+len(nl)], content[start+idx+len(closing):], true, nil
}

func parseMeta(fm []byte) (Meta, error) {
	var m Meta
	if len(bytes.TrimSpace(fm)) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(fm, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}
