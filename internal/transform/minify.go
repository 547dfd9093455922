// Package transform holds the pure artifact transforms applied around
// compilation: minification and vendor autoprefixing.
package transform

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Minifier shrinks compiled artifacts. Implementations must be pure.
type Minifier interface {
	CanMinify(ext string) bool
	Minify(ext, content string) (string, error)
}

// DefaultMinifier handles stylesheets, scripts and HTML documents.
// Comments that carry source map references or license markers survive.
type DefaultMinifier struct{}

func (DefaultMinifier) CanMinify(ext string) bool {
	switch strings.ToLower(ext) {
	case ".css", ".js", ".mjs", ".cjs", ".html", ".htm":
		return true
	}
	return false
}

func (DefaultMinifier) Minify(ext, content string) (string, error) {
	switch strings.ToLower(ext) {
	case ".css":
		return minifyCSS(content), nil
	case ".js", ".mjs", ".cjs":
		return minifyJS(content), nil
	case ".html", ".htm":
		return minifyHTML(content)
	}
	return content, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func minifyCSS(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	pendingSpace := false
	last := byte(0)
	emit := func(c byte) {
		if pendingSpace {
			if !strings.ContainsRune("{};,>:", rune(last)) && !strings.ContainsRune("{};,>", rune(c)) && last != 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		if c == '}' && last == ';' {
			s := b.String()
			b.Reset()
			b.WriteString(s[:len(s)-1])
		}
		b.WriteByte(c)
		last = c
	}
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			end := strings.Index(in[i+2:], "*/")
			if end < 0 {
				end = len(in) - i - 2
			}
			comment := in[i : i+2+end]
			if i+2+end+2 <= len(in) {
				comment = in[i : i+2+end+2]
			}
			if strings.HasPrefix(comment, "/*#") || strings.HasPrefix(comment, "/*!") {
				if strings.HasPrefix(comment, "/*#") && last != 0 {
					b.WriteByte('\n')
				}
				pendingSpace = false
				b.WriteString(comment)
				last = '/'
				if strings.HasPrefix(comment, "/*#") {
					b.WriteByte('\n')
					last = 0
				}
			}
			i += len(comment) - 1
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(in) && in[j] != c {
				if in[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(in) {
				j = len(in) - 1
			}
			for k := i; k <= j; k++ {
				emit(in[k])
			}
			i = j
		case isSpace(c):
			pendingSpace = true
		default:
			emit(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// minifyJS removes indentation, trailing whitespace and blank lines outside
// of string and template literals. Tokens are never joined across lines so
// automatic semicolon insertion is unaffected.
func minifyJS(in string) string {
	const (
		stNormal = iota
		stSingle
		stDouble
		stTemplate
		stLineComment
		stBlockComment
	)
	var b strings.Builder
	b.Grow(len(in))
	state := stNormal
	lineStart := true
	var line strings.Builder
	flush := func() {
		s := strings.TrimRight(line.String(), " \t\r")
		line.Reset()
		if s == "" {
			return
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c == '\n' && state != stTemplate && state != stBlockComment {
			if state == stLineComment || state == stSingle || state == stDouble {
				state = stNormal
			}
			flush()
			lineStart = true
			continue
		}
		if lineStart && state == stNormal && (c == ' ' || c == '\t' || c == '\r') {
			continue
		}
		lineStart = false
		line.WriteByte(c)
		switch state {
		case stNormal:
			switch {
			case c == '\'':
				state = stSingle
			case c == '"':
				state = stDouble
			case c == '`':
				state = stTemplate
			case c == '/' && i+1 < len(in) && in[i+1] == '/':
				state = stLineComment
			case c == '/' && i+1 < len(in) && in[i+1] == '*':
				state = stBlockComment
				line.WriteByte('*')
				i++
			}
		case stSingle, stDouble, stTemplate:
			if c == '\\' && i+1 < len(in) {
				line.WriteByte(in[i+1])
				i++
				continue
			}
			if (state == stSingle && c == '\'') || (state == stDouble && c == '"') || (state == stTemplate && c == '`') {
				state = stNormal
			}
		case stBlockComment:
			if c == '*' && i+1 < len(in) && in[i+1] == '/' {
				line.WriteByte('/')
				i++
				state = stNormal
			}
		}
	}
	flush()
	return strings.TrimSuffix(b.String(), "\n")
}

var preserveWhitespace = map[string]bool{"pre": true, "textarea": true, "script": true, "style": true}

func minifyHTML(in string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(in))
	var b strings.Builder
	b.Grow(len(in))
	depth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(b.String()), nil
			}
			return "", fmt.Errorf("minify html: %w", z.Err())
		case html.CommentToken:
			raw := string(z.Raw())
			// conditional comments are markup, not commentary
			if strings.HasPrefix(raw, "<!--[if") || strings.HasPrefix(raw, "<!--#") {
				b.WriteString(raw)
			}
		case html.TextToken:
			raw := string(z.Raw())
			if depth > 0 {
				b.WriteString(raw)
				continue
			}
			b.WriteString(collapseSpace(raw))
		case html.StartTagToken:
			raw := string(z.Raw())
			name, _ := z.TagName()
			if preserveWhitespace[string(name)] {
				depth++
			}
			b.WriteString(raw)
		case html.EndTagToken:
			raw := string(z.Raw())
			name, _ := z.TagName()
			if preserveWhitespace[string(name)] && depth > 0 {
				depth--
			}
			b.WriteString(raw)
		default:
			b.Write(z.Raw())
		}
	}
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteByte(s[i])
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}
