// Package markdown is the built-in Markdown compiler. It renders CommonMark
// plus GitHub extensions to HTML with goldmark.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"runtime/debug"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
)

// Name is the registry id of the compiler.
const Name = "markdown"

const goldmarkModule = "github.com/yuin/goldmark"

// Compiler renders .md and .markdown sources to .html.
type Compiler struct {
	md      goldmark.Markdown
	version string
}

// New returns a Markdown compiler. Its version tracks the linked goldmark
// release so a renderer upgrade invalidates previously built pages.
func New() *Compiler {
	return &Compiler{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		version: moduleVersion(goldmarkModule),
	}
}

func (c *Compiler) Descriptor() compiler.Descriptor {
	return compiler.Descriptor{
		Name:       Name,
		Version:    c.version,
		Extensions: []string{".md", ".markdown"},
		Target:     ".html",
	}
}

func (c *Compiler) Render(_ context.Context, sourcePath string, _ compiler.Options) (*compiler.Result, error) {
	// #nosec G304 - sourcePath comes from the input tree walk
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	fm, body, _, err := splitFrontMatter(src)
	if err != nil {
		return nil, &compiler.Error{Compiler: Name, File: sourcePath, Line: 1, Message: err.Error(), Err: err}
	}
	meta, err := parseMeta(fm)
	if err != nil {
		return nil, &compiler.Error{Compiler: Name, File: sourcePath, Message: "front matter: " + err.Error(), Err: err}
	}

	var buf bytes.Buffer
	if err := c.md.Convert(body, &buf); err != nil {
		return nil, &compiler.Error{Compiler: Name, File: sourcePath, Message: err.Error(), Err: err}
	}
	content := buf.String()
	if meta.Title != "" {
		content = wrapDocument(meta, content)
	}
	return &compiler.Result{Content: content, Extension: ".html"}, nil
}

func wrapDocument(meta Meta, fragment string) string {
	lang := meta.Lang
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(lang), html.EscapeString(meta.Title), fragment)
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}
