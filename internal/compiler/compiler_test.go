package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/transform"
)

type stubCompiler struct {
	desc   Descriptor
	result *Result
	err    error
	seen   Options
}

func (s *stubCompiler) Descriptor() Descriptor { return s.desc }

func (s *stubCompiler) Render(_ context.Context, _ string, opts Options) (*Result, error) {
	s.seen = opts
	return s.result, s.err
}

func TestRegistryRoutes(t *testing.T) {
	sass := &stubCompiler{desc: Descriptor{Name: "sass", Version: "1", Extensions: []string{"scss", ".SASS"}, Target: ".css"}}
	reg, err := NewRegistry(sass)
	require.NoError(t, err)

	assert.Equal(t, RouteCompile, reg.Route(".scss").Kind)
	assert.Equal(t, RouteCompile, reg.Route(".Sass").Kind)
	assert.Equal(t, RouteCopy, reg.Route(".txt").Kind)
	assert.Nil(t, reg.Route(".txt").Descriptor())
	assert.Equal(t, "sass", reg.Route(".scss").Descriptor().Name)
	assert.Equal(t, []string{".sass", ".scss"}, reg.Extensions())
	assert.Equal(t, "compile", RouteCompile.String())
	assert.Equal(t, "copy", RouteCopy.String())
}

func TestRegistryRejectsDuplicateExtension(t *testing.T) {
	a := &stubCompiler{desc: Descriptor{Name: "a", Extensions: []string{".x"}}}
	b := &stubCompiler{desc: Descriptor{Name: "b", Extensions: []string{"x"}}}
	_, err := NewRegistry(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both a and b")

	_, err = NewRegistry(&stubCompiler{desc: Descriptor{Extensions: []string{".y"}}})
	require.Error(t, err)
}

func TestRegistryReloadLeavesOriginal(t *testing.T) {
	a := &stubCompiler{desc: Descriptor{Name: "a", Extensions: []string{".a"}}}
	b := &stubCompiler{desc: Descriptor{Name: "b", Extensions: []string{".b"}}}
	reg, err := NewRegistry(a)
	require.NoError(t, err)
	next, err := reg.Reload(b)
	require.NoError(t, err)

	assert.True(t, reg.Compilable(".a"))
	assert.False(t, reg.Compilable(".b"))
	assert.True(t, next.Compilable(".b"))
	assert.False(t, next.Compilable(".a"))
}

func TestNilRegistryCopies(t *testing.T) {
	var reg *Registry
	assert.Equal(t, RouteCopy, reg.Route(".scss").Kind)
	assert.Nil(t, reg.Extensions())
}

func TestDispatcherDefaultsExtension(t *testing.T) {
	c := &stubCompiler{desc: Descriptor{Name: "sass", Target: "css"}, result: &Result{Content: "a{}"}}
	d := NewDispatcher(nil, nil)
	res, err := d.Render(context.Background(), c, "/src/site.scss", Options{})
	require.NoError(t, err)
	assert.Equal(t, ".css", res.Extension)
	assert.Equal(t, "/src/site.scss", c.seen.Filename)

	c.desc.Target = ""
	res, err = d.Render(context.Background(), c, "/src/page.TPL", Options{})
	require.NoError(t, err)
	assert.Equal(t, ".tpl", res.Extension)
}

func TestDispatcherRejectsUndeclaredExtension(t *testing.T) {
	c := &stubCompiler{desc: Descriptor{Name: "sass", Target: ".css"}, result: &Result{Content: "a{}", Extension: ".html"}}
	_, err := NewDispatcher(nil, nil).Render(context.Background(), c, "x.scss", Options{})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Error(), "declares target .css but returned .html")

	c.result = &Result{Content: "a{}", Extension: "CSS"}
	res, err := NewDispatcher(nil, nil).Render(context.Background(), c, "x.scss", Options{})
	require.NoError(t, err)
	assert.Equal(t, ".css", res.Extension)
}

func TestDispatcherAutoprefixesStylesheets(t *testing.T) {
	c := &stubCompiler{desc: Descriptor{Name: "sass"}, result: &Result{Content: "a{user-select:none}", Extension: ".css"}}
	d := NewDispatcher(nil, transform.TablePrefixer{})

	res, err := d.Render(context.Background(), c, "x.scss", Options{Autoprefix: []string{"safari 15"}})
	require.NoError(t, err)
	assert.Equal(t, "a{-webkit-user-select:none;user-select:none}", res.Content)

	res, err = d.Render(context.Background(), c, "x.scss", Options{})
	require.NoError(t, err)
	assert.Equal(t, "a{user-select:none}", res.Content)
}

func TestDispatcherWrapsErrors(t *testing.T) {
	c := &stubCompiler{desc: Descriptor{Name: "sass"}, err: errors.New("boom")}
	d := NewDispatcher(nil, nil)
	_, err := d.Render(context.Background(), c, "x.scss", Options{})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "sass: x.scss: boom", cerr.Error())

	c.err = &Error{Line: 3, Column: 7, Message: "expected ;"}
	_, err = d.Render(context.Background(), c, "x.scss", Options{})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "sass: x.scss:3:7: expected ;", cerr.Error())
}

func TestDispatcherHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &stubCompiler{desc: Descriptor{Name: "sass"}, result: &Result{}}
	_, err := NewDispatcher(nil, nil).Render(ctx, c, "x.scss", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPassthroughKeepsContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(p, []byte("let a = 1;"), 0o600))
	res, err := Passthrough{}.Render(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "let a = 1;", res.Content)
	assert.Equal(t, ".js", res.Extension)
	assert.Empty(t, Passthrough{}.Descriptor().Name)
}
