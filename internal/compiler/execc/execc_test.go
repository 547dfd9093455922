package execc

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func source(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Command: []string{"cat"}, Extensions: []string{".x"}})
	require.Error(t, err)
	_, err = New(Config{Name: "x", Extensions: []string{".x"}})
	require.Error(t, err)
	_, err = New(Config{Name: "x", Command: []string{"cat"}})
	require.Error(t, err)
	_, err = New(Config{Name: "x", Command: []string{"cat"}, Extensions: []string{".x"}, Protocol: "xml"})
	require.Error(t, err)

	c, err := New(Config{Name: "x", Version: "2", Command: []string{"cat"}, Extensions: []string{".x"}, Target: ".y"})
	require.NoError(t, err)
	assert.Equal(t, compiler.Descriptor{Name: "x", Version: "2", Extensions: []string{".x"}, Target: ".y"}, c.Descriptor())
}

func TestRawProtocol(t *testing.T) {
	requireShell(t)
	p := source(t, "a.up", "hello")
	c, err := New(Config{
		Name:       "upper",
		Extensions: []string{".up"},
		Target:     ".txt",
		Command:    []string{"sh", "-c", `tr a-z A-Z < "$1"; printf '%s' "$PRESSROOM_MINIFY$PRESSROOM_AUTOPREFIX"`, "sh", "{input}"},
	})
	require.NoError(t, err)

	res, err := c.Render(context.Background(), p, compiler.Options{Minify: true, Autoprefix: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "HELLO1a,b", res.Content)
	assert.Equal(t, ".txt", res.Extension)
}

func TestJSONProtocol(t *testing.T) {
	requireShell(t)
	p := source(t, "a.scss", "x")
	doc := `{"result":"a{}","extension":".css","sourcemap":{"version":3,"sources":["a.scss","_b.scss"],"mappings":"AAAA"},"dependencies":["_b.scss"]}`
	c, err := New(Config{
		Name:       "sass",
		Extensions: []string{".scss"},
		Protocol:   ProtocolJSON,
		Command:    []string{"sh", "-c", "printf '%s' '" + doc + "'"},
	})
	require.NoError(t, err)

	res, err := c.Render(context.Background(), p, compiler.Options{SourceMap: true})
	require.NoError(t, err)
	assert.Equal(t, "a{}", res.Content)
	assert.Equal(t, ".css", res.Extension)
	require.NotNil(t, res.SourceMap)
	assert.Equal(t, []string{"a.scss", "_b.scss"}, res.SourceMap.Sources)
	assert.Equal(t, []string{"_b.scss"}, res.Dependencies)
}

func TestJSONProtocolStringMap(t *testing.T) {
	requireShell(t)
	doc := `{"result":"x","sourcemap":"{\"version\":3,\"sources\":[\"a.ts\"],\"mappings\":\"\"}"}`
	c, err := New(Config{Name: "ts", Extensions: []string{".ts"}, Target: ".js", Protocol: ProtocolJSON,
		Command: []string{"sh", "-c", "printf '%s' '" + doc + "'"}})
	require.NoError(t, err)
	res, err := c.Render(context.Background(), source(t, "a.ts", ""), compiler.Options{})
	require.NoError(t, err)
	assert.Equal(t, ".js", res.Extension)
	assert.Equal(t, []string{"a.ts"}, res.SourceMap.Sources)
}

func TestJSONProtocolReportedError(t *testing.T) {
	requireShell(t)
	doc := `{"error":{"message":"expected ;","line":4,"column":2}}`
	c, err := New(Config{Name: "sass", Extensions: []string{".scss"}, Protocol: ProtocolJSON,
		Command: []string{"sh", "-c", "printf '%s' '" + doc + "'"}})
	require.NoError(t, err)
	p := source(t, "a.scss", "")
	_, err = c.Render(context.Background(), p, compiler.Options{})
	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 4, cerr.Line)
	assert.Equal(t, p, cerr.File)
}

func TestNonZeroExitCarriesStderr(t *testing.T) {
	requireShell(t)
	c, err := New(Config{Name: "bad", Extensions: []string{".b"}, Command: []string{"sh", "-c", "echo 'syntax error' >&2; exit 3"}})
	require.NoError(t, err)
	_, err = c.Render(context.Background(), source(t, "a.b", ""), compiler.Options{})
	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "syntax error", cerr.Message)
}
