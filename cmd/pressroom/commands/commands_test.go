package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/config"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/preflight"
)

// project writes a configuration and a small source tree into a temp dir and
// returns the configuration path.
func project(t *testing.T, cfg string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "docs"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "docs", "index.md"), []byte("# Hello\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "robots.txt"), []byte("User-agent: *\n"), 0o600))
	path := filepath.Join(dir, config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

const projectConfig = `input: src
output: build
events:
  history_db: state/history.db
`

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFile)
	var out bytes.Buffer

	require.NoError(t, (&InitCmd{}).Run(&Global{Out: &out}, &CLI{Config: path}))
	assert.Contains(t, out.String(), "Initialized successfully")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Markdown)

	err = (&InitCmd{}).Run(&Global{Out: &out}, &CLI{Config: path})
	require.Error(t, err)
	require.NoError(t, (&InitCmd{Force: true}).Run(&Global{Out: &out}, &CLI{Config: path}))
}

func TestInitOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, (&InitCmd{Output: dir}).Run(&Global{Out: &out}, &CLI{Config: "ignored.yaml"}))
	assert.FileExists(t, filepath.Join(dir, config.DefaultFile))
}

func TestExportAndHistory(t *testing.T) {
	path := project(t, projectConfig)
	root := &CLI{Config: path}
	dir := filepath.Dir(path)
	var out bytes.Buffer

	require.NoError(t, (&ExportCmd{}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "Exported 2 files")
	assert.FileExists(t, filepath.Join(dir, "build", "docs", "index.html"))
	assert.FileExists(t, filepath.Join(dir, "build", "robots.txt"))

	out.Reset()
	require.NoError(t, (&ExportCmd{}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "1 reused")

	out.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "success")
	assert.Contains(t, out.String(), "RUN")
}

func TestExportFlagsOverrideConfig(t *testing.T) {
	path := project(t, projectConfig)
	dir := filepath.Dir(path)
	other := filepath.Join(dir, "elsewhere")
	off := false
	var out bytes.Buffer

	cmd := &ExportCmd{RunFlags: RunFlags{Output: other, Compile: &off}}
	require.NoError(t, cmd.Run(&Global{Out: &out}, &CLI{Config: path}))
	assert.FileExists(t, filepath.Join(other, "docs", "index.md"))
	assert.NoFileExists(t, filepath.Join(dir, "build", "robots.txt"))
}

func TestExportPreflightRefuses(t *testing.T) {
	path := project(t, "input: src\noutput: src\n")
	var out bytes.Buffer

	err := (&ExportCmd{Preflight: true}).Run(&Global{Out: &out}, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Contains(t, out.String(), "[error]")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "src", "robots.txt"))
}

func TestPreflightJSON(t *testing.T) {
	path := project(t, projectConfig)
	var out bytes.Buffer

	require.NoError(t, (&PreflightCmd{JSON: true}).Run(&Global{Out: &out}, &CLI{Config: path}))
	var report preflight.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, filepath.Join(filepath.Dir(path), "src"), report.InputDir)
	assert.True(t, report.InputExists)
	assert.False(t, report.OutputExists)
}

func TestPreflightText(t *testing.T) {
	path := project(t, projectConfig)
	var out bytes.Buffer

	require.NoError(t, (&PreflightCmd{}).Run(&Global{Out: &out}, &CLI{Config: path}))
	assert.Contains(t, out.String(), "Output: ")
	assert.Contains(t, out.String(), "(missing)")
	assert.Contains(t, out.String(), "OK")
}

func TestCompilersListsRoutes(t *testing.T) {
	path := project(t, projectConfig+"sourcemaps: true\n")
	var out bytes.Buffer

	require.NoError(t, (&CompilersCmd{}).Run(&Global{Out: &out}, &CLI{Config: path}))
	s := out.String()
	assert.Contains(t, s, ".md")
	assert.Contains(t, s, ".markdown")
	assert.Contains(t, s, "compile")
	assert.Contains(t, s, "markdown@")
	assert.Contains(t, s, "|sourcemap")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	path := project(t, "input: src\noutput: build\n")
	err := (&HistoryCmd{}).Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestHistoryUnknownRun(t *testing.T) {
	path := project(t, projectConfig)
	root := &CLI{Config: path}
	require.NoError(t, (&ExportCmd{}).Run(&Global{Out: &bytes.Buffer{}}, root))

	err := (&HistoryCmd{RunID: "missing"}).Run(&Global{Out: &bytes.Buffer{}}, root)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := (&CLI{Config: config.DefaultFile}).loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Input)
	assert.True(t, cfg.Compile)

	_, err = (&CLI{Config: "custom.yaml"}).loadConfig()
	require.Error(t, err)
}

func TestRunFlagsApply(t *testing.T) {
	on, off := true, false
	cfg := config.Default()
	RunFlags{Output: "out", Compile: &off, Minify: &on, SourceMaps: &on, Workers: 3}.apply(cfg, "in")

	assert.Equal(t, "in", cfg.Input)
	assert.Equal(t, "out", cfg.Output)
	assert.False(t, cfg.Compile)
	assert.True(t, cfg.Minify)
	assert.True(t, cfg.SourceMaps)
	assert.Equal(t, 3, cfg.Workers)

	RunFlags{}.apply(cfg, "")
	assert.Equal(t, "in", cfg.Input)
	assert.True(t, cfg.Minify)
}

func TestExportSurvivesUnreachableNATS(t *testing.T) {
	path := project(t, projectConfig+"  nats_url: nats://127.0.0.1:1\n  nats_retry: {max_retries: 0}\n")
	var out bytes.Buffer

	require.NoError(t, (&ExportCmd{}).Run(&Global{Out: &out}, &CLI{Config: path}))
	assert.Contains(t, out.String(), "Exported 2 files")
}

func TestHistoryPrune(t *testing.T) {
	path := project(t, projectConfig)
	root := &CLI{Config: path}
	require.NoError(t, (&ExportCmd{}).Run(&Global{Out: &bytes.Buffer{}}, root))
	time.Sleep(10 * time.Millisecond)

	var out bytes.Buffer
	require.NoError(t, (&HistoryCmd{Limit: 10, Prune: time.Nanosecond}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "Pruned")
	assert.Contains(t, out.String(), "No runs recorded")
}
