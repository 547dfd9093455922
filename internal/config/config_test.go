package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/export"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/retry"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "./build", cfg.Output)
	assert.True(t, cfg.Compile)
	assert.True(t, cfg.Markdown)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "pressroom.events", cfg.Events.NATSSubject)
	assert.Equal(t, retry.DefaultPolicy(), cfg.Events.NATSRetry.Policy())
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.Nil(t, cfg.Autoprefix)
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
output: ./public
compile: false
minify: true
sourcemaps: true
autoprefix: [last 2 versions, firefox esr]
respect_gitignore: true
workers: 4
exclusions:
  - path: drafts
    action: Exclude
    type: Directory
  - path: raw.scss
    action: dont_compile
compilers:
  - name: sass
    version: "1.77"
    extensions: [SCSS, .sass]
    target: css
    command: [sass, "{input}"]
    protocol: json
watch:
  debounce: 2s
  every: 1h
  metrics_addr: ":9090"
logging:
  level: DEBUG
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "./public", cfg.Output)
	assert.Equal(t, Autoprefix{"last 2 versions", "firefox esr"}, cfg.Autoprefix)
	assert.Equal(t, export.Exclusion{Path: "drafts", Action: export.ActionExclude, Type: export.RuleDir}, cfg.Exclusions[0])
	assert.Equal(t, export.ActionDontCompile, cfg.Exclusions[1].Action)
	assert.Equal(t, retry.ModeLinear, cfg.Events.NATSRetry.Policy().Mode)
	assert.Equal(t, 5*time.Second, cfg.Events.NATSRetry.Policy().Max)
	require.Len(t, cfg.Compilers, 1)
	assert.Equal(t, []string{".scss", ".sass"}, cfg.Compilers[0].Extensions)
	assert.Equal(t, ".css", cfg.Compilers[0].Target)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, time.Hour, cfg.Watch.Every)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)

	opts := cfg.RunOptions()
	assert.False(t, opts.Compile)
	assert.True(t, opts.Minify)
	assert.True(t, opts.SourceMaps)
	assert.True(t, opts.RespectGitignore)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, []string{"last 2 versions", "firefox esr"}, opts.Autoprefix)
}

func TestAutoprefixForms(t *testing.T) {
	tests := map[string]Autoprefix{
		"autoprefix: false":     nil,
		"autoprefix: true":      {"defaults"},
		"autoprefix: safari 15": {"safari 15"},
		"autoprefix: [ie 11]":   {"ie 11"},
		"autoprefix:":           nil,
		"autoprefix: ['false']": {"false"},
	}
	for doc, want := range tests {
		t.Run(doc, func(t *testing.T) {
			cfg, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Autoprefix)
		})
	}

	_, err := Parse([]byte("autoprefix: {a: b}"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"unknown action":      "exclusions: [{path: a, action: hide}]",
		"unknown type":        "exclusions: [{path: a, action: exclude, type: glob}]",
		"compiler no command": "compilers: [{name: x, extensions: [.x]}]",
		"compiler both":       "compilers: [{name: x, extensions: [.x], command: [x], script: x.lua}]",
		"compiler no name":    "compilers: [{extensions: [.x], command: [x]}]",
		"compiler no ext":     "compilers: [{name: x, command: [x]}]",
		"duplicate compiler":  "compilers: [{name: x, extensions: [.x], command: [x]}, {name: x, extensions: [.y], command: [y]}]",
		"shadows markdown":    "compilers: [{name: markdown, extensions: [.x], command: [x]}]",
		"bad protocol":        "compilers: [{name: x, extensions: [.x], command: [x], protocol: grpc}]",
		"negative workers":    "workers: -1",
		"empty output":        "output: ''",
		"negative debounce":   "watch: {debounce: -1s}",
		"negative retries":    "events: {nats_retry: {max_retries: -1}}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), "got %v", err)
		})
	}
}

func TestLoadResolvesPathsAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRESSROOM_TEST_OUT=from-env\nPRESSROOM_TEST_SUBJECT=env.subject\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("PRESSROOM_TEST_OUT=from-local\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PRESSROOM_TEST_OUT")
		_ = os.Unsetenv("PRESSROOM_TEST_SUBJECT")
	})

	p := writeConfig(t, dir, `
input: src
output: ${PRESSROOM_TEST_OUT}
events:
  history_db: state/history.db
  nats_subject: ${PRESSROOM_TEST_SUBJECT}
compilers:
  - name: shout
    extensions: [.txt]
    command: [sh, -c, 'tr a-z A-Z < "$1"', sh, "{input}"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Input)
	assert.Equal(t, filepath.Join(dir, "from-local"), cfg.Output)
	assert.Equal(t, filepath.Join(dir, "state", "history.db"), cfg.Events.HistoryDB)
	assert.Equal(t, "env.subject", cfg.Events.NATSSubject)
	assert.Equal(t, `tr a-z A-Z < "$1"`, cfg.Compilers[0].Command[2])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestLoadInvalidYAML(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "output: [unterminated")
	_, err := Load(p)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestBuildRegistry(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "upper.lua")
	require.NoError(t, os.WriteFile(script, []byte("function render(src) return string.upper(src) end\n"), 0o600))
	p := writeConfig(t, dir, `
compilers:
  - name: upper
    version: "1"
    extensions: [.up]
    target: .txt
    script: upper.lua
  - name: cat
    extensions: [.raw]
    command: [cat, "{input}"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, script, cfg.Compilers[0].Script)

	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{".markdown", ".md", ".raw", ".up"}, reg.Extensions())
	assert.Equal(t, compiler.RouteCompile, reg.Route(".up").Kind)
	assert.Equal(t, "upper", reg.Route(".up").Descriptor().Name)
}

func TestBuildRegistryConflict(t *testing.T) {
	cfg, err := Parse([]byte(`
compilers:
  - name: other-md
    extensions: [.md]
    command: [cat, "{input}"]
`))
	require.NoError(t, err)
	_, err = cfg.BuildRegistry()
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	cfg.Markdown = false
	_, err = cfg.BuildRegistry()
	assert.NoError(t, err)
}

func TestBuildRegistryMissingScript(t *testing.T) {
	cfg, err := Parse([]byte(`compilers: [{name: x, extensions: [.x], script: /nonexistent/x.lua}]`))
	require.NoError(t, err)
	_, err = cfg.BuildRegistry()
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	p := filepath.Join(t.TempDir(), "conf", DefaultFile)
	require.NoError(t, Init(p, false))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.True(t, cfg.RespectGitignore)
	assert.Len(t, cfg.Exclusions, 2)
	assert.Equal(t, export.ActionDontCompile, cfg.Exclusions[1].Action)
	assert.Equal(t, retry.ModeLinear, cfg.Events.NATSRetry.Policy().Mode)
	assert.Equal(t, 5*time.Second, cfg.Events.NATSRetry.Policy().Max)

	err = Init(p, false)
	require.Error(t, err)
	assert.NoError(t, Init(p, true))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	assert.Equal(t, LogLevelDebug.Slog().String(), "DEBUG")
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
}
