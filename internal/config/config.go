// Package config loads pressroom.yaml: export roots, run options, compiler
// definitions and the settings of the event sinks, watch mode and logging.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pressroom/internal/export"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/retry"
)

// DefaultFile is the configuration file looked for in the working directory.
const DefaultFile = "pressroom.yaml"

// Config is the parsed configuration.
type Config struct {
	Input            string             `yaml:"input"`
	Output           string             `yaml:"output"`
	Compile          bool               `yaml:"compile"`
	Minify           bool               `yaml:"minify"`
	SourceMaps       bool               `yaml:"sourcemaps"`
	Autoprefix       Autoprefix         `yaml:"autoprefix"`
	Exclusions       []export.Exclusion `yaml:"exclusions"`
	RespectGitignore bool               `yaml:"respect_gitignore"`
	Workers          int                `yaml:"workers"`
	// Markdown enables the built-in Markdown compiler.
	Markdown  bool             `yaml:"markdown"`
	Compilers []CompilerConfig `yaml:"compilers"`
	Events    EventsConfig     `yaml:"events"`
	Watch     WatchConfig      `yaml:"watch"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// CompilerConfig defines an external compiler. Exactly one of Command (an
// executable) or Script (a Lua file) is set.
type CompilerConfig struct {
	Name       string            `yaml:"name"`
	Version    string            `yaml:"version"`
	Extensions []string          `yaml:"extensions"`
	Target     string            `yaml:"target"`
	Command    []string          `yaml:"command,omitempty"`
	Protocol   string            `yaml:"protocol,omitempty"`
	Dir        string            `yaml:"dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Script     string            `yaml:"script,omitempty"`
}

// EventsConfig configures the optional event sinks.
type EventsConfig struct {
	// HistoryDB is the SQLite file run events are recorded in; empty disables history.
	HistoryDB   string `yaml:"history_db"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	// NATSRetry governs reconnect attempts when the server is unreachable at startup.
	NATSRetry RetryConfig `yaml:"nats_retry"`
}

// RetryConfig is a backoff policy. Zero durations and an unknown mode fall
// back to the defaults of the retry package.
type RetryConfig struct {
	Mode       string        `yaml:"mode"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// Policy returns the backoff policy r describes.
func (r RetryConfig) Policy() retry.Policy {
	return retry.NewPolicy(r.Mode, r.Initial, r.Max, r.MaxRetries)
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// Every re-runs the export on a fixed interval; zero disables the schedule.
	Every       time.Duration `yaml:"every"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Autoprefix is the list of browser targets. In YAML it is a list, a single
// string, or a boolean: false disables autoprefixing, true means "defaults".
type Autoprefix []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Autoprefix) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if node.ShortTag() == "!!bool" && node.Decode(&b) == nil {
			if b {
				*a = Autoprefix{"defaults"}
			} else {
				*a = nil
			}
			return nil
		}
		if node.ShortTag() == "!!null" || node.Value == "" {
			*a = nil
			return nil
		}
		*a = Autoprefix{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: autoprefix must be a list, a string or a boolean", node.Line)
	}
}

// Default returns the configuration used for keys a file does not set.
func Default() *Config {
	return &Config{
		Output:   "./build",
		Compile:  true,
		Markdown: true,
		Events:   EventsConfig{NATSSubject: "pressroom.events", NATSRetry: RetryConfig{MaxRetries: 2}},
		Watch:    WatchConfig{Debounce: 500 * time.Millisecond},
		Logging:  LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}
}

// Load reads the configuration at path. .env files next to it are loaded
// first so their variables can be referenced as ${NAME}. Relative paths in
// the file resolve against its directory.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid configuration path").Build()
	}
	dir := filepath.Dir(abs)
	loadEnvFiles(dir)

	// #nosec G304 - the configuration path is chosen by the user
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", abs).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").WithContext("path", abs).Build()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)
	return cfg, nil
}

// Parse decodes a configuration document over the defaults, normalizes and
// validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").Build()
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references. Bare $NAME is left alone so
// shell snippets in compiler commands survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if c.Input == "" {
		c.Input = "."
	}
	c.Input = abs(c.Input)
	c.Output = abs(c.Output)
	c.Events.HistoryDB = abs(c.Events.HistoryDB)
	for i := range c.Compilers {
		c.Compilers[i].Script = abs(c.Compilers[i].Script)
		c.Compilers[i].Dir = abs(c.Compilers[i].Dir)
	}
}

// RunOptions returns the export options the configuration describes.
func (c *Config) RunOptions() export.RunOptions {
	return export.RunOptions{
		Compile:          c.Compile,
		Minify:           c.Minify,
		SourceMaps:       c.SourceMaps,
		Autoprefix:       append([]string(nil), c.Autoprefix...),
		Exclusions:       append([]export.Exclusion(nil), c.Exclusions...),
		RespectGitignore: c.RespectGitignore,
		Workers:          c.Workers,
	}
}
