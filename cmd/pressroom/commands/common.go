package commands

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/observability"
)

// Global carries state shared by every subcommand.
type Global struct {
	// Out receives command output meant for the user (reports, tables).
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"pressroom.yaml" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogLevel  string           `name:"log-level" help:"Log level (debug, info, warn, error)" env:"PRESSROOM_LOG_LEVEL"`
	LogFormat string           `name:"log-format" help:"Log format (text, json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Export    ExportCmd    `cmd:"" default:"withargs" help:"Export the input tree into the output directory"`
	Preflight PreflightCmd `cmd:"" help:"Inspect the input and output directories without exporting"`
	Watch     WatchCmd     `cmd:"" help:"Re-export on source changes and on a schedule"`
	History   HistoryCmd   `cmd:"" help:"List past export runs from the history database"`
	Init      InitCmd      `cmd:"" help:"Write a sample configuration file"`
	Compilers CompilersCmd `cmd:"" help:"Show how each extension is routed"`
}

// AfterApply runs after flag parsing; it installs a logger from the flags
// alone. Commands refine it once the configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	c.configureLogging(config.LoggingConfig{})
	return nil
}

// configureLogging installs the default slog logger. Flags win over the
// configuration file.
func (c *CLI) configureLogging(lc config.LoggingConfig) {
	level := config.NormalizeLogLevel(string(lc.Level))
	if c.LogLevel != "" {
		level = config.NormalizeLogLevel(c.LogLevel)
	}
	if c.Verbose {
		level = config.LogLevelDebug
	}
	format := config.NormalizeLogFormat(string(lc.Format))
	if c.LogFormat != "" {
		format = config.NormalizeLogFormat(c.LogFormat)
	}

	opts := &slog.HandlerOptions{Level: level.Slog()}
	var h slog.Handler
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(observability.NewContextHandler(h)))
}

// loadConfig reads the configuration file. A missing default file is not an
// error: the defaults apply with the working directory as input.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		if _, statErr := os.Stat(c.Config); errors.Is(statErr, fs.ErrNotExist) && isDefaultConfig(c.Config) {
			slog.Debug("No configuration file, using defaults", "path", c.Config)
			cfg = config.Default()
			cfg.Input = "."
			c.configureLogging(cfg.Logging)
			return cfg, nil
		}
		return nil, err
	}
	c.configureLogging(cfg.Logging)
	return cfg, nil
}

func isDefaultConfig(path string) bool {
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	return path == config.DefaultFile || path == filepath.Join(wd, config.DefaultFile)
}
