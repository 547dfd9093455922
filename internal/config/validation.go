package config

import (
	"fmt"

	"git.home.luguber.info/inful/pressroom/internal/compiler/execc"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	if c.Output == "" {
		return ferrors.ConfigError("output directory is required").Build()
	}
	if c.Workers < 0 {
		return ferrors.ConfigError("workers must not be negative").WithContext("workers", c.Workers).Build()
	}
	for i, e := range c.Exclusions {
		if err := e.Validate(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid exclusion").WithContext("index", i).Build()
		}
	}
	if err := c.validateCompilers(); err != nil {
		return err
	}
	if r := c.Events.NATSRetry; r.MaxRetries < 0 || r.Initial < 0 || r.Max < 0 {
		return ferrors.ConfigError("nats_retry values must not be negative").Build()
	}
	if c.Watch.Debounce < 0 || c.Watch.Every < 0 {
		return ferrors.ConfigError("watch durations must not be negative").Build()
	}
	return nil
}

func (c *Config) validateCompilers() error {
	names := map[string]struct{}{}
	if c.Markdown {
		names["markdown"] = struct{}{}
	}
	for i, cc := range c.Compilers {
		fail := func(msg string) error {
			return ferrors.ConfigError(msg).WithContext("compiler", cc.Name).WithContext("index", i).Build()
		}
		if cc.Name == "" {
			return fail("compiler name is required")
		}
		if _, dup := names[cc.Name]; dup {
			return fail(fmt.Sprintf("compiler %q defined twice", cc.Name))
		}
		names[cc.Name] = struct{}{}
		if len(cc.Extensions) == 0 {
			return fail("compiler claims no extensions")
		}
		switch {
		case len(cc.Command) == 0 && cc.Script == "":
			return fail("compiler needs a command or a script")
		case len(cc.Command) > 0 && cc.Script != "":
			return fail("compiler has both a command and a script")
		}
		switch execc.Protocol(cc.Protocol) {
		case "", execc.ProtocolRaw, execc.ProtocolJSON:
		default:
			return fail(fmt.Sprintf("unknown protocol %q", cc.Protocol))
		}
	}
	return nil
}
