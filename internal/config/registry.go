package config

import (
	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/compiler/execc"
	"git.home.luguber.info/inful/pressroom/internal/compiler/luac"
	"git.home.luguber.info/inful/pressroom/internal/compiler/markdown"
	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// BuildRegistry instantiates the configured compilers. Two compilers
// claiming one extension is a configuration error.
func (c *Config) BuildRegistry() (*compiler.Registry, error) {
	var compilers []compiler.Compiler
	if c.Markdown {
		compilers = append(compilers, markdown.New())
	}
	for _, cc := range c.Compilers {
		comp, err := cc.build()
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid compiler").WithContext("compiler", cc.Name).Build()
		}
		compilers = append(compilers, comp)
	}
	reg, err := compiler.NewRegistry(compilers...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid compiler set").Build()
	}
	return reg, nil
}

func (cc CompilerConfig) build() (compiler.Compiler, error) {
	if cc.Script != "" {
		return luac.New(luac.Config{
			Name:       cc.Name,
			Version:    cc.Version,
			Extensions: cc.Extensions,
			Target:     cc.Target,
			Script:     cc.Script,
		})
	}
	return execc.New(execc.Config{
		Name:       cc.Name,
		Version:    cc.Version,
		Extensions: cc.Extensions,
		Target:     cc.Target,
		Command:    cc.Command,
		Protocol:   execc.Protocol(cc.Protocol),
		Dir:        cc.Dir,
		Env:        cc.Env,
	})
}
