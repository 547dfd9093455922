// Package luac runs compilers written in Lua. A script defines a global
// function render(source, filename, options) returning either a string or a
// table {result=, extension=, sourcemap=, dependencies={}}.
//
// Scripts run in a fresh interpreter per file with only the base, string,
// table and math libraries opened; they cannot touch the file system.
package luac

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/sourcemap"
)

const renderFunc = "render"

// Config describes one Lua compiler.
type Config struct {
	Name       string
	Version    string
	Extensions []string
	Target     string
	// Script is the path of the Lua source.
	Script string
}

// Compiler evaluates the configured script once per rendered file.
type Compiler struct {
	cfg  Config
	code string
}

// New loads and syntax-checks the script.
func New(cfg Config) (*Compiler, error) {
	if cfg.Name == "" {
		return nil, errors.New("lua compiler: name is required")
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("lua compiler %s: at least one extension is required", cfg.Name)
	}
	// #nosec G304 -- script path comes from the operator's configuration
	code, err := os.ReadFile(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("lua compiler %s: %w", cfg.Name, err)
	}
	return NewFromSource(cfg, string(code))
}

// NewFromSource builds a compiler from in-memory Lua source.
func NewFromSource(cfg Config, code string) (*Compiler, error) {
	L := newSandbox()
	defer L.Close()
	if err := L.DoString(code); err != nil {
		return nil, fmt.Errorf("lua compiler %s: %w", cfg.Name, err)
	}
	if _, ok := L.GetGlobal(renderFunc).(*lua.LFunction); !ok {
		return nil, fmt.Errorf("lua compiler %s: script does not define %s()", cfg.Name, renderFunc)
	}
	return &Compiler{cfg: cfg, code: code}, nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib(lua.BaseLibName, lua.OpenBase)
	openLib(lua.StringLibName, lua.OpenString)
	openLib(lua.TabLibName, lua.OpenTable)
	openLib(lua.MathLibName, lua.OpenMath)
	// base exposes file loaders
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (c *Compiler) Descriptor() compiler.Descriptor {
	return compiler.Descriptor{
		Name:       c.cfg.Name,
		Version:    c.cfg.Version,
		Extensions: append([]string(nil), c.cfg.Extensions...),
		Target:     c.cfg.Target,
	}
}

func (c *Compiler) Render(ctx context.Context, sourcePath string, opts compiler.Options) (*compiler.Result, error) {
	// #nosec G304 - sourcePath comes from the input tree walk
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	if err := L.DoString(c.code); err != nil {
		return nil, c.fail(sourcePath, err)
	}
	filename := opts.Filename
	if filename == "" {
		filename = sourcePath
	}
	err = L.CallByParam(lua.P{Fn: L.GetGlobal(renderFunc), NRet: 1, Protect: true},
		lua.LString(src), lua.LString(filename), optionsTable(L, opts))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(sourcePath, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return c.result(sourcePath, ret)
}

func optionsTable(L *lua.LState, opts compiler.Options) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("sourcemap", lua.LBool(opts.SourceMap))
	t.RawSetString("minify", lua.LBool(opts.Minify))
	targets := L.NewTable()
	for _, a := range opts.Autoprefix {
		targets.Append(lua.LString(a))
	}
	t.RawSetString("autoprefix", targets)
	return t
}

func (c *Compiler) result(sourcePath string, v lua.LValue) (*compiler.Result, error) {
	switch ret := v.(type) {
	case lua.LString:
		return &compiler.Result{Content: string(ret), Extension: compiler.NormalizeExt(c.cfg.Target)}, nil
	case *lua.LTable:
		res := &compiler.Result{
			Content:   lua.LVAsString(ret.RawGetString("result")),
			Extension: lua.LVAsString(ret.RawGetString("extension")),
		}
		if res.Extension == "" {
			res.Extension = compiler.NormalizeExt(c.cfg.Target)
		}
		if deps, ok := ret.RawGetString("dependencies").(*lua.LTable); ok {
			deps.ForEach(func(_, d lua.LValue) {
				if s, ok := d.(lua.LString); ok && s != "" {
					res.Dependencies = append(res.Dependencies, string(s))
				}
			})
		}
		if sm, ok := ret.RawGetString("sourcemap").(lua.LString); ok && sm != "" {
			m, err := sourcemap.Parse([]byte(sm))
			if err != nil {
				return nil, &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: err.Error(), Err: err}
			}
			res.SourceMap = m
		}
		return res, nil
	default:
		return nil, &compiler.Error{
			Compiler: c.cfg.Name,
			File:     sourcePath,
			Message:  fmt.Sprintf("%s() returned %s, want string or table", renderFunc, v.Type().String()),
		}
	}
}

func (c *Compiler) fail(sourcePath string, err error) error {
	msg := err.Error()
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	return &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: strings.TrimSpace(msg), Err: err}
}
