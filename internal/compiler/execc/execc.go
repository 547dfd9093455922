// Package execc adapts an external command to the compiler interface. The
// command receives the source path as an argument and the run options in its
// environment, and answers on stdout.
package execc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/sourcemap"
)

// Protocol selects how stdout is interpreted.
type Protocol string

const (
	// ProtocolRaw takes stdout verbatim as the artifact.
	ProtocolRaw Protocol = "raw"
	// ProtocolJSON decodes stdout as a Response document.
	ProtocolJSON Protocol = "json"
)

// Environment variables exported to the command.
const (
	EnvSourceMap  = "PRESSROOM_SOURCEMAP"
	EnvMinify     = "PRESSROOM_MINIFY"
	EnvAutoprefix = "PRESSROOM_AUTOPREFIX"
	EnvFilename   = "PRESSROOM_FILENAME"
)

// Config describes one external compiler.
type Config struct {
	Name       string
	Version    string
	Extensions []string
	Target     string
	// Command is the argv. "{input}" and "{output_ext}" are substituted.
	Command  []string
	Protocol Protocol
	Dir      string
	Env      map[string]string
}

// Response is the stdout document of the json protocol.
type Response struct {
	Result       string          `json:"result"`
	Extension    string          `json:"extension,omitempty"`
	SourceMap    json.RawMessage `json:"sourcemap,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Error        *ResponseError  `json:"error,omitempty"`
}

// ResponseError lets a json-protocol command report a located failure.
type ResponseError struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Compiler runs Config.Command once per source file.
type Compiler struct {
	cfg Config
}

// New validates cfg and returns a compiler for it.
func New(cfg Config) (*Compiler, error) {
	if cfg.Name == "" {
		return nil, errors.New("exec compiler: name is required")
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("exec compiler %s: command is required", cfg.Name)
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("exec compiler %s: at least one extension is required", cfg.Name)
	}
	switch cfg.Protocol {
	case "":
		cfg.Protocol = ProtocolRaw
	case ProtocolRaw, ProtocolJSON:
	default:
		return nil, fmt.Errorf("exec compiler %s: unknown protocol %q", cfg.Name, cfg.Protocol)
	}
	return &Compiler{cfg: cfg}, nil
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
	outExt := compiler.NormalizeExt(c.cfg.Target)
	args := make([]string, len(c.cfg.Command))
	for i, a := range c.cfg.Command {
		a = strings.ReplaceAll(a, "{input}", sourcePath)
		args[i] = strings.ReplaceAll(a, "{output_ext}", outExt)
	}

	// #nosec G204 -- argv comes from the operator's configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = c.environ(opts)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: msg, Err: err}
	}

	if c.cfg.Protocol == ProtocolRaw {
		return &compiler.Result{Content: stdout.String(), Extension: outExt}, nil
	}
	return c.decode(sourcePath, stdout.Bytes())
}

func (c *Compiler) decode(sourcePath string, data []byte) (*compiler.Result, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: "invalid json response: " + err.Error(), Err: err}
	}
	if resp.Error != nil {
		file := resp.Error.File
		if file == "" {
			file = sourcePath
		}
		return nil, &compiler.Error{
			Compiler: c.cfg.Name,
			File:     file,
			Line:     resp.Error.Line,
			Column:   resp.Error.Column,
			Message:  resp.Error.Message,
		}
	}
	res := &compiler.Result{
		Content:      resp.Result,
		Extension:    resp.Extension,
		Dependencies: resp.Dependencies,
	}
	if res.Extension == "" {
		res.Extension = compiler.NormalizeExt(c.cfg.Target)
	}
	if raw := bytes.TrimSpace(resp.SourceMap); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		// the map may be embedded as an object or as a JSON string
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: "invalid sourcemap: " + err.Error(), Err: err}
			}
			raw = []byte(s)
		}
		m, err := sourcemap.Parse(raw)
		if err != nil {
			return nil, &compiler.Error{Compiler: c.cfg.Name, File: sourcePath, Message: err.Error(), Err: err}
		}
		res.SourceMap = m
	}
	return res, nil
}

func (c *Compiler) environ(opts compiler.Options) []string {
	env := os.Environ()
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}
	return append(env,
		EnvSourceMap+"="+boolString(opts.SourceMap),
		EnvMinify+"="+boolString(opts.Minify),
		EnvAutoprefix+"="+strings.Join(opts.Autoprefix, ","),
		EnvFilename+"="+opts.Filename,
	)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
