package export

import (
	"fmt"
	"runtime"
	"time"
)

// Action is what an exclusion rule does to the files it matches.
type Action string

const (
	// ActionExclude drops matching files from the output entirely.
	ActionExclude Action = "exclude"
	// ActionDontCompile copies matching files verbatim.
	ActionDontCompile Action = "dontCompile"
)

// RuleType selects whether a rule names files or whole directories.
type RuleType string

const (
	RuleFile RuleType = "file"
	RuleDir  RuleType = "dir"
)

// Exclusion is one exclusion rule. Path is a slash path relative to the input
// root or a gitignore-style pattern.
type Exclusion struct {
	Path   string   `yaml:"path" json:"path"`
	Action Action   `yaml:"action" json:"action"`
	Type   RuleType `yaml:"type" json:"type"`
}

// Validate rejects unknown actions and types.
func (e Exclusion) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("exclusion path is empty")
	}
	switch e.Action {
	case ActionExclude, ActionDontCompile:
	default:
		return fmt.Errorf("exclusion %q: unknown action %q", e.Path, e.Action)
	}
	switch e.Type {
	case RuleFile, RuleDir, "":
	default:
		return fmt.Errorf("exclusion %q: unknown type %q", e.Path, e.Type)
	}
	return nil
}

// RunOptions configures one export run.
type RunOptions struct {
	Compile    bool
	Minify     bool
	SourceMaps bool
	// Autoprefix lists browser targets; empty disables autoprefixing.
	Autoprefix       []string
	Exclusions       []Exclusion
	RespectGitignore bool
	// Workers bounds concurrent per-file work; zero means runtime.NumCPU.
	Workers int
}

func (o RunOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Result summarizes a successful run.
type Result struct {
	// Files is the number of source files processed.
	Files    int
	Compiled int
	Reused   int
	Copied   int
	Minified int
	Removed  int
	Duration time.Duration
}
