// Package preflight inspects export directories without touching them. It
// reports what an export would run into: a missing input, an output that is
// a file, an output nested in the input, package manager folders that would
// be copied wholesale.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/ledger"
)

// Level is the severity of an Issue.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Issue is one finding.
type Issue struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// DependencyDirs are package manager folders looked for at the input root.
var DependencyDirs = []string{"node_modules", "bower_components", "vendor", "jspm_packages"}

// Report is the result of Inspect.
type Report struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`

	InputExists  bool `json:"input_exists"`
	InputIsDir   bool `json:"input_is_dir"`
	InputEmpty   bool `json:"input_empty"`
	OutputExists bool `json:"output_exists"`
	OutputIsDir  bool `json:"output_is_dir"`
	OutputEmpty  bool `json:"output_empty"`
	HasLedger    bool `json:"has_ledger"`
	// OutputInInput is set when the output directory lies inside the input
	// tree. Exports skip it, but it is usually a mistake.
	OutputInInput bool `json:"output_in_input"`
	// DependencyDirs lists the package manager folders found at the input root.
	DependencyDirs []string `json:"dependency_dirs,omitempty"`
	HasGitignore   bool     `json:"has_gitignore"`

	Issues []Issue `json:"issues,omitempty"`
}

// OK reports whether no error-level issue was found.
func (r *Report) OK() bool {
	for _, i := range r.Issues {
		if i.Level == LevelError {
			return false
		}
	}
	return true
}

func (r *Report) add(level Level, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Inspect examines inputDir and outputDir. Problems with the directories are
// issues in the report; the error is reserved for paths that cannot be
// resolved or stat'ed at all.
func Inspect(inputDir, outputDir string) (*Report, error) {
	in, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input directory: %w", err)
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	r := &Report{InputDir: in, OutputDir: out}

	if err := r.inspectInput(); err != nil {
		return nil, err
	}
	if err := r.inspectOutput(); err != nil {
		return nil, err
	}

	switch {
	case in == out:
		r.add(LevelError, "output directory is the input directory")
	case within(out, in):
		r.add(LevelError, "output directory %s contains the input directory", out)
	case within(in, out):
		r.OutputInInput = true
		r.add(LevelWarning, "output directory is inside the input directory; it will be skipped while walking")
	}
	return r, nil
}

func (r *Report) inspectInput() error {
	st, err := os.Stat(r.InputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.add(LevelError, "input directory %s does not exist", r.InputDir)
			return nil
		}
		return fmt.Errorf("stat input directory: %w", err)
	}
	r.InputExists = true
	if !st.IsDir() {
		r.add(LevelError, "input %s is not a directory", r.InputDir)
		return nil
	}
	r.InputIsDir = true

	entries, err := os.ReadDir(r.InputDir)
	if err != nil {
		return fmt.Errorf("read input directory: %w", err)
	}
	r.InputEmpty = len(entries) == 0
	if r.InputEmpty {
		r.add(LevelWarning, "input directory is empty")
	}
	for _, e := range entries {
		if e.Name() == ".gitignore" && !e.IsDir() {
			r.HasGitignore = true
		}
	}
	for _, name := range DependencyDirs {
		if st, err := os.Stat(filepath.Join(r.InputDir, name)); err == nil && st.IsDir() {
			r.DependencyDirs = append(r.DependencyDirs, name)
		}
	}
	if len(r.DependencyDirs) > 0 {
		hint := "add exclusions for them"
		if r.HasGitignore {
			hint = "enable respect_gitignore or add exclusions"
		}
		r.add(LevelWarning, "dependency folders would be exported: %s (%s)", strings.Join(r.DependencyDirs, ", "), hint)
	}
	return nil
}

func (r *Report) inspectOutput() error {
	st, err := os.Stat(r.OutputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.add(LevelInfo, "output directory %s will be created", r.OutputDir)
			return nil
		}
		return fmt.Errorf("stat output directory: %w", err)
	}
	r.OutputExists = true
	if !st.IsDir() {
		r.add(LevelError, "output %s is a file", r.OutputDir)
		return nil
	}
	r.OutputIsDir = true

	entries, err := os.ReadDir(r.OutputDir)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	r.OutputEmpty = len(entries) == 0
	if _, err := os.Stat(ledger.Path(r.OutputDir)); err == nil {
		r.HasLedger = true
	}
	if !r.OutputEmpty && !r.HasLedger {
		r.add(LevelWarning, "output directory is not empty and has no ledger; files not produced by the export will be deleted")
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
