package ledger

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileName is the ledger sidecar stored in the output directory.
const FileName = ".pressroom-ledger.json"

// InputDigest is the digest of one file a record was built from.
type InputDigest struct {
	File string `json:"file"`
	SHA  string `json:"sha"`
}

// Record describes one compiled source and the artifacts it produced.
type Record struct {
	// Input is the source path relative to the input root, slash separated.
	Input string `json:"input"`
	// InputSHA lists the source itself followed by every dependency.
	// Paths are relative to the input root and may leave it.
	InputSHA []InputDigest `json:"inputSha"`
	// OutputSHA is the digest of the main artifact as written.
	OutputSHA string `json:"outputSha"`
	// Type is the transform identity.
	Type string `json:"type"`
	// Output lists artifacts relative to the output root. The main artifact is last.
	Output []string `json:"output"`
}

// Main returns the main artifact path.
func (r Record) Main() string {
	if len(r.Output) == 0 {
		return ""
	}
	return r.Output[len(r.Output)-1]
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	if err := checkContained(r.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if len(r.Output) == 0 {
		return errors.New("output is empty")
	}
	for _, o := range r.Output {
		if err := checkContained(o); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	self := false
	for _, d := range r.InputSHA {
		if d.File == "" || path.IsAbs(d.File) {
			return fmt.Errorf("inputSha: invalid file %q", d.File)
		}
		if d.File == r.Input {
			self = true
		}
	}
	if !self {
		return fmt.Errorf("inputSha does not contain %s", r.Input)
	}
	return nil
}

func checkContained(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	if path.IsAbs(p) || strings.Contains(p, "\\") {
		return fmt.Errorf("%q is not a relative slash path", p)
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%q escapes its root", p)
	}
	return nil
}

// Ledger is the ordered record set of one output directory.
type Ledger []Record

// Sort orders records by input path so equal runs serialize identically.
func (l Ledger) Sort() {
	sort.SliceStable(l, func(i, j int) bool { return l[i].Input < l[j].Input })
}

// Index maps input paths to records. Later duplicates win.
func (l Ledger) Index() map[string]Record {
	m := make(map[string]Record, len(l))
	for _, r := range l {
		m[r.Input] = r
	}
	return m
}
