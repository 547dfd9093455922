package export

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/text/unicode/norm"
)

type rule struct {
	exact   string
	pattern gitignore.Pattern
	action  Action
	dir     bool
}

func (r rule) matchPath(rel string, parts []string, isDir bool) bool {
	if rel == r.exact {
		return true
	}
	return r.pattern.Match(parts, isDir) == gitignore.Exclude
}

// matches reports whether r applies to rel. Directory rules apply to the
// directory itself and to everything below it.
func (r rule) matches(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	if !r.dir {
		return !isDir && r.matchPath(rel, parts, false)
	}
	n := len(parts)
	if !isDir {
		n--
	}
	for i := 1; i <= n; i++ {
		if r.matchPath(strings.Join(parts[:i], "/"), parts[:i], true) {
			return true
		}
	}
	return false
}

// matcher evaluates exclusion rules and, optionally, the input root's
// .gitignore against slash-separated relative paths.
type matcher struct {
	rules     []rule
	gitignore gitignore.Matcher
}

func newMatcher(inputDir string, exclusions []Exclusion, respectGitignore bool) (*matcher, error) {
	m := &matcher{}
	for _, e := range exclusions {
		p := normalizeRel(strings.Trim(filepath.ToSlash(e.Path), "/"))
		m.rules = append(m.rules, rule{
			exact:   p,
			pattern: gitignore.ParsePattern(p, nil),
			action:  e.Action,
			dir:     e.Type == RuleDir,
		})
	}
	if respectGitignore {
		patterns, err := readGitignore(filepath.Join(inputDir, ".gitignore"))
		if err != nil {
			return nil, err
		}
		if len(patterns) > 0 {
			m.gitignore = gitignore.NewMatcher(patterns)
		}
	}
	return m, nil
}

func readGitignore(path string) ([]gitignore.Pattern, error) {
	// #nosec G304 - fixed file name at the input root
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []gitignore.Pattern
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, gitignore.ParsePattern(line, nil))
	}
	return out, sc.Err()
}

func (m *matcher) has(rel string, isDir bool, action Action) bool {
	for _, r := range m.rules {
		if r.action == action && r.matches(rel, isDir) {
			return true
		}
	}
	if action == ActionExclude && m.gitignore != nil {
		parts := strings.Split(rel, "/")
		n := len(parts)
		if !isDir {
			if m.gitignore.Match(parts, false) {
				return true
			}
			n--
		}
		for i := 1; i <= n; i++ {
			if m.gitignore.Match(parts[:i], true) {
				return true
			}
		}
	}
	return false
}

// excluded reports whether rel is dropped from the output.
func (m *matcher) excluded(rel string, isDir bool) bool {
	return m.has(rel, isDir, ActionExclude)
}

// dontCompile reports whether rel must be copied instead of transformed.
func (m *matcher) dontCompile(rel string) bool {
	return m.has(rel, false, ActionDontCompile)
}

// normalizeRel canonicalizes a relative path for ledger and whitelist keys.
func normalizeRel(rel string) string {
	return norm.NFC.String(filepath.ToSlash(rel))
}
