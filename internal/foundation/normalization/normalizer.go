// Package normalization maps loosely written configuration values onto enum
// types. Keys compare case-insensitively and ignore '-', '_' and spaces, so
// "dontCompile", "dont-compile" and "DONT_COMPILE" are the same key.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer provides type-safe string-to-enum normalization with error handling.
type Normalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
	keys         []string // sorted, for error messages
}

// NewNormalizer creates a normalizer from raw spellings to values. Spellings
// that fold to the same key must map to the same value.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	n := &Normalizer[T]{values: make(map[string]T, len(values)), defaultValue: defaultValue}
	for k, v := range values {
		key := Key(k)
		if _, dup := n.values[key]; !dup {
			n.keys = append(n.keys, key)
		}
		n.values[key] = v
	}
	sort.Strings(n.keys)
	return n
}

// Normalize returns the value raw names, or the default when it names none.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[Key(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// NormalizeWithError is Normalize without the fallback.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	if v, ok := n.values[Key(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(n.keys, ", "))
}

// ValidKeys returns the folded keys the normalizer accepts.
func (n *Normalizer[T]) ValidKeys() []string {
	return append([]string(nil), n.keys...)
}

// Key folds s for comparison.
func Key(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
