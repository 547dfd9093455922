package transform

import (
	"regexp"
	"strings"
)

// Autoprefixer adds vendor-prefixed declarations to a stylesheet for the
// given browser targets. An empty target list is a no-op.
type Autoprefixer interface {
	Prefix(css string, targets []string) (string, error)
}

// prefixTable maps standard properties to the vendor prefixes still needed
// by at least one commonly targeted browser.
var prefixTable = map[string][]string{
	"appearance":           {"-webkit-", "-moz-"},
	"backdrop-filter":      {"-webkit-"},
	"box-decoration-break": {"-webkit-"},
	"hyphens":              {"-webkit-", "-ms-"},
	"mask":                 {"-webkit-"},
	"mask-image":           {"-webkit-"},
	"print-color-adjust":   {"-webkit-"},
	"tab-size":             {"-moz-"},
	"text-size-adjust":     {"-webkit-", "-moz-", "-ms-"},
	"user-select":          {"-webkit-", "-moz-", "-ms-"},
}

var declPattern = regexp.MustCompile(`([{;]\s*)(appearance|backdrop-filter|box-decoration-break|hyphens|mask-image|mask|print-color-adjust|tab-size|text-size-adjust|user-select)(\s*:[^;{}]*)`)

// TablePrefixer is the built-in Autoprefixer. Prefixed declarations are
// inserted on the same line as the original so line mappings stay valid.
type TablePrefixer struct{}

func (TablePrefixer) Prefix(css string, targets []string) (string, error) {
	if len(targets) == 0 {
		return css, nil
	}
	vendors := vendorsFor(targets)
	out := declPattern.ReplaceAllStringFunc(css, func(m string) string {
		parts := declPattern.FindStringSubmatch(m)
		lead, prop, rest := parts[1], parts[2], parts[3]
		var b strings.Builder
		b.WriteString(lead)
		for _, p := range prefixTable[prop] {
			if !vendors[p] {
				continue
			}
			b.WriteString(p)
			b.WriteString(prop)
			b.WriteString(strings.TrimSpace(rest))
			b.WriteString(";")
		}
		b.WriteString(prop)
		b.WriteString(rest)
		return b.String()
	})
	return out, nil
}

// vendorsFor narrows the prefix set to the engines a target list names.
// Targets that name no known engine enable every prefix.
func vendorsFor(targets []string) map[string]bool {
	v := map[string]bool{}
	for _, t := range targets {
		t = strings.ToLower(t)
		switch {
		case strings.Contains(t, "firefox"), strings.Contains(t, "ff "):
			v["-moz-"] = true
		case strings.Contains(t, "safari"), strings.Contains(t, "chrome"), strings.Contains(t, "edge"),
			strings.Contains(t, "ios"), strings.Contains(t, "android"), strings.Contains(t, "opera"):
			v["-webkit-"] = true
		case strings.Contains(t, "ie "), strings.Contains(t, "explorer"):
			v["-ms-"] = true
		default:
			v["-webkit-"], v["-moz-"], v["-ms-"] = true, true, true
		}
	}
	return v
}
