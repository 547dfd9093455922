package config

import (
	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/export"
	"git.home.luguber.info/inful/pressroom/internal/foundation/normalization"
)

var actionNormalizer = normalization.NewNormalizer(map[string]export.Action{
	"exclude":     export.ActionExclude,
	"dontCompile": export.ActionDontCompile,
	"copy":        export.ActionDontCompile,
}, "")

var ruleTypeNormalizer = normalization.NewNormalizer(map[string]export.RuleType{
	"file":      export.RuleFile,
	"dir":       export.RuleDir,
	"directory": export.RuleDir,
}, "")

// normalize folds enumerations and canonicalizes extensions. Values
// that do not normalize are kept as written so Validate reports them.
func (c *Config) normalize() {
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))

	for i := range c.Exclusions {
		e := &c.Exclusions[i]
		if a, err := actionNormalizer.NormalizeWithError(string(e.Action)); err == nil {
			e.Action = a
		}
		if e.Type != "" {
			if t, err := ruleTypeNormalizer.NormalizeWithError(string(e.Type)); err == nil {
				e.Type = t
			}
		}
	}

	for i := range c.Compilers {
		cc := &c.Compilers[i]
		for j, ext := range cc.Extensions {
			cc.Extensions[j] = compiler.NormalizeExt(ext)
		}
		cc.Target = compiler.NormalizeExt(cc.Target)
	}
}
