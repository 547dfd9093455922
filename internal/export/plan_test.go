package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/compiler"
	"git.home.luguber.info/inful/pressroom/internal/transform"
)

func TestMatcherRules(t *testing.T) {
	m, err := newMatcher(t.TempDir(), []Exclusion{
		{Path: "drafts/", Action: ActionExclude, Type: RuleDir},
		{Path: "notes/todo.md", Action: ActionExclude, Type: RuleFile},
		{Path: "*.tmp", Action: ActionExclude},
		{Path: "third_party", Action: ActionDontCompile, Type: RuleDir},
	}, false)
	require.NoError(t, err)

	tests := []struct {
		rel         string
		isDir       bool
		excluded    bool
		dontCompile bool
	}{
		{rel: "drafts", isDir: true, excluded: true},
		{rel: "drafts/a/b.md", excluded: true},
		{rel: "notes/todo.md", excluded: true},
		{rel: "notes/done.md"},
		{rel: "notes", isDir: true},
		{rel: "x/y/z.tmp", excluded: true},
		{rel: "third_party/lib.scss", dontCompile: true},
		{rel: "src/third_party.scss"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.excluded, m.excluded(tt.rel, tt.isDir))
			if !tt.isDir {
				assert.Equal(t, tt.dontCompile, m.dontCompile(tt.rel))
			}
		})
	}
}

func TestMatcherGitignore(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{".gitignore": "node_modules/\n*.log\n!keep.log\n/build\n"})

	m, err := newMatcher(dir, nil, true)
	require.NoError(t, err)
	assert.True(t, m.excluded("node_modules", true))
	assert.True(t, m.excluded("node_modules/pkg/index.js", false))
	assert.True(t, m.excluded("logs/app.log", false))
	assert.False(t, m.excluded("keep.log", false))
	assert.True(t, m.excluded("build/out.css", false))
	assert.False(t, m.excluded("src/index.js", false))
	assert.False(t, m.dontCompile("app.log"))

	off, err := newMatcher(dir, nil, false)
	require.NoError(t, err)
	assert.False(t, off.excluded("app.log", false))
}

func TestMatcherWithoutGitignoreFile(t *testing.T) {
	m, err := newMatcher(filepath.Join(t.TempDir(), "empty"), nil, true)
	require.NoError(t, err)
	assert.False(t, m.excluded("a.txt", false))
}

func TestExclusionValidate(t *testing.T) {
	assert.NoError(t, Exclusion{Path: "a", Action: ActionExclude}.Validate())
	assert.NoError(t, Exclusion{Path: "a", Action: ActionDontCompile, Type: RuleDir}.Validate())
	assert.Error(t, Exclusion{Action: ActionExclude}.Validate())
	assert.Error(t, Exclusion{Path: "a", Action: "drop"}.Validate())
	assert.Error(t, Exclusion{Path: "a", Action: ActionExclude, Type: "glob"}.Validate())
}

func TestPlannerDecide(t *testing.T) {
	reg, err := compiler.NewRegistry(&fakeSass{})
	require.NoError(t, err)
	m, err := newMatcher(t.TempDir(), []Exclusion{
		{Path: "skip.scss", Action: ActionExclude},
		{Path: "raw.scss", Action: ActionDontCompile},
		{Path: "raw.css", Action: ActionDontCompile},
	}, false)
	require.NoError(t, err)

	newPlanner := func(opts RunOptions) *planner {
		return &planner{registry: reg, minifier: transform.DefaultMinifier{}, matcher: m, opts: opts}
	}

	t.Run("compile", func(t *testing.T) {
		p := newPlanner(RunOptions{Compile: true, Minify: true, Autoprefix: []string{"last 2 versions"}})
		d := p.decide("css/site.SCSS")
		assert.Equal(t, handleCompile, d.handling)
		assert.Equal(t, "fakesass@1|minify|autoprefix=last 2 versions", d.identity)

		assert.Equal(t, handleSkip, p.decide("skip.scss").handling)
		assert.Equal(t, handleCopy, p.decide("raw.scss").handling)
		assert.Equal(t, handleCopy, p.decide("css/_partial.scss").handling)
		assert.Equal(t, handleMinify, p.decide("app.js").handling)
		assert.Equal(t, handleCopy, p.decide("raw.css").handling)
		assert.Equal(t, handleCopy, p.decide("logo.png").handling)
	})

	t.Run("compile disabled", func(t *testing.T) {
		p := newPlanner(RunOptions{})
		assert.Equal(t, handleCopy, p.decide("site.scss").handling)
		_, ok := p.identityOf("site.scss")
		assert.False(t, ok)
	})

	t.Run("minify only", func(t *testing.T) {
		p := newPlanner(RunOptions{Minify: true, SourceMaps: true})
		d := p.decide("app.js")
		assert.Equal(t, handleMinify, d.handling)
		id, ok := p.identityOf("app.js")
		assert.True(t, ok)
		assert.Equal(t, "|sourcemap|minify", id)
		assert.Equal(t, d.identity, id)
	})
}

func TestSourceCompanion(t *testing.T) {
	assert.Equal(t, "b.src.scss", sourceCompanion("b.scss"))
	assert.Equal(t, "css/site.src.scss", sourceCompanion("css/site.scss"))
	assert.Equal(t, "Makefile.src", sourceCompanion("Makefile"))
}

func TestIsWithin(t *testing.T) {
	root := filepath.FromSlash("/a/b")
	assert.True(t, isWithin(root, filepath.FromSlash("/a/b/c")))
	assert.True(t, isWithin(root, root))
	assert.False(t, isWithin(root, filepath.FromSlash("/a/bc")))
	assert.False(t, isWithin(root, filepath.FromSlash("/a")))
}
