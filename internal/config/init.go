package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

const sample = `# pressroom configuration
input: ./src
output: ./build

compile: true
minify: false
sourcemaps: false
# browser targets for CSS vendor prefixes; false disables
autoprefix: false
respect_gitignore: true
# 0 uses one worker per CPU
workers: 0

exclusions:
  - path: node_modules
    action: exclude
    type: dir
  - path: vendor
    action: dontCompile
    type: dir

# built-in goldmark Markdown compiler for .md and .markdown
markdown: true

compilers:
  # - name: sass
  #   version: "1.77"
  #   extensions: [.scss, .sass]
  #   target: .css
  #   protocol: raw
  #   command: [sass, --no-source-map, "{input}"]
  # - name: banner
  #   extensions: [.txt]
  #   script: ./compilers/banner.lua

events:
  history_db: ./.pressroom/history.db
  nats_url: ${PRESSROOM_NATS_URL}
  nats_subject: pressroom.events
  nats_retry:
    mode: linear
    initial: 500ms
    max: 5s
    max_retries: 2

watch:
  debounce: 500ms
  every: 0s
  metrics_addr: ""

logging:
  level: info
  format: text
`

// Init writes a sample configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).Build()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat configuration file").Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create configuration directory").Build()
	}
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write configuration file").
			WithContext("path", path).Build()
	}
	return nil
}
