package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// envFiles are loaded in order; a variable already set is never overwritten,
// so .env.local takes precedence over .env and the process environment over both.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads the .env files found in dir and returns the ones loaded.
func loadEnvFiles(dir string) []string {
	var loaded []string
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load env file", logfields.Path(p), logfields.Error(err))
			continue
		}
		slog.Debug("Loaded environment variables", logfields.Path(p))
		loaded = append(loaded, p)
	}
	return loaded
}
