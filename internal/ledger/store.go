package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Store loads and persists the ledger sidecar.
type Store struct {
	logger *slog.Logger
}

// NewStore returns a Store logging through logger (slog.Default when nil).
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Path returns the sidecar path for outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Load reads the ledger of outputDir. ok is false when there is no usable
// ledger: the file is missing, unparsable, or holds an invalid record. None
// of those are errors; the caller rebuilds everything.
func (s *Store) Load(outputDir string) (Ledger, bool) {
	p := Path(outputDir)
	// #nosec G304 - fixed file name under the export output directory
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Ledger unreadable, rebuilding", logfields.Path(p), logfields.Error(err))
		}
		return nil, false
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		s.logger.Warn("Ledger unparsable, rebuilding", logfields.Path(p), logfields.Error(err))
		return nil, false
	}
	for _, r := range l {
		if err := r.Validate(); err != nil {
			s.logger.Warn("Ledger holds an invalid record, rebuilding",
				logfields.Path(p), logfields.Input(r.Input), logfields.Error(err))
			return nil, false
		}
	}
	return l, true
}

// Persist replaces the sidecar with l. The document is written to a
// temporary file first and renamed over the old one.
func (s *Store) Persist(outputDir string, l Ledger) error {
	if l == nil {
		l = Ledger{}
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	p := Path(outputDir)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger to temporary file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	s.logger.Debug("Ledger persisted", logfields.Path(p), logfields.Count(len(l)))
	return nil
}
