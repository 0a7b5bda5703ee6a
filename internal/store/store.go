package store

import (
	"fmt"
	"os"
	"path/filepath"

	"ParHist/internal/histogram"
)

// Store persists one histogram record per retired worker, keyed by worker
// identity.
type Store interface {
	Persist(identity string, counts histogram.Counts) error
	Close() error
}

// FSStore writes one "<identity>.hist" file per result: 26 lines of
// "<letter>=<count>", a-z in order.
type FSStore struct {
	dir string
}

// NewFSStore creates the output directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

// Path returns the artifact path for a worker identity. Deterministic:
// the same identity always maps to the same file.
func (s *FSStore) Path(identity string) string {
	return filepath.Join(s.dir, identity+".hist")
}

func (s *FSStore) Persist(identity string, counts histogram.Counts) error {
	path := s.Path(identity)
	if err := os.WriteFile(path, counts.Lines(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *FSStore) Close() error {
	return nil
}
