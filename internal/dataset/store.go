package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store owns the dataset file. Reads parse the file fresh on every call so
// out-of-band edits are picked up; mutations run load-modify-rewrite under a
// single writer lock and land via an atomic rename, so a crash mid-write
// never truncates the dataset.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore returns a store for the CSV at path. The file is not touched
// until Initialize or the first operation.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the dataset file.
func (s *Store) Path() string {
	return s.path
}

// Initialize loads the dataset, normalizes it for the given coder roster and
// rewrites the file when normalization changed anything. A missing file is
// reported as-is so the caller can refuse to start.
func (s *Store) Initialize(coderColumns map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	table, err := Parse(raw)
	if err != nil {
		return err
	}
	if err := table.Normalize(coderColumns); err != nil {
		return err
	}

	encoded, err := table.Encode()
	if err != nil {
		return err
	}
	if string(encoded) == string(raw) {
		return nil
	}
	return s.persist(encoded)
}

// Load parses the current file into a Table.
func (s *Store) Load() (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Raw returns the file bytes verbatim, for download.
func (s *Store) Raw() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return raw, nil
}

// SetLabel writes label into the coder's column at row and rewrites the
// file. The column is created on demand when a coder labels for the first
// time. label must be non-empty; clearing goes through ClearLabel.
func (s *Store) SetLabel(column string, row int, label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("set label: empty label")
	}
	return s.update(column, row, label)
}

// ClearLabel empties the coder's column at row and rewrites the file.
func (s *Store) ClearLabel(column string, row int) error {
	return s.update(column, row, "")
}

func (s *Store) update(column string, row int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.load()
	if err != nil {
		return err
	}
	if err := table.SetCell(row, column, value); err != nil {
		return err
	}
	encoded, err := table.Encode()
	if err != nil {
		return err
	}
	return s.persist(encoded)
}

// Replace swaps the whole dataset for table, used when a new CSV is
// uploaded. The caller normalizes before handing the table over.
func (s *Store) Replace(table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := table.Encode()
	if err != nil {
		return err
	}
	return s.persist(encoded)
}

func (s *Store) load() (*Table, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(raw)
}

// persist writes data next to the dataset and renames it into place.
func (s *Store) persist(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
