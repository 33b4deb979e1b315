// Package settings persists small operator preferences as JSON next to the
// dataset. Currently that is just the coder display names shown in the UI.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Settings holds the persisted preferences.
type Settings struct {
	CoderNames map[string]string `json:"coder_names"`
}

// Store reads and writes the settings file. A missing file is not an error;
// it simply means nothing has been customized yet.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store for the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load parses the settings file. When the file does not exist, zero-value
// settings are returned.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// SetCoderName stores a display name override for the given coder ID. An
// empty name removes the override.
func (s *Store) SetCoderName(coderID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return err
	}
	if settings.CoderNames == nil {
		settings.CoderNames = make(map[string]string)
	}
	if name == "" {
		delete(settings.CoderNames, coderID)
	} else {
		settings.CoderNames[coderID] = name
	}
	return s.save(settings)
}

func (s *Store) load() (Settings, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

func (s *Store) save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
