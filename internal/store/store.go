package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

// Store keeps the operator settings in a JSON file.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the saved settings. ok is false when nothing has been saved yet.
func (s *Store) Load() (settings model.Settings, ok bool, err error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&settings); err != nil {
		return model.Settings{}, false, err
	}
	return settings, true, nil
}

// Save writes through a temp file and renames it so a crash never leaves a
// half-written settings file.
func (s *Store) Save(settings model.Settings) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(settings); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}
