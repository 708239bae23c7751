package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"

	"main/internal/cache"
)

// FileStore keeps the latest snapshot as one JSON file. Save writes to a
// temp file and renames, so a crash mid-write never corrupts the previous
// snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a file store and ensures the parent directory exists.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: snapshot path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

// Save persists the snapshot atomically.
func (s *FileStore) Save(_ context.Context, snap cache.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return os.Rename(tmp, s.path)
}

// Load reads the stored snapshot.
func (s *FileStore) Load(_ context.Context) (cache.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cache.Snapshot{}, ErrNoSnapshot
		}
		return cache.Snapshot{}, err
	}
	var snap cache.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return cache.Snapshot{}, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
