package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/lox/blackjack/internal/fileutil"
)

// Store persists a ledger save
type Store interface {
	Load(ctx context.Context) (Save, error)
	Save(ctx context.Context, s Save) error
	Reset(ctx context.Context) error
}

// FileStore keeps the save as a JSON file replaced atomically on write
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Save, error) {
	var save Save
	found, err := fileutil.ReadJSON(s.path, &save)
	if err != nil {
		return Save{}, err
	}
	if !found {
		return Save{}, ErrNotFound
	}
	return save, nil
}

func (s *FileStore) Save(ctx context.Context, save Save) error {
	if err := fileutil.WriteJSONAtomic(s.path, save, 0o644); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

func (s *FileStore) Reset(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing ledger: %w", err)
	}
	return nil
}
