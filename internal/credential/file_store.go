package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/teemow/dayplanner/internal/config"
)

// FileStore keeps one file per account in a directory, written atomically
// with mode 0600.
type FileStore struct {
	dir   string
	codec Codec
	mu    sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, enc *Encryption) *FileStore {
	return &FileStore{dir: dir, codec: Codec{Encryption: enc}}
}

func (s *FileStore) path(account string) (string, error) {
	if err := ValidateAccount(account); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, account+".json"), nil
}

// Load reads the account's credential file.
func (s *FileStore) Load(_ context.Context, account string) (Credential, error) {
	path, err := s.path(account)
	if err != nil {
		return Credential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credential file: %w", err)
	}
	return s.codec.Unmarshal(data)
}

// Save writes the account's credential file.
func (s *FileStore) Save(_ context.Context, account string, c Credential) error {
	path, err := s.path(account)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := config.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Delete removes the account's credential file.
func (s *FileStore) Delete(_ context.Context, account string) error {
	path, err := s.path(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete credential file: %w", err)
	}
	return nil
}
