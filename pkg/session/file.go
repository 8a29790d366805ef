package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileStore keeps logins as one JSON file per login under a base directory.
// The directory is created with 0700 and files with 0600; they hold live
// tokens.
type FileStore struct {
	mu      sync.Mutex
	fs      afero.Fs
	baseDir string
}

// NewFileStore opens a store rooted at baseDir, creating it if necessary.
// A nil fsys means the OS filesystem; an empty baseDir means
// ~/.config/devpi-client/sessions.
func NewFileStore(fsys afero.Fs, baseDir string) (*FileStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "devpi-client", "sessions")
	}
	if err := fsys.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{fs: fsys, baseDir: baseDir}, nil
}

func (s *FileStore) loginPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// Get loads a login by ID. Missing and expired logins both come back as
// nil, nil; an expired login's file is removed on the way.
func (s *FileStore) Get(ctx context.Context, id string) (*Login, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.loginPath(id)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read login %s: %w", id, err)
	}

	var login Login
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, fmt.Errorf("parse login %s: %w", id, err)
	}
	if login.IsExpired() {
		s.fs.Remove(path)
		return nil, nil
	}
	return &login, nil
}

// Set writes a login, replacing any previous one with the same ID.
func (s *FileStore) Set(ctx context.Context, login *Login) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(login, "", "  ")
	if err != nil {
		return fmt.Errorf("encode login %s: %w", login.ID, err)
	}
	if err := afero.WriteFile(s.fs, s.loginPath(login.ID), data, 0600); err != nil {
		return fmt.Errorf("write login %s: %w", login.ID, err)
	}
	return nil
}

// Delete removes a login. Deleting a login that does not exist is not an
// error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.loginPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove login %s: %w", id, err)
	}
	return nil
}

// Cleanup removes every expired login in the store. Unreadable files are
// skipped, not failed on.
func (s *FileStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			continue
		}
		var login Login
		if err := json.Unmarshal(data, &login); err != nil {
			continue
		}
		if now.After(login.ExpiresAt) {
			s.fs.Remove(path)
		}
	}
	return nil
}

// Path returns the base directory holding the session files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
