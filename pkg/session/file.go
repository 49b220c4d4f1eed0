// Package session resolves the identity behind the current session, either from
// the CLI's saved session file or from a bearer token carried in the request context.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionDirName   = ".donornet/sessions"
	sessionFilePerms = 0600 // Read/write for owner only
	sessionDirPerms  = 0700 // Read/write/execute for owner only
)

// Saved is the session persisted between CLI invocations
type Saved struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the saved session has passed its expiry
func (s *Saved) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FileStore keeps one saved session per environment
type FileStore struct {
	dir string
	env string
}

// NewFileStore stores sessions under ~/.donornet/sessions
func NewFileStore(env string) (*FileStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewFileStoreAt(filepath.Join(homeDir, sessionDirName), env), nil
}

// NewFileStoreAt stores sessions in dir
func NewFileStoreAt(dir, env string) *FileStore {
	return &FileStore{dir: dir, env: env}
}

// Path returns the session file for the store's environment
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, fmt.Sprintf("session-%s.json", f.env))
}

// Load returns the saved session, or nil if there is none
func (f *FileStore) Load() (*Saved, error) {
	data, err := os.ReadFile(f.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Saved
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &s, nil
}

// Save writes the session with owner-only permissions
func (f *FileStore) Save(s *Saved) error {
	if err := os.MkdirAll(f.dir, sessionDirPerms); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(f.Path(), data, sessionFilePerms); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Delete removes the saved session. A missing file is not an error.
func (f *FileStore) Delete() error {
	if err := os.Remove(f.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
