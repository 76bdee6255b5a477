// Package credstore persists the signed-in user's provider credential so a
// restarted process can restore the session.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Credential is what a remote identity provider needs to restore a session.
type Credential struct {
	// Provider is the backend that issued the credential ("firebase", "oidc").
	Provider string `json:"provider"`

	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`

	// IDToken and RefreshToken are secrets; the file is written 0600.
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// Expiry is when IDToken expires.
	Expiry time.Time `json:"expiry,omitempty"`

	SavedAt time.Time `json:"saved_at"`
}

// Store loads and saves a single credential.
type Store interface {
	Load() (*Credential, error)
	Save(c *Credential) error
	Clear() error
}

// File is a Store backed by one JSON file.
type File struct {
	path string
}

var _ Store = (*File)(nil)

// NewFile returns a Store writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the credential. It returns nil, nil when none is stored.
func (f *File) Load() (*Credential, error) {
	if f.path == "" {
		return nil, fmt.Errorf("credential file path is empty")
	}

	data, err := os.ReadFile(filepath.Clean(f.path)) // #nosec G304 -- path from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if c.UserID == "" && c.Email == "" {
		return nil, fmt.Errorf("credential file has no user")
	}

	return &c, nil
}

// Save writes c atomically with 0600 permissions: the data goes to a temp
// file in the same directory which is then renamed over the target.
func (f *File) Save(c *Credential) error {
	if f.path == "" {
		return fmt.Errorf("credential file path is empty")
	}
	if c == nil {
		return fmt.Errorf("credential is nil")
	}

	saved := *c
	if saved.SavedAt.IsZero() {
		saved.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(&saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	slog.Debug("wrote credential file", "path", f.path, "provider", saved.Provider)
	return nil
}

// Clear removes the stored credential. A missing file is not an error.
func (f *File) Clear() error {
	if f.path == "" {
		return fmt.Errorf("credential file path is empty")
	}

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}

	slog.Debug("removed credential file", "path", f.path)
	return nil
}
