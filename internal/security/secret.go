package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// secretBytes is the entropy of the server secret before hex encoding.
const secretBytes = 32

// SecretStore owns the bearer secret of the local API. The value lives in
// memory and in a 0600 file; Rotate replaces both, and the old value stops
// matching immediately.
type SecretStore struct {
	path string

	mu      sync.RWMutex
	current string

	// onChange is called with the new value after Ensure or Rotate.
	onChange func(string)
}

// NewSecretStore returns a store backed by path. onChange, if non-nil, is
// notified whenever the active secret changes (the redactor uses it).
func NewSecretStore(path string, onChange func(string)) *SecretStore {
	return &SecretStore{path: path, onChange: onChange}
}

// Ensure loads the secret from disk, generating and persisting a new one
// when the file is missing or empty.
func (s *SecretStore) Ensure() (string, error) {
	raw, err := os.ReadFile(s.path)
	switch {
	case err == nil && strings.TrimSpace(string(raw)) != "":
		s.set(strings.TrimSpace(string(raw)))
		return s.Current(), nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("security: reading secret: %w", err)
	}
	return s.Rotate()
}

// Current returns the active secret.
func (s *SecretStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Rotate generates a new secret, persists it, and swaps it in.
func (s *SecretStore) Rotate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: generating secret: %w", err)
	}
	next := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("security: secret directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(next+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("security: writing secret: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("security: writing secret: %w", err)
	}

	s.set(next)
	return next, nil
}

// Verify reports whether candidate equals the active secret, in constant time.
func (s *SecretStore) Verify(candidate string) bool {
	cur := s.Current()
	if cur == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(cur)) == 1
}

func (s *SecretStore) set(v string) {
	s.mu.Lock()
	s.current = v
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(v)
	}
}
