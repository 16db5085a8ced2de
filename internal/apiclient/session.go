package apiclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session stores the bearer token between requests.
type Session interface {
	Token() string
	SetToken(token string) error
	Clear() error
}

// MemorySession keeps the token in memory only.
type MemorySession struct {
	mu    sync.RWMutex
	token string
}

// NewMemorySession returns a session holding token.
func NewMemorySession(token string) *MemorySession {
	return &MemorySession{token: token}
}

func (s *MemorySession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemorySession) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemorySession) Clear() error {
	return s.SetToken("")
}

// sessionFile is the on-disk form of a FileSession.
type sessionFile struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	SavedAt     time.Time `json:"saved_at"`
}

// FileSession persists the token to a JSON file readable only by the owner.
type FileSession struct {
	mu    sync.RWMutex
	path  string
	token string
}

// NewFileSession opens the session stored at path. A missing file is an
// empty session.
func NewFileSession(path string) (*FileSession, error) {
	s := &FileSession{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var stored sessionFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	s.token = stored.AccessToken
	return s, nil
}

// Path returns the session file location.
func (s *FileSession) Path() string {
	return s.path
}

func (s *FileSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores token and writes the session file.
func (s *FileSession) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sessionFile{
		AccessToken: token,
		TokenType:   "bearer",
		SavedAt:     time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	s.token = token
	return nil
}

// Clear forgets the token and removes the session file.
func (s *FileSession) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
