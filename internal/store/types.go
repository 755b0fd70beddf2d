package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session is not in the catalog.
var ErrNotFound = errors.New("not found")

// Session is a catalog entry. The conversation itself lives in the
// transcript and vector stores under the same Key.
type Session struct {
	Key         string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Storage defines the interface for persistence
type Storage interface {
	// Session catalog
	// EnsureSession returns the session for key, creating it when missing.
	EnsureSession(key, displayName string) (*Session, bool, error)
	GetSession(key string) (*Session, error)
	ListSessions() ([]*Session, error)
	TouchSession(key string) error
	DeleteSession(key string) error

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
	ListConfig() (map[string]string, error)
	DeleteConfig(key string) error

	Close() error
}
