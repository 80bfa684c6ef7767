package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Load and Delete for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence (in-memory, SQLite, etc.). The store
// does not interpret session contents; it is a blind keeper keyed by id.
// Implementations must be safe for concurrent access to distinct ids.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	Delete(id string) error
	List() ([]Info, error)
	Close() error
}

// Info is a lightweight summary of a saved session (for listing).
type Info struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    int
	Messages  int
	Completed bool
}
