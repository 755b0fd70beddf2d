// Package transcript keeps the ordered, durable log of turns for each session.
package transcript

import (
	"context"
	"fmt"
)

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one role-tagged message.
type Turn struct {
	Role    Role   `json:"role"`
	Message string `json:"message"`
}

// Store persists transcripts. Turns keep insertion order and are never
// mutated; the only removal is Clear of a whole session.
type Store interface {
	// Append adds a turn to the end of the session's transcript.
	Append(ctx context.Context, sessionID string, role Role, message string) error

	// Recent returns the last limit turns in original order.
	// A session without a transcript yields an empty slice.
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// LoadAll returns the full transcript.
	LoadAll(ctx context.Context, sessionID string) ([]Turn, error)

	// Clear deletes the durable transcript. Clearing a missing session succeeds.
	Clear(ctx context.Context, sessionID string) error
}

// ErrInvalidRole is returned by Append for roles outside the enumerated set.
type ErrInvalidRole struct {
	Role Role
}

func (e ErrInvalidRole) Error() string {
	return fmt.Sprintf("invalid transcript role %q", string(e.Role))
}

// Tail returns the last limit turns of turns.
func Tail(turns []Turn, limit int) []Turn {
	if limit <= 0 {
		return []Turn{}
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
