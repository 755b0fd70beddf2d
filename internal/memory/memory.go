// Package memory keeps one append-only vector index of message summaries per
// session and answers nearest-neighbour queries over it.
package memory

import (
	"context"
	"errors"
)

// ErrDimension means a persisted index was built with a different embedding
// dimension than the running embedder produces. Such an index must be
// cleared and rebuilt.
var ErrDimension = errors.New("embedding dimension mismatch")

// ErrEmbed wraps failures of the embedding function.
var ErrEmbed = errors.New("embedding failed")

// Memory is a registry of per-session vector indexes.
//
// Read paths (Load, Search, Count, Summaries) treat a session that has never
// been written as empty. Insert summarizes the text, embeds the summary and
// makes the pair durable before returning.
type Memory interface {
	// Load materializes the session index. It is idempotent and invoked
	// implicitly by every other method.
	Load(ctx context.Context, sessionID string) error

	// Insert stores the summary of text and returns it.
	Insert(ctx context.Context, sessionID, text string) (string, error)

	// Search returns up to topK summaries nearest to query, nearest first.
	// Ties keep insertion order.
	Search(ctx context.Context, sessionID, query string, topK int) ([]string, error)

	// Count reports how many summaries the session holds.
	Count(ctx context.Context, sessionID string) (int, error)

	// Summaries returns all stored summaries in insertion order.
	Summaries(ctx context.Context, sessionID string) ([]string, error)

	// Clear removes the session index from disk and memory. Idempotent.
	Clear(ctx context.Context, sessionID string) error
}

// hit is a scored candidate. seq is the insertion position.
type hit struct {
	text string
	dist float32
	seq  int
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
