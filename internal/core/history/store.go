package history

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no snapshot exists for an agent.
var ErrNotFound = errors.New("history not found")

// Store persists history snapshots outside the process. The core keeps
// history in memory only; a Store is how the simulation exports it.
type Store interface {
	// Save replaces the stored snapshot for agentID with entries.
	Save(ctx context.Context, agentID string, entries []Entry) error
	// Load returns the stored snapshot for agentID, oldest first.
	// Returns ErrNotFound if none exists.
	Load(ctx context.Context, agentID string) ([]Entry, error)
	// Agents returns the ids with a stored snapshot, sorted.
	Agents(ctx context.Context) ([]string, error)
	// Close releases any resources held by the store.
	Close() error
}
