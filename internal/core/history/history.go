// Package history defines the per-agent audit log of sent, received and
// processed messages.
package history

import (
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// Direction says whether the owning agent sent or received the message.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Outcome records how far a message got.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one audit record.
type Entry struct {
	Seq       uint64            `json:"seq"`
	AgentID   string            `json:"agent_id"`
	Message   messaging.Message `json:"message"`
	Direction Direction         `json:"direction"`
	Outcome   Outcome           `json:"outcome"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Prev      string            `json:"prev,omitempty"`
	Digest    string            `json:"digest"`
}

// Failed returns true if handling the message failed.
func (e *Entry) Failed() bool {
	return e.Outcome == OutcomeFailed
}

// Reader is the read-only view of a history handed to reporting code.
type Reader interface {
	// AgentID returns the owner of the history.
	AgentID() string
	// Entries returns a copy of every entry, oldest first.
	Entries() []Entry
	// EntriesSince returns entries stamped at or after t, oldest first.
	EntriesSince(t time.Time) []Entry
	// EntriesForCorrelation returns entries whose message id or
	// correlation id equals id, oldest first.
	EntriesForCorrelation(id string) []Entry
	// Len returns the number of entries.
	Len() int
	// Verify checks the digest chain.
	Verify() error
}

// Snapshot is a Reader over a fixed set of entries, typically loaded
// back from a Store.
type Snapshot struct {
	agentID string
	entries []Entry
}

// NewSnapshot wraps entries. The slice is copied.
func NewSnapshot(agentID string, entries []Entry) *Snapshot {
	return &Snapshot{agentID: agentID, entries: append([]Entry(nil), entries...)}
}

func (s *Snapshot) AgentID() string  { return s.agentID }
func (s *Snapshot) Entries() []Entry { return append([]Entry(nil), s.entries...) }
func (s *Snapshot) Len() int         { return len(s.entries) }
func (s *Snapshot) Verify() error    { return VerifyChain(s.entries) }

func (s *Snapshot) EntriesSince(t time.Time) []Entry {
	return since(s.entries, t)
}

func (s *Snapshot) EntriesForCorrelation(id string) []Entry {
	return correlated(s.entries, id)
}

func since(entries []Entry, t time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

func correlated(entries []Entry, id string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Message.InThread(id) {
			out = append(out, e)
		}
	}
	return out
}
