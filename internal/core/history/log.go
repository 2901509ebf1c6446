package history

import (
	"sync"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// Log is an append-only, in-memory audit log owned by one agent. It is
// safe for concurrent use.
type Log struct {
	mu         sync.RWMutex
	agentID    string
	entries    []Entry
	seq        uint64
	head       string // digest of the most recent entry ever appended
	maxEntries int
	now        func() time.Time
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithMaxEntries caps the number of retained entries; the oldest are
// trimmed first. Zero means unlimited.
func WithMaxEntries(n int) LogOption {
	return func(l *Log) {
		l.maxEntries = n
	}
}

// WithLogClock overrides the time source used to stamp entries.
func WithLogClock(now func() time.Time) LogOption {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates an empty log for agentID.
func NewLog(agentID string, opts ...LogOption) *Log {
	l := &Log{agentID: agentID, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an entry and returns it. A non-nil handlerErr is
// stored as the entry's error text. The returned error is non-nil only
// when the entry's digest could not be computed; the entry is still
// appended, and Verify will report it.
func (l *Log) Append(msg messaging.Message, dir Direction, outcome Outcome, handlerErr error) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e := Entry{
		Seq:       l.seq,
		AgentID:   l.agentID,
		Message:   msg,
		Direction: dir,
		Outcome:   outcome,
		Timestamp: l.now(),
		Prev:      l.head,
	}
	if handlerErr != nil {
		e.Error = handlerErr.Error()
	}

	d, err := digest(e)
	e.Digest = d
	l.head = d
	l.entries = append(l.entries, e)

	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	return e, err
}

func (l *Log) AgentID() string {
	return l.agentID
}

func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) EntriesSince(t time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return since(l.entries, t)
}

func (l *Log) EntriesForCorrelation(id string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return correlated(l.entries, id)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the digest chain of the retained entries.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.entries)
}

// Clear removes every entry. The chain continues from the last digest,
// so entries appended afterwards still link to what was removed.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Retain drops entries stamped before t and returns how many were removed.
func (l *Log) Retain(t time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := since(l.entries, t)
	removed := len(l.entries) - len(kept)
	l.entries = kept
	return removed
}
