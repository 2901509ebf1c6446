// Package broker routes messages between agents. The Broker owns every
// agent's mailbox and the subscription registry; agents only ever hold
// a reference to the Broker.
package broker

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/rs/zerolog"
)

// Broker holds one mailbox per registered agent.
//
// mu guards the mailboxes map. Register and Deregister take it
// exclusively; Enqueue and DequeueAll share it and then lock only the
// mailbox they touch, so traffic for one agent never waits on another
// agent's mailbox.
type Broker struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	subs      *registry
	seq       atomic.Uint64
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Broker) {
		b.log = l
	}
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		mailboxes: make(map[string]*mailbox),
		subs:      newRegistry(),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates a mailbox for agentID. Registering an id twice is a
// no-op.
func (b *Broker) Register(agentID string) error {
	if agentID == "" {
		return errors.New("agent id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.mailboxes[agentID]; ok {
		return nil
	}
	b.mailboxes[agentID] = newMailbox()
	b.log.Debug().Str("agent", agentID).Msg("registered agent")
	return nil
}

// Deregister removes agentID's mailbox and every subscription edge that
// mentions it. Pending messages are discarded; the count is returned.
func (b *Broker) Deregister(agentID string) int {
	b.mu.Lock()
	mb, ok := b.mailboxes[agentID]
	if ok {
		delete(b.mailboxes, agentID)
	}
	b.mu.Unlock()

	if !ok {
		return 0
	}

	b.subs.forget(agentID)
	dropped := len(mb.drain())
	b.log.Debug().Str("agent", agentID).Int("dropped", dropped).Msg("deregistered agent")
	return dropped
}

// IsRegistered reports whether agentID has a mailbox.
func (b *Broker) IsRegistered(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.mailboxes[agentID]
	return ok
}

// Agents returns the sorted ids of every registered agent.
func (b *Broker) Agents() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Enqueue seals the draft into a Message and inserts it into the
// receiver's mailbox. It never blocks waiting for a consumer.
//
// Returns *messaging.UnknownAgentError if the receiver is not
// registered; no mailbox is modified in that case.
func (b *Broker) Enqueue(d messaging.Draft) (messaging.Message, error) {
	if err := d.Validate(); err != nil {
		return messaging.Message{}, fmt.Errorf("invalid message: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	mb, ok := b.mailboxes[d.To]
	if !ok {
		return messaging.Message{}, &messaging.UnknownAgentError{AgentID: d.To}
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	msg, err := messaging.Seal(d, b.seq.Add(1), b.now())
	if err != nil {
		return messaging.Message{}, fmt.Errorf("seal message: %w", err)
	}
	mb.push(msg)

	b.log.Debug().
		Str("id", msg.ID()).
		Str("from", msg.From()).
		Str("to", msg.To()).
		Str("type", string(msg.Type())).
		Stringer("priority", msg.Priority()).
		Uint64("seq", msg.Sequence()).
		Msg("enqueued message")

	return msg, nil
}

// DequeueAll removes and returns every message currently queued for
// agentID, highest priority first and in arrival order within a
// priority. It returns an empty batch when nothing is pending and never
// waits for new messages.
func (b *Broker) DequeueAll(agentID string) ([]messaging.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mb, ok := b.mailboxes[agentID]
	if !ok {
		return nil, &messaging.UnknownAgentError{AgentID: agentID}
	}
	return mb.drain(), nil
}

// Pending returns the number of messages waiting for agentID.
func (b *Broker) Pending(agentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mb, ok := b.mailboxes[agentID]
	if !ok {
		return 0
	}
	return mb.len()
}

// Subscribe records that listener wants target's broadcasts. Both ids
// must be registered. Subscribing never replays earlier messages.
func (b *Broker) Subscribe(listener, target string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, id := range []string{listener, target} {
		if _, ok := b.mailboxes[id]; !ok {
			return &messaging.UnknownAgentError{AgentID: id}
		}
	}
	b.subs.add(listener, target)
	return nil
}

// Unsubscribe removes the listener -> target edge. Removing an edge that
// does not exist is a silent no-op.
func (b *Broker) Unsubscribe(listener, target string) {
	b.subs.remove(listener, target)
}

// Subscribers returns the sorted ids listening to target.
func (b *Broker) Subscribers(target string) []string {
	return b.subs.listeners(target)
}

// Subscriptions returns the sorted ids listener is subscribed to.
func (b *Broker) Subscriptions(listener string) []string {
	return b.subs.targets(listener)
}
