// Package agent provides the role-agnostic base every participant is
// built on: sending through the broker, draining the mailbox, per-type
// dispatch with failure isolation, and the audit history.
package agent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/rs/zerolog"
)

// Agent is one participant. It holds a non-owning reference to the
// Broker; the Broker owns the mailbox.
type Agent struct {
	id      string
	broker  *broker.Broker
	handler Handler
	history *history.Log
	log     zerolog.Logger
	now     func() time.Time

	requestTTL   time.Duration
	historyLimit int

	mu      sync.Mutex
	pending map[string]pendingRequest // request id -> request
}

type pendingRequest struct {
	msg    messaging.Message
	sentAt time.Time
}

// Result is the outcome of dispatching one message.
type Result struct {
	Message messaging.Message
	// Err is a *messaging.HandlerError when the handler failed.
	Err error
}

// Failed returns true if the handler returned an error or panicked.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Agent) {
		a.log = l
	}
}

// WithRequestTTL abandons requests that have not been answered within
// d. Zero (the default) keeps requests pending forever.
func WithRequestTTL(d time.Duration) Option {
	return func(a *Agent) {
		a.requestTTL = d
	}
}

// WithHistoryLimit caps the number of retained history entries.
func WithHistoryLimit(n int) Option {
	return func(a *Agent) {
		a.historyLimit = n
	}
}

// WithClock overrides the agent's time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New creates an agent and registers id with the broker.
func New(id string, b *broker.Broker, h Handler, opts ...Option) (*Agent, error) {
	if b == nil {
		return nil, errors.New("broker is required")
	}
	if h == nil {
		return nil, errors.New("handler is required")
	}

	a := &Agent{
		id:      id,
		broker:  b,
		handler: h,
		log:     zerolog.Nop(),
		now:     time.Now,
		pending: make(map[string]pendingRequest),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With().Str("agent", id).Logger()
	a.history = history.NewLog(id, history.WithMaxEntries(a.historyLimit), history.WithLogClock(a.now))

	if err := b.Register(id); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return a, nil
}

// ID returns the agent's identity.
func (a *Agent) ID() string {
	return a.id
}

// History returns the read-only view of the agent's audit log.
func (a *Agent) History() history.Reader {
	return a.history
}

// ClearHistory removes every history entry.
func (a *Agent) ClearHistory() {
	a.history.Clear()
}

// RetainHistory drops history entries recorded before t.
func (a *Agent) RetainHistory(t time.Time) int {
	return a.history.Retain(t)
}

// Close deregisters the agent. Messages still queued for it are
// discarded; the number discarded is returned.
func (a *Agent) Close() int {
	dropped := a.broker.Deregister(a.id)
	if dropped > 0 {
		a.log.Warn().Int("dropped", dropped).Msg("closed with undelivered messages")
	}
	return dropped
}

// SubscribeTo records that this agent wants target's broadcasts.
func (a *Agent) SubscribeTo(target string) error {
	return a.broker.Subscribe(a.id, target)
}

// Unsubscribe removes the subscription to target. It is a no-op when
// no such subscription exists.
func (a *Agent) Unsubscribe(target string) {
	a.broker.Unsubscribe(a.id, target)
}

// Subscribers returns the agents currently subscribed to this agent.
func (a *Agent) Subscribers() []string {
	return a.broker.Subscribers(a.id)
}

// Send stamps the draft with this agent as sender and hands it to the
// broker. The sent entry is recorded as soon as the broker accepts the
// message, regardless of what later happens on the receiving side.
//
// A *messaging.UnknownAgentError is returned (wrapped) when the
// receiver is not registered.
func (a *Agent) Send(d messaging.Draft) (messaging.Message, error) {
	d.From = a.id

	msg, err := a.broker.Enqueue(d)
	if err != nil {
		a.log.Warn().Err(err).Str("to", d.To).Str("type", string(d.Type)).Msg("send failed")
		return messaging.Message{}, fmt.Errorf("send %s to %s: %w", d.Type, d.To, err)
	}

	if msg.Type() == messaging.TypeRequest {
		a.mu.Lock()
		a.pending[msg.ID()] = pendingRequest{msg: msg, sentAt: a.now()}
		a.mu.Unlock()
	}

	a.record(msg, history.DirectionSent, history.OutcomeDelivered, nil)
	a.log.Debug().Str("id", msg.ID()).Str("to", msg.To()).Str("type", string(msg.Type())).Msg("sent")
	return msg, nil
}

// ProcessMessages drains the agent's mailbox and dispatches every
// message to the handler for its type, in mailbox order. A failing
// handler is recorded and does not stop the batch. Calling it with
// nothing queued returns an empty batch and records nothing.
//
// The returned error is non-nil only when the mailbox could not be
// read, for example after Close.
func (a *Agent) ProcessMessages(ctx context.Context) ([]Result, error) {
	a.ExpireRequests(a.now())

	batch, err := a.broker.DequeueAll(a.id)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	results := make([]Result, 0, len(batch))
	for _, msg := range batch {
		a.record(msg, history.DirectionReceived, history.OutcomeDelivered, nil)

		herr := a.dispatch(ctx, msg)
		if herr != nil {
			a.log.Warn().Err(herr).Str("id", msg.ID()).Str("from", msg.From()).Msg("handler failed")
			a.record(msg, history.DirectionReceived, history.OutcomeFailed, herr)
		} else {
			a.record(msg, history.DirectionReceived, history.OutcomeProcessed, nil)
		}

		results = append(results, Result{Message: msg, Err: herr})
	}

	if len(results) > 0 {
		a.log.Debug().Int("count", len(results)).Msg("processed batch")
	}
	return results, nil
}

// dispatch runs the handler for msg, converting errors and panics into
// *messaging.HandlerError.
func (a *Agent) dispatch(ctx context.Context, msg messaging.Message) (err error) {
	fn := a.route(msg)

	defer func() {
		if r := recover(); r != nil {
			err = messaging.NewHandlerError(msg, fmt.Errorf("panic: %v", r))
		}
	}()

	return messaging.NewHandlerError(msg, fn(ctx, a, msg))
}

// route selects the handler for msg's type. Messages can only be built
// with a valid type, so reaching the default case is a programming error.
func (a *Agent) route(msg messaging.Message) HandlerFunc {
	switch msg.Type() {
	case messaging.TypeRequest:
		return a.handler.HandleRequest
	case messaging.TypeNotification:
		return a.handler.HandleNotification
	case messaging.TypeDecision:
		return a.handler.HandleDecision
	case messaging.TypeUpdate:
		var next HandlerFunc
		if uh, ok := a.handler.(UpdateHandler); ok {
			next = uh.HandleUpdate
		}
		return a.correlated(next)
	case messaging.TypeResponse:
		var next HandlerFunc
		if rh, ok := a.handler.(ResponseHandler); ok {
			next = rh.HandleResponse
		}
		return a.correlated(next)
	default:
		panic(fmt.Sprintf("agent %s: unhandled message type %q", a.id, msg.Type()))
	}
}

// correlated is the default path for responses and updates: it settles
// the pending requests in the thread named by the correlation id, if
// any, then hands the message to next.
func (a *Agent) correlated(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, self *Agent, msg messaging.Message) error {
		if id := msg.CorrelationID(); id != "" {
			if n := a.settle(id); n > 0 {
				a.log.Debug().Str("thread", id).Int("requests", n).Str("from", msg.From()).Msg("request answered")
			} else if msg.Type() == messaging.TypeResponse {
				a.log.Debug().Str("request", id).Msg("response for unknown or abandoned request")
			}
		}
		return call(ctx, next, self, msg)
	}
}

// settle drops every pending request in thread and returns how many
// were dropped.
func (a *Agent) settle(thread string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for id, p := range a.pending {
		if p.msg.ThreadID() == thread {
			delete(a.pending, id)
			n++
		}
	}
	return n
}

// Pending returns the requests still awaiting a response, oldest first.
func (a *Agent) Pending() []messaging.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]messaging.Message, 0, len(a.pending))
	for _, p := range a.pending {
		out = append(out, p.msg)
	}
	slices.SortFunc(out, func(x, y messaging.Message) int {
		return cmp.Compare(x.Sequence(), y.Sequence())
	})
	return out
}

// ExpireRequests abandons pending requests older than the request TTL
// and returns them. It does nothing when no TTL is configured.
func (a *Agent) ExpireRequests(now time.Time) []messaging.Message {
	if a.requestTTL <= 0 {
		return nil
	}

	a.mu.Lock()
	var expired []messaging.Message
	for id, p := range a.pending {
		if now.Sub(p.sentAt) >= a.requestTTL {
			expired = append(expired, p.msg)
			delete(a.pending, id)
		}
	}
	a.mu.Unlock()

	for _, msg := range expired {
		a.log.Info().Str("request", msg.ID()).Str("to", msg.To()).Str("subject", msg.Subject()).Msg("request abandoned")
	}
	return expired
}

func (a *Agent) record(msg messaging.Message, dir history.Direction, outcome history.Outcome, err error) {
	if _, derr := a.history.Append(msg, dir, outcome, err); derr != nil {
		a.log.Warn().Err(derr).Str("id", msg.ID()).Msg("history digest failed")
	}
}
