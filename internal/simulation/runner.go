package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/agent"
	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/AutonomosCdM/first-court-sub000/internal/court"
	"github.com/rs/zerolog"
)

// Config holds the knobs a run takes from the application config.
type Config struct {
	// RequestTTL abandons unanswered requests; zero disables expiry.
	RequestTTL time.Duration
	// HistoryLimit caps each member's history; zero is unlimited.
	HistoryLimit int
	// ExportInterval exports histories every n steps in addition to the
	// final export. Zero exports only at the end.
	ExportInterval int
	// Strict aborts the run at the first failing step.
	Strict bool
}

// StepError records a step that could not be carried out.
type StepError struct {
	Index  int
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result summarizes a run.
type Result struct {
	Scenario   string
	Members    []*court.Member
	StepErrors []*StepError
	// Failures counts handler failures across every process step.
	Failures int
	Exports  int
	Duration time.Duration
}

// Histories returns every member's history keyed by agent id.
func (r *Result) Histories() map[string]history.Reader {
	out := make(map[string]history.Reader, len(r.Members))
	for _, m := range r.Members {
		out[m.ID()] = m.History()
	}
	return out
}

// Runner executes scenarios.
type Runner struct {
	cfg   Config
	store history.Store
	log   zerolog.Logger
	now   func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore exports histories to s. Without a store nothing is exported.
func WithStore(s history.Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithClock overrides the time source handed to the broker and members.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a Runner.
func New(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg: cfg,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "simulation").Logger()
	return r
}

// run is the state of a single scenario execution.
type run struct {
	*Runner
	broker  *broker.Broker
	members map[string]*court.Member
	order   []string
	closed  map[string]bool
	result  *Result
}

// Run validates and executes sc. Step failures are collected in the
// result; in strict mode the first one aborts the run and is returned.
// Histories are exported and every member is deregistered before Run
// returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	start := time.Now()
	st := &run{
		Runner:  r,
		broker:  broker.New(broker.WithLogger(r.log.With().Str("component", "broker").Logger()), broker.WithClock(r.now)),
		members: make(map[string]*court.Member, len(sc.Agents)),
		closed:  make(map[string]bool),
		result:  &Result{Scenario: sc.Name},
	}

	r.log.Info().Str("scenario", sc.Name).Int("agents", len(sc.Agents)).Int("steps", len(sc.Steps)).Msg("starting run")

	err := st.execute(ctx, sc)

	if xerr := st.export(ctx); xerr != nil {
		err = errors.Join(err, xerr)
	}
	st.teardown()

	st.result.Duration = time.Since(start)
	r.log.Info().
		Str("scenario", sc.Name).
		Int("step_errors", len(st.result.StepErrors)).
		Int("handler_failures", st.result.Failures).
		Dur("duration", st.result.Duration).
		Msg("run finished")

	return st.result, err
}

func (st *run) execute(ctx context.Context, sc *Scenario) error {
	for _, spec := range sc.Agents {
		role, _ := court.ParseRole(spec.Role)
		m, err := court.NewAgent(role, spec.ID, st.broker,
			agent.WithLogger(st.log.With().Str("component", "agent").Logger()),
			agent.WithRequestTTL(st.cfg.RequestTTL),
			agent.WithHistoryLimit(st.cfg.HistoryLimit),
			agent.WithClock(st.now),
		)
		if err != nil {
			return err
		}
		st.members[spec.ID] = m
		st.order = append(st.order, spec.ID)
		st.result.Members = append(st.result.Members, m)
	}

	for _, sub := range sc.Subscriptions {
		if err := st.members[sub.Listener].SubscribeTo(sub.Target); err != nil {
			return fmt.Errorf("subscribe %s to %s: %w", sub.Listener, sub.Target, err)
		}
	}

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := st.step(ctx, step); err != nil {
			serr := &StepError{Index: i, Action: step.Action, Err: err}
			st.result.StepErrors = append(st.result.StepErrors, serr)
			st.log.Warn().Err(err).Int("step", i).Str("action", string(step.Action)).Msg("step failed")
			if st.cfg.Strict {
				return serr
			}
		}

		if n := st.cfg.ExportInterval; n > 0 && (i+1)%n == 0 && i+1 < len(sc.Steps) {
			if err := st.export(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *run) step(ctx context.Context, s Step) error {
	switch s.Action {
	case ActionSend:
		typ, _ := messaging.ParseType(s.Type)
		prio, _ := messaging.ParsePriority(s.Priority)
		_, err := st.members[s.From].Send(messaging.Draft{
			To:            s.To[0],
			Subject:       s.Subject,
			Content:       s.Content,
			Type:          typ,
			Priority:      prio,
			CorrelationID: s.Correlation,
		})
		return err

	case ActionRequest:
		_, err := st.members[s.From].RequestInformation(s.To[0], s.Subject, s.Content, sendOptions(s)...)
		return err

	case ActionNotify:
		m := st.members[s.From]
		if len(s.To) == 0 {
			_, err := m.NotifySubscribers(s.Subject, s.Content, sendOptions(s)...)
			return err
		}
		_, err := m.NotifyUpdate(s.To, s.Subject, s.Content, sendOptions(s)...)
		return err

	case ActionDecide:
		m := st.members[s.From]
		if len(s.To) == 0 {
			_, err := m.DecideForSubscribers(s.Subject, s.Content, sendOptions(s)...)
			return err
		}
		_, err := m.CommunicateDecision(s.To, s.Subject, s.Content, sendOptions(s)...)
		return err

	case ActionReplyAll:
		return st.replyAll(s)

	case ActionProcess:
		var errs []error
		for _, id := range st.selectAgents(s.Agents) {
			results, err := st.members[id].ProcessMessages(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("process %s: %w", id, err))
				continue
			}
			for _, res := range results {
				if res.Failed() {
					st.result.Failures++
				}
			}
		}
		return errors.Join(errs...)

	case ActionSubscribe:
		var errs []error
		for _, target := range s.To {
			errs = append(errs, st.members[s.From].SubscribeTo(target))
		}
		return errors.Join(errs...)

	case ActionUnsubscribe:
		for _, target := range s.To {
			st.members[s.From].Unsubscribe(target)
		}
		return nil

	case ActionDeregister:
		for _, id := range st.selectAgents(s.Agents) {
			if dropped := st.members[id].Close(); dropped > 0 {
				st.log.Info().Str("agent", id).Int("dropped", dropped).Msg("deregistered with pending messages")
			}
			st.closed[id] = true
		}
		return nil

	case ActionExpire:
		now := st.now()
		for _, id := range st.selectAgents(s.Agents) {
			st.members[id].ExpireRequests(now)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
}

// replyAll answers every request the member received and has not yet
// answered.
func (st *run) replyAll(s Step) error {
	m := st.members[s.From]
	entries := m.History().Entries()

	answered := make(map[string]bool)
	for _, e := range entries {
		if e.Direction == history.DirectionSent && e.Message.Type() == messaging.TypeResponse {
			answered[e.Message.CorrelationID()] = true
		}
	}

	var errs []error
	for _, e := range entries {
		req := e.Message
		if e.Direction != history.DirectionReceived || e.Outcome != history.OutcomeDelivered || req.Type() != messaging.TypeRequest {
			continue
		}
		if answered[req.ThreadID()] {
			continue
		}

		subject := s.Subject
		if subject == "" {
			subject = "re: " + req.Subject()
		}
		if _, err := m.Reply(req, subject, s.Content); err != nil {
			errs = append(errs, err)
			continue
		}
		answered[req.ThreadID()] = true
	}
	return errors.Join(errs...)
}

// selectAgents expands "all" into every member still registered, in
// declaration order.
func (st *run) selectAgents(ids []string) []string {
	for _, id := range ids {
		if id == AllAgents {
			out := make([]string, 0, len(st.order))
			for _, id := range st.order {
				if !st.closed[id] {
					out = append(out, id)
				}
			}
			return out
		}
	}
	return ids
}

func (st *run) export(ctx context.Context) error {
	if st.store == nil {
		return nil
	}

	var errs []error
	for _, id := range st.order {
		m := st.members[id]
		if err := st.store.Save(ctx, id, m.History().Entries()); err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	st.result.Exports++
	st.log.Debug().Int("agents", len(st.order)).Int("export", st.result.Exports).Msg("exported histories")
	return nil
}

func (st *run) teardown() {
	for _, id := range st.order {
		if st.closed[id] {
			continue
		}
		st.members[id].Close()
		st.closed[id] = true
	}
}

func sendOptions(s Step) []agent.SendOption {
	var opts []agent.SendOption
	if s.Priority != "" {
		p, _ := messaging.ParsePriority(s.Priority)
		opts = append(opts, agent.WithPriority(p))
	}
	if s.Correlation != "" {
		opts = append(opts, agent.WithCorrelation(s.Correlation))
	}
	if s.Action == ActionNotify && s.Type != "" {
		t, _ := messaging.ParseType(s.Type)
		opts = append(opts, agent.WithType(t))
	}
	return opts
}
