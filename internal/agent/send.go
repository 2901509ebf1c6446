package agent

import (
	"errors"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

type sendConfig struct {
	priority      messaging.Priority
	typ           messaging.Type
	correlationID string
}

// SendOption adjusts a message built by one of the convenience wrappers.
type SendOption func(*sendConfig)

// WithPriority overrides the wrapper's default priority.
func WithPriority(p messaging.Priority) SendOption {
	return func(c *sendConfig) {
		c.priority = p
	}
}

// WithCorrelation sets the correlation id.
func WithCorrelation(id string) SendOption {
	return func(c *sendConfig) {
		c.correlationID = id
	}
}

// WithType overrides the wrapper's default message type, e.g.
// NotifyUpdate(..., WithType(messaging.TypeUpdate)).
func WithType(t messaging.Type) SendOption {
	return func(c *sendConfig) {
		c.typ = t
	}
}

func buildConfig(def sendConfig, opts []SendOption) sendConfig {
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

func (c sendConfig) draft(to, subject string, content map[string]any) messaging.Draft {
	return messaging.Draft{
		To:            to,
		Subject:       subject,
		Content:       content,
		Type:          c.typ,
		Priority:      c.priority,
		CorrelationID: c.correlationID,
	}
}

// RequestInformation sends a request to receiver. Priority defaults to
// medium. The request stays pending until a response carrying its id
// as correlation id is processed, or until the request TTL expires.
func (a *Agent) RequestInformation(receiver, subject string, content map[string]any, opts ...SendOption) (messaging.Message, error) {
	cfg := buildConfig(sendConfig{priority: messaging.PriorityMedium, typ: messaging.TypeRequest}, opts)
	return a.Send(cfg.draft(receiver, subject, content))
}

// Reply sends a response to the sender of req, carrying req's thread id
// as correlation id. Priority defaults to the request's priority.
func (a *Agent) Reply(req messaging.Message, subject string, content map[string]any, opts ...SendOption) (messaging.Message, error) {
	cfg := buildConfig(sendConfig{
		priority:      req.Priority(),
		typ:           messaging.TypeResponse,
		correlationID: req.ThreadID(),
	}, opts)
	return a.Send(cfg.draft(req.From(), subject, content))
}

// NotifyUpdate sends one independent notification to each receiver.
// Priority defaults to medium; use WithType(messaging.TypeUpdate) to
// send updates instead of notifications.
//
// Every receiver is attempted. The messages that were accepted are
// returned together with the joined errors of those that were not.
func (a *Agent) NotifyUpdate(receivers []string, subject string, content map[string]any, opts ...SendOption) ([]messaging.Message, error) {
	cfg := buildConfig(sendConfig{priority: messaging.PriorityMedium, typ: messaging.TypeNotification}, opts)
	return a.fanOut(receivers, cfg, subject, content)
}

// CommunicateDecision sends one independent decision to each receiver.
// Priority defaults to high. Failures are handled as in NotifyUpdate.
func (a *Agent) CommunicateDecision(receivers []string, subject string, content map[string]any, opts ...SendOption) ([]messaging.Message, error) {
	cfg := buildConfig(sendConfig{priority: messaging.PriorityHigh, typ: messaging.TypeDecision}, opts)
	return a.fanOut(receivers, cfg, subject, content)
}

// NotifySubscribers is NotifyUpdate addressed to the agent's current
// subscribers.
func (a *Agent) NotifySubscribers(subject string, content map[string]any, opts ...SendOption) ([]messaging.Message, error) {
	return a.NotifyUpdate(a.Subscribers(), subject, content, opts...)
}

// DecideForSubscribers is CommunicateDecision addressed to the agent's
// current subscribers.
func (a *Agent) DecideForSubscribers(subject string, content map[string]any, opts ...SendOption) ([]messaging.Message, error) {
	return a.CommunicateDecision(a.Subscribers(), subject, content, opts...)
}

func (a *Agent) fanOut(receivers []string, cfg sendConfig, subject string, content map[string]any) ([]messaging.Message, error) {
	sent := make([]messaging.Message, 0, len(receivers))
	var errs []error

	for _, to := range receivers {
		msg, err := a.Send(cfg.draft(to, subject, content))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sent = append(sent, msg)
	}

	return sent, errors.Join(errs...)
}
