// Package messaging defines the message types exchanged between agents.
package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Draft holds the caller-supplied fields of a message before the broker
// seals it.
type Draft struct {
	From          string
	To            string
	Subject       string
	Content       map[string]any
	Type          Type
	Priority      Priority
	CorrelationID string
}

// Validate checks that the draft can be sealed into a Message.
func (d Draft) Validate() error {
	switch {
	case d.From == "":
		return errors.New("sender is required")
	case d.To == "":
		return errors.New("receiver is required")
	case !d.Type.Valid():
		return fmt.Errorf("unknown message type %q", d.Type)
	case !d.Priority.Valid():
		return fmt.Errorf("unknown priority %d", int(d.Priority))
	}
	return nil
}

// Message is a single unit of communication between two agents. A
// Message is never modified after Seal returns it; corrections are sent
// as new messages.
type Message struct {
	id            string
	correlationID string
	from          string
	to            string
	subject       string
	content       map[string]any
	typ           Type
	priority      Priority
	sequence      uint64
	createdAt     time.Time
}

// Seal builds an immutable Message from a draft. The broker calls it
// while holding the receiving mailbox's lock so that seq reflects
// insertion order.
func Seal(d Draft, seq uint64, now time.Time) (Message, error) {
	if err := d.Validate(); err != nil {
		return Message{}, err
	}

	content, err := canonical(d.Content)
	if err != nil {
		return Message{}, fmt.Errorf("encode content: %w", err)
	}

	return Message{
		id:            uuid.NewString(),
		correlationID: d.CorrelationID,
		from:          d.From,
		to:            d.To,
		subject:       d.Subject,
		content:       content,
		typ:           d.Type,
		priority:      d.Priority,
		sequence:      seq,
		createdAt:     now,
	}, nil
}

func (m Message) ID() string            { return m.id }
func (m Message) CorrelationID() string { return m.correlationID }
func (m Message) From() string          { return m.from }
func (m Message) To() string            { return m.to }
func (m Message) Subject() string       { return m.subject }
func (m Message) Type() Type            { return m.typ }
func (m Message) Priority() Priority    { return m.priority }
func (m Message) Sequence() uint64      { return m.sequence }
func (m Message) CreatedAt() time.Time  { return m.createdAt }

// Content returns a deep copy of the message payload. Numbers are
// json.Number, nested objects map[string]any and arrays []any.
func (m Message) Content() map[string]any {
	if m.content == nil {
		return nil
	}
	return deepCopy(m.content).(map[string]any)
}

// Value returns a copy of a single payload field.
func (m Message) Value(key string) (any, bool) {
	v, ok := m.content[key]
	return deepCopy(v), ok
}

// IsZero reports whether m was never sealed.
func (m Message) IsZero() bool {
	return m.id == ""
}

// ThreadID returns the correlation id a reply to m must carry: the
// message's own correlation id when it has one, otherwise its id.
func (m Message) ThreadID() string {
	if m.correlationID != "" {
		return m.correlationID
	}
	return m.id
}

// InThread reports whether m belongs to the conversation identified by id.
func (m Message) InThread(id string) bool {
	return id != "" && (m.id == id || m.correlationID == id)
}

// Less reports whether a dequeues before b: higher priority first, then
// lower sequence.
func Less(a, b Message) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.sequence < b.sequence
}

func (m Message) String() string {
	return fmt.Sprintf("%s[%s %s->%s %q]", m.typ, m.priority, m.from, m.to, m.subject)
}

// wireMessage is the JSON representation of a Message.
type wireMessage struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Subject       string         `json:"subject"`
	Content       map[string]any `json:"content,omitempty"`
	Type          Type           `json:"type"`
	Priority      string         `json:"priority"`
	Sequence      uint64         `json:"sequence"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:            m.id,
		CorrelationID: m.correlationID,
		From:          m.from,
		To:            m.to,
		Subject:       m.subject,
		Content:       m.content,
		Type:          m.typ,
		Priority:      m.priority.String(),
		Sequence:      m.sequence,
		CreatedAt:     m.createdAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It exists so exported
// history snapshots can be read back.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}

	prio, err := ParsePriority(w.Priority)
	if err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown message type %q", w.Type)
	}

	*m = Message{
		id:            w.ID,
		correlationID: w.CorrelationID,
		from:          w.From,
		to:            w.To,
		subject:       w.Subject,
		content:       w.Content,
		typ:           w.Type,
		priority:      prio,
		sequence:      w.Sequence,
		createdAt:     w.CreatedAt,
	}
	return nil
}

// canonical returns content in the form it takes after a JSON round
// trip, so a sealed payload shares nothing with the caller and marshals
// the same before and after export.
func canonical(content map[string]any) (map[string]any, error) {
	if content == nil {
		return nil, nil
	}

	data, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
