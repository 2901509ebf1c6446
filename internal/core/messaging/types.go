package messaging

import (
	"fmt"
	"strings"
)

// Type identifies the kind of inter-agent message.
type Type string

const (
	// TypeRequest asks the receiver for information and expects a response.
	TypeRequest Type = "request"

	// TypeResponse answers a request. It carries the request's thread id.
	TypeResponse Type = "response"

	// TypeNotification informs the receiver of something without expecting a reply.
	TypeNotification Type = "notification"

	// TypeDecision communicates a ruling.
	TypeDecision Type = "decision"

	// TypeUpdate reports a change of state.
	TypeUpdate Type = "update"
)

// Types returns every known message type.
func Types() []Type {
	return []Type{TypeRequest, TypeResponse, TypeNotification, TypeDecision, TypeUpdate}
}

// Valid returns true if t is a known message type.
func (t Type) Valid() bool {
	switch t {
	case TypeRequest, TypeResponse, TypeNotification, TypeDecision, TypeUpdate:
		return true
	default:
		return false
	}
}

// ParseType converts a string into a Type. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown message type %q", s)
	}
	return t, nil
}

// Priority orders messages within a mailbox. Higher values dequeue first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid returns true if p is a known priority.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a priority name into a Priority. An empty
// string yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
