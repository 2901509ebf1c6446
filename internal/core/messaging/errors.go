package messaging

import (
	"errors"
	"fmt"
)

// ErrUnknownAgent is returned when a message targets an agent that is
// not registered with the broker.
var ErrUnknownAgent = errors.New("unknown agent")

// UnknownAgentError reports the id that could not be resolved.
type UnknownAgentError struct {
	AgentID string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.AgentID)
}

// Is makes errors.Is(err, ErrUnknownAgent) match.
func (e *UnknownAgentError) Is(target error) bool {
	return target == ErrUnknownAgent
}

// HandlerError wraps a failure raised while handling a single message.
// The dispatch loop records it and moves on to the next message.
type HandlerError struct {
	MessageID string
	Type      Type
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s %s: %v", e.Type, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// NewHandlerError wraps err for msg. A nil err returns nil.
func NewHandlerError(msg Message, err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{MessageID: msg.ID(), Type: msg.Type(), Err: err}
}
