package agent

import (
	"context"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// Handler implements an agent's reaction to the message types that
// always need role-specific logic. Handlers may call self.Send (or any
// of its wrappers) to emit follow-up messages.
type Handler interface {
	HandleRequest(ctx context.Context, self *Agent, msg messaging.Message) error
	HandleNotification(ctx context.Context, self *Agent, msg messaging.Message) error
	HandleDecision(ctx context.Context, self *Agent, msg messaging.Message) error
}

// UpdateHandler is implemented by handlers that react to update messages.
// Handlers that do not implement it get the default behavior: the
// update is recorded and otherwise ignored.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, self *Agent, msg messaging.Message) error
}

// ResponseHandler is implemented by handlers that react to responses.
// The agent has already matched the response against its pending
// requests when HandleResponse is called.
type ResponseHandler interface {
	HandleResponse(ctx context.Context, self *Agent, msg messaging.Message) error
}

// HandlerFunc is the signature shared by every handler method.
type HandlerFunc func(ctx context.Context, self *Agent, msg messaging.Message) error

// Funcs builds a Handler from plain functions. Nil fields accept the
// message without doing anything.
type Funcs struct {
	Request      HandlerFunc
	Notification HandlerFunc
	Decision     HandlerFunc
	Update       HandlerFunc
	Response     HandlerFunc
}

func (f Funcs) HandleRequest(ctx context.Context, self *Agent, msg messaging.Message) error {
	return call(ctx, f.Request, self, msg)
}

func (f Funcs) HandleNotification(ctx context.Context, self *Agent, msg messaging.Message) error {
	return call(ctx, f.Notification, self, msg)
}

func (f Funcs) HandleDecision(ctx context.Context, self *Agent, msg messaging.Message) error {
	return call(ctx, f.Decision, self, msg)
}

func (f Funcs) HandleUpdate(ctx context.Context, self *Agent, msg messaging.Message) error {
	return call(ctx, f.Update, self, msg)
}

func (f Funcs) HandleResponse(ctx context.Context, self *Agent, msg messaging.Message) error {
	return call(ctx, f.Response, self, msg)
}

func call(ctx context.Context, fn HandlerFunc, self *Agent, msg messaging.Message) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, self, msg)
}
