package court

import (
	"context"
	"fmt"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/agent"
	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// Member is an agent playing a courtroom role.
type Member struct {
	*agent.Agent
	role   Role
	docket *Docket
}

// NewAgent creates a member for role and registers id with the broker.
func NewAgent(role Role, id string, b *broker.Broker, opts ...agent.Option) (*Member, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("new %s agent %q: unknown role", role, id)
	}

	h := &roleHandler{role: role, docket: &Docket{}, now: time.Now}
	a, err := agent.New(id, b, h, opts...)
	if err != nil {
		return nil, fmt.Errorf("new %s agent %q: %w", role, id, err)
	}

	return &Member{Agent: a, role: role, docket: h.docket}, nil
}

func (m *Member) Role() Role {
	return m.role
}

// Docket returns the member's docket. Only the secretary files into it;
// for other roles it stays empty.
func (m *Member) Docket() *Docket {
	return m.docket
}

// roleHandler implements agent.Handler, agent.UpdateHandler and
// agent.ResponseHandler for every role.
type roleHandler struct {
	role   Role
	docket *Docket
	now    func() time.Time
}

var (
	_ agent.Handler         = (*roleHandler)(nil)
	_ agent.UpdateHandler   = (*roleHandler)(nil)
	_ agent.ResponseHandler = (*roleHandler)(nil)
)

func (h *roleHandler) HandleRequest(_ context.Context, self *agent.Agent, msg messaging.Message) error {
	id, ok := caseID(msg.Content())
	if !ok {
		return ErrMissingCaseID
	}

	content := map[string]any{
		ContentCaseID: id,
		"role":        string(h.role),
		"answer":      h.answer(id),
	}
	if h.role == RoleSecretary {
		content["filings"] = len(h.docket.ForCase(id))
	}

	if _, err := self.Reply(msg, "re: "+msg.Subject(), content); err != nil {
		return fmt.Errorf("answer %q: %w", msg.Subject(), err)
	}
	return nil
}

func (h *roleHandler) answer(id string) string {
	switch h.role {
	case RoleJudge:
		return "case " + id + " is under review by the court"
	case RoleProsecutor:
		return "prosecution file for case " + id + " is available"
	case RoleDefender:
		return "defense position for case " + id + " is on record"
	case RoleSecretary:
		return "docket for case " + id + " is attached"
	default:
		panic(fmt.Sprintf("court: unhandled role %q", h.role))
	}
}

func (h *roleHandler) HandleNotification(_ context.Context, _ *agent.Agent, msg messaging.Message) error {
	if h.role == RoleSecretary {
		h.docket.file(msg, h.now())
	}
	return nil
}

func (h *roleHandler) HandleUpdate(_ context.Context, _ *agent.Agent, msg messaging.Message) error {
	if h.role == RoleSecretary {
		h.docket.file(msg, h.now())
	}
	return nil
}

func (h *roleHandler) HandleResponse(context.Context, *agent.Agent, messaging.Message) error {
	return nil
}

func (h *roleHandler) HandleDecision(_ context.Context, self *agent.Agent, msg messaging.Message) error {
	switch h.role {
	case RoleSecretary:
		h.docket.file(msg, h.now())

		content := msg.Content()
		content["decided_by"] = msg.From()
		if _, err := self.NotifySubscribers(msg.Subject(), content, agent.WithCorrelation(msg.ThreadID())); err != nil {
			return fmt.Errorf("relay decision %q: %w", msg.Subject(), err)
		}
		return nil

	case RoleProsecutor, RoleDefender:
		content := map[string]any{"acknowledged": true}
		if id, ok := caseID(msg.Content()); ok {
			content[ContentCaseID] = id
		}
		_, err := self.Send(messaging.Draft{
			To:            msg.From(),
			Subject:       "ack: " + msg.Subject(),
			Content:       content,
			Type:          messaging.TypeUpdate,
			Priority:      msg.Priority(),
			CorrelationID: msg.ThreadID(),
		})
		if err != nil {
			return fmt.Errorf("acknowledge decision %q: %w", msg.Subject(), err)
		}
		return nil

	default:
		return nil
	}
}
