package court

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/AutonomosCdM/first-court-sub000/internal/agent"
	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type courtroom struct {
	broker     *broker.Broker
	judge      *Member
	prosecutor *Member
	defender   *Member
	secretary  *Member
}

func newCourtroom(t *testing.T) *courtroom {
	t.Helper()
	b := broker.New()

	member := func(role Role) *Member {
		m, err := NewAgent(role, string(role), b)
		require.NoError(t, err)
		return m
	}

	return &courtroom{
		broker:     b,
		judge:      member(RoleJudge),
		prosecutor: member(RoleProsecutor),
		defender:   member(RoleDefender),
		secretary:  member(RoleSecretary),
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "judge", want: RoleJudge},
		{in: " Prosecutor ", want: RoleProsecutor},
		{in: "DEFENDER", want: RoleDefender},
		{in: "secretary", want: RoleSecretary},
		{in: "bailiff", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, Roles(), 4)
}

func TestNewAgent_InvalidRole(t *testing.T) {
	_, err := NewAgent(Role("bailiff"), "b1", broker.New())
	assert.Error(t, err)
}

func TestMember_AnswersRequests(t *testing.T) {
	ctx := context.Background()

	for _, role := range Roles() {
		t.Run(string(role), func(t *testing.T) {
			c := newCourtroom(t)
			var responder *Member
			asker := c.prosecutor
			switch role {
			case RoleJudge:
				responder = c.judge
			case RoleProsecutor:
				responder, asker = c.prosecutor, c.judge
			case RoleDefender:
				responder = c.defender
			case RoleSecretary:
				responder = c.secretary
			}

			req, err := asker.RequestInformation(responder.ID(), "antecedentes",
				map[string]any{ContentCaseID: "C-7"}, agent.WithPriority(messaging.PriorityHigh))
			require.NoError(t, err)

			results, err := responder.ProcessMessages(ctx)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.False(t, results[0].Failed())

			results, err = asker.ProcessMessages(ctx)
			require.NoError(t, err)
			require.Len(t, results, 1)

			resp := results[0].Message
			assert.Equal(t, messaging.TypeResponse, resp.Type())
			assert.Equal(t, req.ID(), resp.CorrelationID())
			assert.Equal(t, "C-7", resp.Content()[ContentCaseID])
			assert.Equal(t, string(role), resp.Content()["role"])
			assert.Empty(t, asker.Pending())
		})
	}
}

func TestMember_RequestWithoutCaseID(t *testing.T) {
	ctx := context.Background()
	c := newCourtroom(t)

	_, err := c.prosecutor.RequestInformation("judge", "antecedentes", map[string]any{"note": "sin rol"})
	require.NoError(t, err)

	results, err := c.judge.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrMissingCaseID)
	assert.Equal(t, 0, c.broker.Pending("prosecutor"), "no response sent")
}

func TestMember_DecisionFlow(t *testing.T) {
	ctx := context.Background()
	c := newCourtroom(t)

	require.NoError(t, c.prosecutor.SubscribeTo("secretary"))
	require.NoError(t, c.defender.SubscribeTo("secretary"))

	decision := map[string]any{ContentCaseID: "C-7", "ruling": "admisible"}
	sent, err := c.judge.CommunicateDecision([]string{"secretary", "prosecutor", "defender"}, "resolución", decision)
	require.NoError(t, err)
	require.Len(t, sent, 3)

	// Secretary files the decision and relays it to its subscribers.
	results, err := c.secretary.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Failed())

	filings := c.secretary.Docket().ForCase("C-7")
	require.Len(t, filings, 1)
	assert.Equal(t, messaging.TypeDecision, filings[0].Type)
	assert.Equal(t, "judge", filings[0].From)

	// Prosecutor and defender each got the decision and the relay.
	for _, m := range []*Member{c.prosecutor, c.defender} {
		results, err := m.ProcessMessages(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2, m.ID())

		assert.Equal(t, messaging.TypeDecision, results[0].Message.Type(), "decision outranks relay")
		relay := results[1].Message
		assert.Equal(t, messaging.TypeNotification, relay.Type())
		assert.Equal(t, "secretary", relay.From())
		assert.Equal(t, "judge", relay.Content()["decided_by"])
		assert.Equal(t, sent[0].ID(), relay.CorrelationID())
		assert.Empty(t, m.Docket().Filings())
	}

	// The judge receives one acknowledgement per party.
	results, err = c.judge.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	from := map[string]bool{}
	for _, r := range results {
		assert.Equal(t, messaging.TypeUpdate, r.Message.Type())
		assert.Equal(t, true, r.Message.Content()["acknowledged"])
		assert.Equal(t, "C-7", r.Message.Content()[ContentCaseID])
		from[r.Message.From()] = true
	}
	assert.Equal(t, map[string]bool{"prosecutor": true, "defender": true}, from)
}

func TestMember_SecretaryFilesNotifications(t *testing.T) {
	ctx := context.Background()
	c := newCourtroom(t)

	_, err := c.prosecutor.NotifyUpdate([]string{"secretary"}, "acusación", map[string]any{ContentCaseID: "C-1"})
	require.NoError(t, err)
	_, err = c.defender.NotifyUpdate([]string{"secretary"}, "contestación", map[string]any{ContentCaseID: "C-1"}, agent.WithType(messaging.TypeUpdate))
	require.NoError(t, err)
	_, err = c.defender.NotifyUpdate([]string{"secretary"}, "otro", map[string]any{ContentCaseID: "C-2"})
	require.NoError(t, err)

	_, err = c.secretary.ProcessMessages(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, c.secretary.Docket().Len())
	assert.Len(t, c.secretary.Docket().ForCase("C-1"), 2)

	_, err = c.judge.RequestInformation("secretary", "estado", map[string]any{ContentCaseID: "C-1"})
	require.NoError(t, err)
	_, err = c.secretary.ProcessMessages(ctx)
	require.NoError(t, err)

	results, err := c.judge.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, json.Number("2"), results[0].Message.Content()["filings"])
}
