package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo replies to every request with the request's content.
var echo = Funcs{
	Request: func(_ context.Context, self *Agent, msg messaging.Message) error {
		_, err := self.Reply(msg, "re: "+msg.Subject(), msg.Content())
		return err
	},
}

func newAgent(t *testing.T, b *broker.Broker, id string, h Handler, opts ...Option) *Agent {
	t.Helper()
	a, err := New(id, b, h, opts...)
	require.NoError(t, err)
	return a
}

func outcomes(entries []history.Entry) []history.Outcome {
	out := make([]history.Outcome, len(entries))
	for i, e := range entries {
		out[i] = e.Outcome
	}
	return out
}

func TestNew(t *testing.T) {
	b := broker.New()

	_, err := New("judge", nil, echo)
	require.Error(t, err)
	_, err = New("judge", b, nil)
	require.Error(t, err)
	_, err = New("", b, echo)
	require.Error(t, err)

	a := newAgent(t, b, "judge", echo)
	assert.Equal(t, "judge", a.ID())
	assert.True(t, b.IsRegistered("judge"))
	assert.Equal(t, "judge", a.History().AgentID())
}

func TestAgent_RoundTripCorrelation(t *testing.T) {
	ctx := context.Background()
	b := broker.New()

	var answered messaging.Message
	prosecutor := newAgent(t, b, "prosecutor", Funcs{
		Response: func(_ context.Context, _ *Agent, msg messaging.Message) error {
			answered = msg
			return nil
		},
	})
	judge := newAgent(t, b, "judge", echo)

	req, err := prosecutor.RequestInformation("judge", "antecedentes",
		map[string]any{"case_id": "C-1"}, WithPriority(messaging.PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, messaging.TypeRequest, req.Type())
	assert.Equal(t, "prosecutor", req.From())
	require.Len(t, prosecutor.Pending(), 1)

	results, err := judge.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Failed())
	assert.Equal(t, req.ID(), results[0].Message.ID())

	results, err = prosecutor.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	resp := results[0].Message
	assert.Equal(t, messaging.TypeResponse, resp.Type())
	assert.Equal(t, req.ID(), resp.CorrelationID())
	assert.Equal(t, messaging.PriorityHigh, resp.Priority(), "reply inherits request priority")
	assert.Equal(t, "C-1", resp.Content()["case_id"])
	assert.Equal(t, resp.ID(), answered.ID())
	assert.Empty(t, prosecutor.Pending())

	thread := prosecutor.History().EntriesForCorrelation(req.ID())
	require.Len(t, thread, 3, "sent request, received response pair")
	assert.Equal(t, history.DirectionSent, thread[0].Direction)
	assert.NoError(t, prosecutor.History().Verify())
	assert.NoError(t, judge.History().Verify())
}

func TestAgent_FailureIsolation(t *testing.T) {
	cases := []struct {
		name    string
		failure HandlerFunc
		want    string
	}{
		{
			name: "error",
			failure: func(context.Context, *Agent, messaging.Message) error {
				return errors.New("expediente incompleto")
			},
			want: "expediente incompleto",
		},
		{
			name: "panic",
			failure: func(context.Context, *Agent, messaging.Message) error {
				panic("nil docket")
			},
			want: "panic: nil docket",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			b := broker.New()
			sender := newAgent(t, b, "secretary", Funcs{})

			var seen []string
			receiver := newAgent(t, b, "judge", Funcs{
				Notification: func(ctx context.Context, self *Agent, msg messaging.Message) error {
					seen = append(seen, msg.Subject())
					if msg.Subject() == "second" {
						return tc.failure(ctx, self, msg)
					}
					return nil
				},
			})

			for _, subj := range []string{"first", "second", "third"} {
				_, err := sender.NotifyUpdate([]string{"judge"}, subj, nil)
				require.NoError(t, err)
			}

			results, err := receiver.ProcessMessages(ctx)
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.Equal(t, []string{"first", "second", "third"}, seen)

			assert.False(t, results[0].Failed())
			assert.True(t, results[1].Failed())
			assert.False(t, results[2].Failed())

			var herr *messaging.HandlerError
			require.ErrorAs(t, results[1].Err, &herr)
			assert.Equal(t, results[1].Message.ID(), herr.MessageID)
			assert.Contains(t, herr.Error(), tc.want)

			assert.Equal(t, []history.Outcome{
				history.OutcomeDelivered, history.OutcomeProcessed,
				history.OutcomeDelivered, history.OutcomeFailed,
				history.OutcomeDelivered, history.OutcomeProcessed,
			}, outcomes(receiver.History().Entries()))

			failed := receiver.History().Entries()[3]
			assert.Contains(t, failed.Error, tc.want)
		})
	}
}

func TestAgent_ProcessEmptyMailbox(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	a := newAgent(t, b, "judge", echo)

	for range 2 {
		results, err := a.ProcessMessages(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Equal(t, 0, a.History().Len())
}

func TestAgent_MailboxOrder(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	sender := newAgent(t, b, "secretary", Funcs{})

	var order []string
	receiver := newAgent(t, b, "judge", Funcs{
		Notification: func(_ context.Context, _ *Agent, msg messaging.Message) error {
			order = append(order, msg.Subject())
			return nil
		},
		Decision: func(_ context.Context, _ *Agent, msg messaging.Message) error {
			order = append(order, msg.Subject())
			return nil
		},
	})

	_, err := sender.NotifyUpdate([]string{"judge"}, "low", nil, WithPriority(messaging.PriorityLow))
	require.NoError(t, err)
	_, err = sender.NotifyUpdate([]string{"judge"}, "medium", nil)
	require.NoError(t, err)
	_, err = sender.CommunicateDecision([]string{"judge"}, "high", nil)
	require.NoError(t, err)

	_, err = receiver.ProcessMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "medium", "low"}, order)
}

func TestAgent_FanOut(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	judge := newAgent(t, b, "judge", Funcs{})

	received := map[string]messaging.Message{}
	for _, id := range []string{"prosecutor", "defender", "secretary"} {
		newAgent(t, b, id, Funcs{
			Decision: func(_ context.Context, self *Agent, msg messaging.Message) error {
				received[self.ID()] = msg
				return nil
			},
		})
	}

	sent, err := judge.CommunicateDecision([]string{"prosecutor", "defender", "secretary"}, "sentencia", map[string]any{"case_id": "C-1"})
	require.NoError(t, err)
	require.Len(t, sent, 3)

	ids := map[string]bool{}
	for _, m := range sent {
		assert.Equal(t, messaging.TypeDecision, m.Type())
		assert.Equal(t, messaging.PriorityHigh, m.Priority())
		ids[m.ID()] = true
	}
	assert.Len(t, ids, 3, "one independent message per receiver")

	for _, id := range []string{"prosecutor", "defender", "secretary"} {
		assert.Equal(t, 1, b.Pending(id))
	}
	assert.Equal(t, 3, judge.History().Len())

	// Processing one receiver leaves the others untouched.
	p, err := New("prosecutor", b, Funcs{})
	require.NoError(t, err)
	_, err = p.ProcessMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Pending("prosecutor"))
	assert.Equal(t, 1, b.Pending("defender"))
	assert.Equal(t, 1, b.Pending("secretary"))
}

func TestAgent_FanOutPartialFailure(t *testing.T) {
	b := broker.New()
	judge := newAgent(t, b, "judge", Funcs{})
	newAgent(t, b, "defender", Funcs{})

	sent, err := judge.NotifyUpdate([]string{"ghost", "defender"}, "audiencia", nil, WithType(messaging.TypeUpdate))
	require.Error(t, err)
	assert.ErrorIs(t, err, messaging.ErrUnknownAgent)

	require.Len(t, sent, 1)
	assert.Equal(t, "defender", sent[0].To())
	assert.Equal(t, messaging.TypeUpdate, sent[0].Type())
	assert.Equal(t, 1, judge.History().Len(), "failed send records nothing")
}

func TestAgent_SubscribersBroadcast(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	secretary := newAgent(t, b, "secretary", Funcs{})
	prosecutor := newAgent(t, b, "prosecutor", Funcs{})
	defender := newAgent(t, b, "defender", Funcs{})

	require.NoError(t, prosecutor.SubscribeTo("secretary"))

	_, err := secretary.NotifySubscribers("early", nil)
	require.NoError(t, err)

	require.NoError(t, defender.SubscribeTo("secretary"))
	assert.Equal(t, []string{"defender", "prosecutor"}, secretary.Subscribers())

	results, err := defender.ProcessMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, results, "no replay of messages sent before subscribing")

	sent, err := secretary.DecideForSubscribers("late", nil)
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	prosecutor.Unsubscribe("secretary")
	prosecutor.Unsubscribe("secretary")
	assert.Equal(t, []string{"defender"}, secretary.Subscribers())
}

func TestAgent_SendUnknownReceiver(t *testing.T) {
	b := broker.New()
	a := newAgent(t, b, "judge", Funcs{})

	_, err := a.RequestInformation("nobody", "antecedentes", nil)
	require.Error(t, err)

	var unknown *messaging.UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nobody", unknown.AgentID)
	assert.Empty(t, a.Pending())
	assert.Equal(t, 0, a.History().Len())
}

func TestAgent_RequestTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	b := broker.New()
	prosecutor := newAgent(t, b, "prosecutor", Funcs{}, WithRequestTTL(time.Minute), WithClock(clock))
	judge := newAgent(t, b, "judge", echo)

	req, err := prosecutor.RequestInformation("judge", "antecedentes", nil)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Empty(t, prosecutor.ExpireRequests(now))
	require.Len(t, prosecutor.Pending(), 1)

	now = now.Add(time.Minute)
	_, err = judge.ProcessMessages(ctx)
	require.NoError(t, err)

	results, err := prosecutor.ProcessMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, prosecutor.Pending(), "expired before the response arrived")

	// The late response is still dispatched and recorded.
	require.Len(t, results, 1)
	assert.Equal(t, req.ID(), results[0].Message.CorrelationID())
	assert.False(t, results[0].Failed())
}

func TestAgent_NoTTLKeepsPending(t *testing.T) {
	b := broker.New()
	a := newAgent(t, b, "prosecutor", Funcs{})
	newAgent(t, b, "judge", Funcs{})

	_, err := a.RequestInformation("judge", "antecedentes", nil)
	require.NoError(t, err)

	assert.Empty(t, a.ExpireRequests(time.Now().Add(24*time.Hour)))
	assert.Len(t, a.Pending(), 1)
}

func TestAgent_Close(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	judge := newAgent(t, b, "judge", Funcs{})
	defender := newAgent(t, b, "defender", Funcs{})

	require.NoError(t, defender.SubscribeTo("judge"))
	_, err := judge.NotifyUpdate([]string{"defender"}, "citación", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, defender.Close())
	assert.False(t, b.IsRegistered("defender"))
	assert.Empty(t, judge.Subscribers())

	_, err = defender.ProcessMessages(ctx)
	assert.ErrorIs(t, err, messaging.ErrUnknownAgent)

	_, err = judge.NotifyUpdate([]string{"defender"}, "citación", nil)
	assert.ErrorIs(t, err, messaging.ErrUnknownAgent)
}

func TestAgent_HistoryMaintenance(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	b := broker.New()
	judge := newAgent(t, b, "judge", Funcs{}, WithClock(clock), WithHistoryLimit(2))
	newAgent(t, b, "defender", Funcs{})

	for range 3 {
		_, err := judge.NotifyUpdate([]string{"defender"}, "citación", nil)
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}
	assert.Equal(t, 2, judge.History().Len())

	assert.Equal(t, 1, judge.RetainHistory(now.Add(-time.Minute)))
	assert.Equal(t, 1, judge.History().Len())

	judge.ClearHistory()
	assert.Equal(t, 0, judge.History().Len())
}

func TestAgent_DeliveredContentImmutable(t *testing.T) {
	ctx := context.Background()
	b := broker.New()

	meddler := Funcs{
		Request: func(_ context.Context, _ *Agent, msg messaging.Message) error {
			content := msg.Content()
			content["parties"].(map[string]any)["defendant"] = "Gómez"
			content["case_id"] = "C-2"
			return nil
		},
	}
	prosecutor := newAgent(t, b, "prosecutor", Funcs{})
	judge := newAgent(t, b, "judge", meddler)

	draft := map[string]any{
		"case_id": "C-1",
		"parties": map[string]any{"defendant": "Pérez"},
	}
	req, err := prosecutor.RequestInformation("judge", "antecedentes", draft)
	require.NoError(t, err)
	draft["parties"].(map[string]any)["defendant"] = "Soto"

	results, err := judge.ProcessMessages(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := map[string]any{
		"case_id": "C-1",
		"parties": map[string]any{"defendant": "Pérez"},
	}
	assert.Equal(t, want, req.Content())
	assert.Equal(t, want, results[0].Message.Content())

	sent := prosecutor.History().Entries()
	require.Len(t, sent, 1)
	assert.Equal(t, want, sent[0].Message.Content())
	assert.NoError(t, prosecutor.History().Verify())
	assert.NoError(t, judge.History().Verify())
}

func TestAgent_RequestsSharingThread(t *testing.T) {
	ctx := context.Background()
	b := broker.New()

	prosecutor := newAgent(t, b, "prosecutor", Funcs{})
	judge := newAgent(t, b, "judge", Funcs{})

	first, err := prosecutor.RequestInformation("judge", "antecedentes", nil)
	require.NoError(t, err)
	second, err := prosecutor.RequestInformation("judge", "plazo", nil, WithCorrelation(first.ID()))
	require.NoError(t, err)

	pending := prosecutor.Pending()
	require.Len(t, pending, 2, "a follow-up request does not replace the first")
	assert.Equal(t, first.ID(), pending[0].ID())
	assert.Equal(t, second.ID(), pending[1].ID())

	_, err = judge.Reply(second, "re: plazo", nil)
	require.NoError(t, err)
	_, err = prosecutor.ProcessMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, prosecutor.Pending(), "a response settles every request in its thread")
}
