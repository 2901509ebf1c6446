package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/agent"
	"github.com/AutonomosCdM/first-court-sub000/internal/broker"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/AutonomosCdM/first-court-sub000/internal/court"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// session runs a small exchange on a stepping clock: one answered
// request, one request that fails for lack of a case id, and a decision.
func session(t *testing.T) map[string]history.Reader {
	t.Helper()
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	b := broker.New(broker.WithClock(clock))
	members := map[string]*court.Member{}
	for _, role := range []court.Role{court.RoleJudge, court.RoleProsecutor, court.RoleDefender} {
		m, err := court.NewAgent(role, string(role), b, agent.WithClock(clock))
		require.NoError(t, err)
		members[string(role)] = m
	}

	_, err := members["prosecutor"].RequestInformation("judge", "antecedentes",
		map[string]any{court.ContentCaseID: "C-1"}, agent.WithPriority(messaging.PriorityHigh))
	require.NoError(t, err)
	_, err = members["defender"].RequestInformation("judge", "plazo", nil)
	require.NoError(t, err)

	for _, id := range []string{"judge", "prosecutor", "defender"} {
		_, err := members[id].ProcessMessages(ctx)
		require.NoError(t, err)
	}

	_, err = members["judge"].CommunicateDecision([]string{"defender"}, "resolución", map[string]any{court.ContentCaseID: "C-1"})
	require.NoError(t, err)

	out := map[string]history.Reader{}
	for id, m := range members {
		out[id] = m.History()
	}
	return out
}

func stats(t *testing.T, r Report, id string) AgentStats {
	t.Helper()
	for _, st := range r.Agents {
		if st.AgentID == id {
			return st
		}
	}
	t.Fatalf("no stats for %s", id)
	return AgentStats{}
}

func TestCompute(t *testing.T) {
	rep := Compute(session(t))

	require.Len(t, rep.Agents, 3)
	assert.Equal(t, "defender", rep.Agents[0].AgentID, "sorted by id")

	judge := stats(t, rep, "judge")
	assert.Equal(t, 2, judge.Sent, "one response and one decision")
	assert.Equal(t, 2, judge.Received)
	assert.Equal(t, 1, judge.Processed)
	assert.Equal(t, 1, judge.Failed)
	assert.Equal(t, 2, judge.ByType[messaging.TypeRequest])
	assert.Equal(t, 1, judge.ByType[messaging.TypeResponse])
	assert.Equal(t, 1, judge.ByType[messaging.TypeDecision])
	assert.True(t, judge.ChainOK)

	prosecutor := stats(t, rep, "prosecutor")
	assert.Equal(t, 1, prosecutor.Requests)
	assert.Equal(t, 1, prosecutor.Answered)
	assert.Empty(t, prosecutor.Unanswered)
	assert.Positive(t, prosecutor.MeanLatency)
	assert.Equal(t, 2, prosecutor.ByPriority["high"], "request and inherited-priority response")

	defender := stats(t, rep, "defender")
	assert.Equal(t, 1, defender.Requests)
	assert.Equal(t, 0, defender.Answered)
	assert.Len(t, defender.Unanswered, 1)
	assert.Zero(t, defender.MeanLatency)

	assert.Equal(t, 2, rep.Totals.Requests)
	assert.Equal(t, 1, rep.Totals.Answered)
	assert.Equal(t, prosecutor.MeanLatency, rep.Totals.MeanLatency)
	assert.Equal(t, judge.Sent+prosecutor.Sent+defender.Sent, rep.Totals.Sent)
	assert.True(t, rep.Totals.ChainOK)
}

func TestCompute_Filter(t *testing.T) {
	hist := session(t)

	f, err := NewFilter([]string{"j*"}, []string{"ante*"})
	require.NoError(t, err)

	rep := Compute(hist, WithFilter(f))
	require.Len(t, rep.Agents, 1)

	judge := rep.Agents[0]
	assert.Equal(t, "judge", judge.AgentID)
	assert.Equal(t, 1, judge.Received)
	assert.Equal(t, 0, judge.Sent, "the reply's subject is re: antecedentes")
	assert.True(t, judge.ChainOK, "chain checked on the full history")
}

func TestCompute_BrokenChain(t *testing.T) {
	hist := session(t)

	entries := hist["judge"].Entries()
	entries[0].Outcome = history.OutcomeFailed
	hist["judge"] = history.NewSnapshot("judge", entries)

	rep := Compute(hist)
	judge := stats(t, rep, "judge")
	assert.False(t, judge.ChainOK)
	assert.NotEmpty(t, judge.ChainError)
	assert.False(t, rep.Totals.ChainOK)
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"[judge"}, nil)
	assert.Error(t, err)
}

func TestFilter_Entries(t *testing.T) {
	hist := session(t)

	var none Filter
	assert.Len(t, none.Entries(hist["judge"]), hist["judge"].Len())

	f, err := NewFilter(nil, []string{"resoluci*"})
	require.NoError(t, err)
	got := f.Entries(hist["judge"])
	require.Len(t, got, 1)
	assert.Equal(t, messaging.TypeDecision, got[0].Message.Type())
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Compute(session(t))))

	out := buf.String()
	assert.Contains(t, out, "judge")
	assert.Contains(t, out, "mean latency")
	assert.Contains(t, out, "chain ok")
	assert.Contains(t, out, "total")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Compute(session(t))))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Agents, 3)
	assert.Equal(t, 1, decoded.Totals.Answered)
}
