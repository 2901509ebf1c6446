package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntries(t *testing.T, agentID string, n int) []history.Entry {
	t.Helper()
	l := history.NewLog(agentID)
	for i := range n {
		msg, err := messaging.Seal(messaging.Draft{
			From:          agentID,
			To:            "judge",
			Subject:       "alegato",
			Content:       map[string]any{"case_id": "C-9", "page": i},
			Type:          messaging.TypeNotification,
			Priority:      messaging.PriorityLow,
			CorrelationID: "thread-1",
		}, uint64(i+1), time.Now())
		require.NoError(t, err)
		_, err = l.Append(msg, history.DirectionSent, history.OutcomeDelivered, nil)
		require.NoError(t, err)
	}
	return l.Entries()
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Load(ctx, "defender")
	require.ErrorIs(t, err, history.ErrNotFound)

	entries := testEntries(t, "defender", 4)
	require.NoError(t, s.Save(ctx, "defender", entries))

	got, err := s.Load(ctx, "defender")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.NoError(t, history.VerifyChain(got))
	for i := range entries {
		assert.Equal(t, entries[i].Digest, got[i].Digest)
		assert.Equal(t, entries[i].Message.ID(), got[i].Message.ID())
	}
	assert.Len(t, history.NewSnapshot("defender", got).EntriesForCorrelation("thread-1"), 4)
}

func TestHistoryStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entries := testEntries(t, "defender", 3)
	require.NoError(t, s.Save(ctx, "defender", entries))
	require.NoError(t, s.Save(ctx, "defender", entries[1:]))

	got, err := s.Load(ctx, "defender")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entries[1].Seq, got[0].Seq)
}

func TestHistoryStore_Agents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids, err := s.Agents(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Save(ctx, "secretary", testEntries(t, "secretary", 1)))
	require.NoError(t, s.Save(ctx, "judge", nil))

	ids, err = s.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"judge", "secretary"}, ids)

	empty, err := s.Load(ctx, "judge")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHistoryStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewHistoryStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "judge", testEntries(t, "judge", 2)))
	require.NoError(t, s.Close())

	s, err = NewHistoryStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Load(ctx, "judge")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
