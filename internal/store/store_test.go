package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func TestStore_PutGetUpsert(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	rec := memory.Record{
		ID: "m1", Timestamp: t0, Summary: "piano recital", Keywords: []string{"piano", "recital"},
		EmotionTag: "joy", Importance: 0.8, Strength: 1, LastAccess: t0, Consolidated: true,
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.AccessCount = 2
	rec.Strength = 0.9
	rec.LastAccess = t0.Add(time.Hour)
	require.NoError(t, s.Put(ctx, rec))
	got, err = s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	assert.Equal(t, t0.Add(time.Hour), got.LastAccess)

	_, err = s.Get(ctx, "missing")
	assert.True(t, tickerr.IsCode(err, tickerr.CodeNotFound))
}

func TestStore_Query(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	for i, r := range []memory.Record{
		{ID: "a", Summary: "a", EmotionTag: "joy", Importance: 0.9},
		{ID: "b", Summary: "b", EmotionTag: "fear", Importance: 0.4},
		{ID: "c", Summary: "c", EmotionTag: "joy", Importance: 0.2},
	} {
		r.Timestamp = t0.Add(time.Duration(i) * time.Minute)
		r.LastAccess = r.Timestamp
		r.Strength = 1
		require.NoError(t, s.Put(ctx, r))
	}

	all, err := s.Query(ctx, memory.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	joy, err := s.Query(ctx, memory.Filter{EmotionTag: "joy"})
	require.NoError(t, err)
	assert.Len(t, joy, 2)

	important, err := s.Query(ctx, memory.Filter{MinImportance: 0.3, Since: t0.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, important, 1)
	assert.Equal(t, "b", important[0].ID)

	limited, err := s.Query(ctx, memory.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Turns(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	turn := dialogue.InnerTurn{
		ID: "t1", RootID: "t1", EventID: "ev-1",
		Lane: personality.Deliberate, Function: personality.Thinking,
		Proposal: "Let's check the facts.", Original: "Everything is ruined.",
		Scores: dialogue.Scores{Logic: 0.7, Plausibility: 0.6, Social: 0.5, Utility: 0.8},
		Overall: 0.65, Decision: dialogue.Broadcast, Reason: "above threshold",
		ReframeApplied: true, ReframeType: "catastrophizing", CreatedAt: t0,
	}
	require.NoError(t, s.SaveTurn(ctx, turn))
	child := turn
	child.ID, child.ParentTurnID, child.ChainLength, child.CreatedAt = "t2", "t1", 1, t0.Add(time.Second)
	child.Decision = dialogue.Discard
	require.NoError(t, s.SaveTurn(ctx, child))

	got, err := s.RecentTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, child, got[0])
	assert.Equal(t, turn, got[1])
}

func TestStore_Decisions(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.LogDecision(ctx, logging.DecisionEntry{
		EventID: "ev-1", DecisionType: "respond", Content: "Hi.", Confidence: 0.7, CreatedAt: t0,
	}))
	require.NoError(t, s.LogDecision(ctx, logging.DecisionEntry{
		EventID: "ev-2", DecisionType: "acknowledge", Content: "Got it.", Degraded: true, Reason: "TIMEOUT", CreatedAt: t0,
	}))

	got, err := s.RecentDecisions(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ev-2", got[0].EventID)
	assert.True(t, got[0].Degraded)
	assert.Equal(t, "TIMEOUT", got[0].Reason)
}
