package eval

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
)

func restingState() affect.State {
	var s affect.State
	for i := range s {
		s[i] = 0.5
	}
	return s
}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s missing", name)
	return EvalMetric{}
}

func TestEvalPassesOnRestingState(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	r := h.Run(Observation{
		Affect:   restingState(),
		Turns:    []dialogue.InnerTurn{{Decision: dialogue.Revise}, {Decision: dialogue.Broadcast, ChainLength: 1}},
		Shared:   []dialogue.InnerTurn{{Decision: dialogue.Broadcast}},
		Interval: 2 * time.Second,
	})
	assert.True(t, r.Passed, r.Reason)
	assert.Len(t, r.Metrics, 5)
	assert.Equal(t, "all checks passed", r.Reason)
}

func TestEvalFlagsOutOfBoundsChannels(t *testing.T) {
	s := restingState()
	s[affect.Stress] = 1.2
	s[affect.Focus] = math.NaN()

	r := NewEvalHarness(DefaultEvalConfig()).Run(Observation{Affect: s})
	require.False(t, r.Passed)
	assert.Equal(t, 2.0, metric(t, r, "channel_bounds").Value)
	assert.Contains(t, r.Reason, "outside [0,1]")
}

func TestEvalFlagsChainOverCap(t *testing.T) {
	r := NewEvalHarness(DefaultEvalConfig()).Run(Observation{
		Affect: restingState(),
		Turns:  []dialogue.InnerTurn{{Decision: dialogue.Discard, ChainLength: 4}},
	})
	assert.False(t, metric(t, r, "chain_cap").Pass)
	assert.True(t, metric(t, r, "chain_terminal").Pass)
}

func TestEvalFlagsOpenChain(t *testing.T) {
	r := NewEvalHarness(DefaultEvalConfig()).Run(Observation{
		Affect: restingState(),
		Turns:  []dialogue.InnerTurn{{Decision: dialogue.Revise}},
	})
	assert.False(t, metric(t, r, "chain_terminal").Pass)
}

func TestEvalFlagsLeakedTurns(t *testing.T) {
	r := NewEvalHarness(DefaultEvalConfig()).Run(Observation{
		Affect: restingState(),
		Shared: []dialogue.InnerTurn{{Decision: dialogue.Broadcast}, {Decision: dialogue.Discard}},
	})
	m := metric(t, r, "broadcast_only_shared")
	assert.False(t, m.Pass)
	assert.Equal(t, 1.0, m.Value)
}

func TestEvalIntervalBounds(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	r := h.Run(Observation{Affect: restingState(), Interval: 10 * time.Second})
	assert.False(t, metric(t, r, "tick_interval_ms").Pass)

	r = h.Run(Observation{Affect: restingState()})
	for _, m := range r.Metrics {
		assert.NotEqual(t, "tick_interval_ms", m.Name)
	}
}

func TestEvalReasonCountsFailures(t *testing.T) {
	s := restingState()
	s[affect.Arousal] = -0.1
	r := NewEvalHarness(DefaultEvalConfig()).Run(Observation{
		Affect: s,
		Turns:  []dialogue.InnerTurn{{Decision: dialogue.Revise, ChainLength: 5}},
	})
	require.False(t, r.Passed)
	assert.Contains(t, r.Reason, "eval failed: 3 checks")
}
