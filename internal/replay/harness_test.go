package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	"github.com/danielpatrickdp/affect-tick/internal/eval"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region fixture-tests
func TestFixture_DistressSession(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "distress_session.json"))
	require.NoError(t, err)

	results, err := Replay(context.Background(), f, DefaultConfig(), nil)
	require.NoError(t, err)
	require.Len(t, results, len(f.Steps))

	for _, m := range CheckExpected(f, results) {
		t.Errorf("mismatch: %s", m)
	}
	for _, r := range results {
		assert.True(t, r.Eval.Passed, "%s: %s", r.StepID, r.Eval.Reason)
		assert.NotEqual(t, dialogue.Revise, r.Decision, r.StepID)
	}

	first := results[0]
	require.NotEmpty(t, first.Turns)
	assert.True(t, first.Turns[0].SafetyTriggered)
	assert.Empty(t, first.Warning)

	unsafe := results[1]
	require.Len(t, unsafe.Turns, 1)
	assert.Equal(t, "I might hurt myself over this.", unsafe.Turns[0].Proposal)
	assert.Contains(t, unsafe.Turns[0].Reason, "unsafe content")

	assert.Contains(t, results[2].Warning, "mood")

	s := Summarize(results)
	assert.Equal(t, 3, s.Steps)
	assert.Equal(t, 1, s.SafetyTrips)
	assert.GreaterOrEqual(t, s.Discards, 1)
	assert.Zero(t, s.EvalFails)
	assert.Equal(t, results[2].Affect, s.FinalAffect)
}

func TestReplay_SafetyLiftReachesAffect(t *testing.T) {
	f := &Fixture{
		StartState: map[string]float64{"arousal": 0.95, "valence": 0.1},
		Steps:      []Step{{ID: "s1", Topic: "alarm", Appraisal: -0.8}},
	}
	results, err := Replay(context.Background(), f, DefaultConfig(), nil)
	require.NoError(t, err)

	// one relaxation step, then the lift on top of it
	cfg := affect.DefaultConfig()
	relaxed := 0.1 + (cfg.Valence.Baseline-0.1)*cfg.Valence.PullRate
	assert.Greater(t, results[0].Affect[affect.Valence], relaxed)
	assert.Equal(t, personality.Deliberate, results[0].Lane)
}

func TestReplay_RootProposalOverride(t *testing.T) {
	f := &Fixture{Steps: []Step{{ID: "s1", Topic: "the release", Proposal: "Let me check what is known about the release."}}}
	results, err := Replay(context.Background(), f, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, results[0].Turns)
	assert.Equal(t, "Let me check what is known about the release.", results[0].Turns[0].Original)
	for _, turn := range results[0].Turns[1:] {
		assert.NotEmpty(t, turn.ParentTurnID)
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	f := &Fixture{Steps: []Step{{ID: "s1", Topic: "anything"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Replay(ctx, f, DefaultConfig(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

// #endregion fixture-tests

// #region loader-tests
func TestLoadFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown channel", `{"start_state":{"mood":0.5}}`, "unknown channel"},
		{"missing id", `{"steps":[{"topic":"x"}]}`, "missing id"},
		{"duplicate id", `{"steps":[{"id":"a"},{"id":"a"}]}`, "duplicate id"},
		{"appraisal", `{"steps":[{"id":"a","appraisal":2}]}`, "appraisal"},
		{"expected step", `{"steps":[{"id":"a"}],"expected":[{"step_id":"b"}]}`, "unknown step"},
		{"syntax", `{`, "parse fixture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadFixture(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStartAffect_OverlaysBaselines(t *testing.T) {
	cfg := affect.DefaultConfig()
	f := &Fixture{StartState: map[string]float64{"focus": 0.9}}
	s := f.StartAffect(cfg)
	assert.Equal(t, 0.9, s[affect.Focus])
	assert.Equal(t, cfg.Arousal.Baseline, s[affect.Arousal])
}

// #endregion loader-tests

// #region check-tests
func TestCheckExpected_ReportsMismatches(t *testing.T) {
	f := &Fixture{Expected: []Expected{
		{StepID: "a", Decision: "broadcast", Lane: "reactive"},
		{StepID: "b", Decision: "discard"},
	}}
	results := []StepResult{{StepID: "a", Decision: dialogue.Discard, Lane: personality.Reactive}}

	got := CheckExpected(f, results)
	require.Len(t, got, 2)
	assert.Equal(t, Mismatch{StepID: "a", Field: "decision", Want: "broadcast", Got: "discard"}, got[0])
	assert.Equal(t, "step", got[1].Field)
}

func TestSummarize_Counts(t *testing.T) {
	results := []StepResult{
		{Decision: dialogue.Broadcast, Turns: []dialogue.InnerTurn{{Decision: dialogue.Revise, SafetyTriggered: true}, {Decision: dialogue.Broadcast}}, Eval: eval.EvalResult{Passed: true}},
		{Decision: dialogue.Discard, Turns: []dialogue.InnerTurn{{Decision: dialogue.Discard}}, Eval: eval.EvalResult{Passed: false}},
	}
	s := Summarize(results)
	assert.Equal(t, Summary{Steps: 2, Broadcasts: 1, Discards: 1, Revisions: 1, SafetyTrips: 1, EvalFails: 1}, s)
}

// #endregion check-tests
