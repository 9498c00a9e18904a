package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region helpers
func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(personality.Default(), nil)
	require.NoError(t, err)
	return p
}

func restSnap() affect.Snapshot {
	e, _ := affect.NewEngine(affect.DefaultConfig(), nil)
	return e.Snapshot()
}
// #endregion helpers

// #region ordering-tests
func TestStep_RunsInOrderThroughStages(t *testing.T) {
	p := newPipeline(t)
	snap := restSnap()
	require.NoError(t, p.Begin(Event{ID: "ev-1", Text: "where are my keys?", Salience: 0.5}, snap))

	var order []SubStep
	var stages []Stage
	for p.Stage() != Complete {
		stages = append(stages, p.Stage())
		sub, err := p.Step(context.Background(), snap)
		require.NoError(t, err)
		order = append(order, sub)
	}
	assert.Equal(t, SubSteps(), order)
	assert.Equal(t, []Stage{
		Perceiving, Perceiving, Perceiving, Perceiving,
		Judging, Judging, Judging, Judging,
	}, stages)

	out, err := p.Finish()
	require.NoError(t, err)
	assert.Equal(t, Idle, p.Stage())
	assert.Len(t, out.Annotations, NumSubSteps)
	assert.Equal(t, IntentQuestion, out.Intent)
	assert.Equal(t, HintRespond, out.DecisionHint)
	assert.Contains(t, out.Keywords, "keys")
}

func TestBegin_RejectsWhileBusy(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.Begin(Event{ID: "a", Text: "hi"}, restSnap()))
	assert.Error(t, p.Begin(Event{ID: "b"}, restSnap()))

	assert.Equal(t, "a", p.Abort())
	assert.Equal(t, Idle, p.Stage())
	assert.NoError(t, p.Begin(Event{ID: "b"}, restSnap()))
}

func TestFinish_RequiresComplete(t *testing.T) {
	p := newPipeline(t)
	_, err := p.Finish()
	assert.Error(t, err)
	_, err = p.Step(context.Background(), restSnap())
	assert.Error(t, err)
}

func TestStep_CapturesJudgmentSnapshotAtBoundary(t *testing.T) {
	p := newPipeline(t)
	first := restSnap()
	require.NoError(t, p.Begin(Event{ID: "ev", Text: "hello"}, first))

	cfg := affect.DefaultConfig()
	later := affect.NewSnapshot(affect.State{affect.Arousal: 0.9}, cfg)
	for p.Stage() != Complete {
		_, err := p.Step(context.Background(), later)
		require.NoError(t, err)
	}
	out, err := p.Finish()
	require.NoError(t, err)
	assert.Equal(t, first.State, out.PerceivedWith.State)
	assert.Equal(t, 0.9, out.JudgedWith.Get(affect.Arousal))
}
// #endregion ordering-tests

// #region failure-tests
func TestStep_FailureIsSkippedNotFatal(t *testing.T) {
	p := newPipeline(t)
	p.SetStep(Thinking, func(Input) (Annotation, error) {
		return Annotation{}, errors.New("classifier down")
	})
	p.SetStep(Openness, func(Input) (Annotation, error) {
		panic("boom")
	})

	out, err := p.Process(context.Background(), Event{ID: "ev", Text: "remember the meeting"}, restSnap())
	require.NoError(t, err)
	assert.Equal(t, []SubStep{Thinking, Openness}, out.Skipped)
	assert.Len(t, out.Annotations, NumSubSteps-2)
	assert.Equal(t, IntentStatement, out.Intent, "falls back when thinking is skipped")
	assert.NotEmpty(t, out.DecisionHint)
}

func TestSensation_EmptyEventSkipped(t *testing.T) {
	p := newPipeline(t)
	out, err := p.Process(context.Background(), Event{ID: "ev"}, restSnap())
	require.NoError(t, err)
	assert.Contains(t, out.Skipped, Sensation)
}
// #endregion failure-tests

// #region judgment-tests
func TestJudgment_Intents(t *testing.T) {
	tests := []struct {
		text   string
		intent Intent
		hint   DecisionHint
	}{
		{"turn off the lights", IntentCommand, HintAct},
		{"do you remember what I said about Paris?", IntentRecall, HintRespond},
		{"what is the capital of France?", IntentQuestion, HintRespond},
		{"why?", IntentQuestion, HintClarify},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			p := newPipeline(t)
			out, err := p.Process(context.Background(), Event{ID: "ev", Text: tt.text, Salience: 0.5}, restSnap())
			require.NoError(t, err)
			assert.Equal(t, tt.intent, out.Intent)
			assert.Equal(t, tt.hint, out.DecisionHint)
		})
	}
}

func TestFeeling_NegativeEventRaisesStress(t *testing.T) {
	p := newPipeline(t)
	out, err := p.Process(context.Background(), Event{
		ID:          "ev",
		Text:        "the kitchen is on fire, this is terrible",
		Salience:    0.9,
		ValenceHint: -0.8,
		ArousalHint: 0.9,
	}, restSnap())
	require.NoError(t, err)

	assert.Less(t, out.Appraisal, -0.3)
	assert.Less(t, out.Stimulus[affect.Valence], 0.0)
	assert.Greater(t, out.Stimulus[affect.Arousal], 0.2)
	assert.Greater(t, out.Stimulus[affect.Stress], 0.0)
	assert.GreaterOrEqual(t, out.Appraisal, -1.0)
}

func TestPersonality_BiasesAttention(t *testing.T) {
	ev := Event{ID: "ev", Text: "look at that", Salience: 0.5}

	low := personality.Default()
	low.Extroversion = 0
	high := personality.Default()
	high.Extroversion = 1

	pl, err := New(low, nil)
	require.NoError(t, err)
	ph, err := New(high, nil)
	require.NoError(t, err)

	a, err := pl.Process(context.Background(), ev, restSnap())
	require.NoError(t, err)
	b, err := ph.Process(context.Background(), ev, restSnap())
	require.NoError(t, err)
	assert.Greater(t, b.Attention, a.Attention)
}

func TestNew_InvalidWeights(t *testing.T) {
	w := personality.Default()
	w.Closure = -1
	_, err := New(w, nil)
	assert.Error(t, err)
}
// #endregion judgment-tests
