// Package replay runs recorded stimulus sequences through the affect and
// dialogue engines in memory, deterministically and without a tick loop.
package replay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	"github.com/danielpatrickdp/affect-tick/internal/eval"
	"github.com/danielpatrickdp/affect-tick/internal/lexicon"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
	"github.com/danielpatrickdp/affect-tick/internal/scheduler"
)

// #region types
// Config bundles the engine configs for a replay run.
type Config struct {
	Affect      affect.Config
	Dialogue    dialogue.Config
	Personality personality.Weights
	Scheduler   scheduler.Config
	Eval        eval.EvalConfig
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		Affect:      affect.DefaultConfig(),
		Dialogue:    dialogue.DefaultConfig(),
		Personality: personality.Default(),
		Scheduler:   scheduler.DefaultConfig(),
		Eval:        eval.DefaultEvalConfig(),
	}
}

// StepResult captures the outcome of replaying one step.
type StepResult struct {
	StepID   string
	Decision dialogue.Decision // verdict of the last turn in the chain
	Lane     personality.Lane  // lane of the root turn
	Turns    []dialogue.InnerTurn
	Emotion  string
	Affect   affect.State // after the chain, including any safety lift
	Interval int64        // tick interval in ms derived from Affect
	Warning  string       // rejected stimulus, if any
	Eval     eval.EvalResult
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Steps       int
	Broadcasts  int
	Discards    int
	Revisions   int
	SafetyTrips int
	EvalFails   int
	FinalAffect affect.State
}

// #endregion types

// #region stimulus-adapter
type engineSink struct{ e *affect.Engine }

func (s engineSink) Stimulate(deltas map[affect.Channel]float64) error {
	return s.e.UpdateChannels(deltas)
}

// #endregion stimulus-adapter

// #region replay
// Replay applies each step's stimulus, reflects on it and checks invariants.
// It stops at the first engine error.
func Replay(ctx context.Context, f *Fixture, cfg Config, log *zap.Logger) ([]StepResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	engine, err := affect.NewEngine(cfg.Affect, log)
	if err != nil {
		return nil, err
	}
	engine.SetState(f.StartAffect(cfg.Affect))

	var current Step
	fallback := dialogue.TemplateGenerator{NegativeAppraisal: cfg.Dialogue.NegativeAppraisal}
	gen := dialogue.GeneratorFunc(func(ctx context.Context, d dialogue.Draft) (string, error) {
		if d.Parent == nil && current.Proposal != "" {
			return current.Proposal, nil
		}
		return fallback.Propose(ctx, d)
	})

	dcfg := cfg.Dialogue
	dcfg.RulesPath = ""
	dlg, err := dialogue.New(dcfg, cfg.Personality, dialogue.Options{
		Generator: gen,
		Stimulus:  engineSink{engine},
		Snapshot:  engine.Snapshot,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	checker := eval.NewEvalHarness(cfg.Eval)

	results := make([]StepResult, 0, len(f.Steps))
	for _, step := range f.Steps {
		current = step
		res := StepResult{StepID: step.ID}
		if err := engine.UpdateNamed(step.Stimulus); err != nil {
			res.Warning = err.Error()
		}

		keywords := step.Keywords
		if len(keywords) == 0 {
			keywords = lexicon.Tokenize(step.Topic)
		}
		turns, err := dlg.Deliberate(ctx, dialogue.Request{
			EventID:   step.ID,
			Topic:     step.Topic,
			Keywords:  keywords,
			Appraisal: step.Appraisal,
			Affect:    engine.Snapshot(),
		})
		if err != nil {
			return results, fmt.Errorf("step %s: %w", step.ID, err)
		}

		snap := engine.Snapshot()
		interval := scheduler.ComputeTickInterval(snap, cfg.Scheduler)
		res.Turns = turns
		res.Lane = turns[0].Lane
		res.Decision = turns[len(turns)-1].Decision
		res.Emotion = snap.Emotion.Label
		res.Affect = snap.State
		res.Interval = interval.Milliseconds()
		res.Eval = checker.Run(eval.Observation{
			Affect:   snap.State,
			Turns:    turns,
			Shared:   dlg.Shared().Recent(cfg.Dialogue.SharedContextSize),
			Interval: interval,
		})
		if !res.Eval.Passed {
			log.Warn("invariant check failed", zap.String("step_id", step.ID), zap.String("reason", res.Eval.Reason))
		}
		results = append(results, res)
	}
	return results, nil
}

// #endregion replay

// #region summary
// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult) Summary {
	s := Summary{Steps: len(results)}
	for _, r := range results {
		switch r.Decision {
		case dialogue.Broadcast:
			s.Broadcasts++
		case dialogue.Discard:
			s.Discards++
		}
		for _, t := range r.Turns {
			if t.Decision == dialogue.Revise {
				s.Revisions++
			}
			if t.SafetyTriggered {
				s.SafetyTrips++
			}
		}
		if !r.Eval.Passed {
			s.EvalFails++
		}
	}
	if len(results) > 0 {
		s.FinalAffect = results[len(results)-1].Affect
	}
	return s
}

// Mismatch is one expected outcome that did not occur.
type Mismatch struct {
	StepID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %q got %q", m.StepID, m.Field, m.Want, m.Got)
}

// CheckExpected compares results against the fixture's expectations.
func CheckExpected(f *Fixture, results []StepResult) []Mismatch {
	byID := make(map[string]StepResult, len(results))
	for _, r := range results {
		byID[r.StepID] = r
	}
	var out []Mismatch
	for _, e := range f.Expected {
		r, ok := byID[e.StepID]
		if !ok {
			out = append(out, Mismatch{StepID: e.StepID, Field: "step", Want: "replayed", Got: "missing"})
			continue
		}
		if e.Decision != "" && string(r.Decision) != e.Decision {
			out = append(out, Mismatch{StepID: e.StepID, Field: "decision", Want: e.Decision, Got: string(r.Decision)})
		}
		if e.Lane != "" && string(r.Lane) != e.Lane {
			out = append(out, Mismatch{StepID: e.StepID, Field: "lane", Want: e.Lane, Got: string(r.Lane)})
		}
		if e.Emotion != "" && r.Emotion != e.Emotion {
			out = append(out, Mismatch{StepID: e.StepID, Field: "emotion", Want: e.Emotion, Got: r.Emotion})
		}
	}
	return out
}

// #endregion summary
