package pipeline

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region stage
// Stage is the pipeline's position within one event.
type Stage int

const (
	Idle Stage = iota
	Perceiving
	Judging
	Complete
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Perceiving:
		return "perceiving"
	case Judging:
		return "judging"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}
// #endregion stage

// #region substep
// Phase groups sub-steps.
type Phase int

const (
	Perception Phase = iota
	Judgment
)

func (p Phase) String() string {
	if p == Judgment {
		return "judgment"
	}
	return "perception"
}

// SubStep is one cognitive function applied to the event. Sub-steps run
// strictly in declaration order.
type SubStep int

const (
	Extroversion SubStep = iota
	Introversion
	Sensation
	Intuition
	Feeling
	Thinking
	Openness
	Closure

	NumSubSteps = 8
	// PerSubPhase is the number of sub-steps in each phase.
	PerSubPhase = 4
)

var subStepFunctions = [NumSubSteps]personality.Function{
	personality.Extroversion, personality.Introversion,
	personality.Sensation, personality.Intuition,
	personality.Feeling, personality.Thinking,
	personality.Openness, personality.Closure,
}

func (s SubStep) String() string {
	if s < 0 || int(s) >= NumSubSteps {
		return fmt.Sprintf("substep(%d)", int(s))
	}
	return string(subStepFunctions[s])
}

// Function returns the personality function the sub-step exercises.
func (s SubStep) Function() personality.Function {
	return subStepFunctions[s]
}

// Phase returns the phase the sub-step belongs to.
func (s SubStep) Phase() Phase {
	if s >= Feeling {
		return Judgment
	}
	return Perception
}

// SubSteps returns all sub-steps in execution order.
func SubSteps() []SubStep {
	out := make([]SubStep, NumSubSteps)
	for i := range out {
		out[i] = SubStep(i)
	}
	return out
}
// #endregion substep

// #region event
// Event is a normalised sensor input.
type Event struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Text        string    `json:"text"`
	Entities    []string  `json:"entities,omitempty"`
	Salience    float64   `json:"salience"`     // [0,1]
	ValenceHint float64   `json:"valence_hint"` // [-1,1]
	ArousalHint float64   `json:"arousal_hint"` // [0,1]
	Urgent      bool      `json:"urgent"`
	ReceivedAt  time.Time `json:"received_at"`
}
// #endregion event

// #region results
// Intent is the judged purpose of the event.
type Intent string

const (
	IntentQuestion  Intent = "question"
	IntentCommand   Intent = "command"
	IntentRecall    Intent = "recall"
	IntentStatement Intent = "statement"
)

// DecisionHint suggests what the decision stage should do.
type DecisionHint string

const (
	HintRespond DecisionHint = "respond"
	HintAct     DecisionHint = "act"
	HintObserve DecisionHint = "observe"
	HintClarify DecisionHint = "clarify"
)

// Annotation is what one sub-step contributes. Zero fields contribute nothing.
type Annotation struct {
	SubStep       SubStep
	Score         float64 // sub-step specific, [0,1] unless noted
	Weight        float64 // personality weight applied
	Keywords      []string
	Possibilities []string
	Appraisal     *float64
	Intent        Intent
	Hint          DecisionHint
	Stimulus      map[affect.Channel]float64
	Note          string
}

// Annotated is the pipeline's output for one event.
type Annotated struct {
	Event         Event
	PerceivedWith affect.Snapshot
	JudgedWith    affect.Snapshot
	Annotations   []Annotation
	Skipped       []SubStep

	Keywords      []string
	Possibilities []string
	Attention     float64
	Reflection    float64
	Appraisal     float64 // [-1,1]
	Intent        Intent
	Exploration   float64
	DecisionHint  DecisionHint
	Stimulus      map[affect.Channel]float64

	CompletedAt time.Time
}

// Score returns the score a sub-step recorded, and whether it ran.
func (a *Annotated) Score(s SubStep) (float64, bool) {
	for _, an := range a.Annotations {
		if an.SubStep == s {
			return an.Score, true
		}
	}
	return 0, false
}
// #endregion results
