package pipeline

import (
	"errors"
	"strings"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/lexicon"
)

// #region step-func
// Input is everything a sub-step may look at. Prior holds the merged output
// of the sub-steps that already ran for this event.
type Input struct {
	Event  Event
	Affect affect.Snapshot
	Weight float64
	Prior  Annotated
}

// StepFunc computes one sub-step. It must not retain or mutate Input.
type StepFunc func(in Input) (Annotation, error)

var errNoContent = errors.New("event carries no text or entities")

func defaultSteps() [NumSubSteps]StepFunc {
	return [NumSubSteps]StepFunc{
		Extroversion: extroversion,
		Introversion: introversion,
		Sensation:    sensation,
		Intuition:    intuition,
		Feeling:      feeling,
		Thinking:     thinking,
		Openness:     openness,
		Closure:      closure,
	}
}

// gain maps a personality weight in [0,1] to a multiplier in [0.5,1.5].
func gain(w float64) float64 {
	return 0.5 + w
}
// #endregion step-func

// #region perception
// extroversion scores how much the event draws outward attention.
func extroversion(in Input) (Annotation, error) {
	entities := float64(len(in.Event.Entities))
	if entities > 4 {
		entities = 4
	}
	raw := in.Event.Salience*0.6 + in.Affect.Get(affect.Arousal)*0.25 + entities/4*0.15
	return Annotation{Score: clamp01(raw * gain(in.Weight))}, nil
}

// introversion scores readiness to turn the event over internally.
func introversion(in Input) (Annotation, error) {
	a := in.Affect
	raw := a.Get(affect.Focus)*0.4 + a.Get(affect.Stability)*0.3 + (1-a.Get(affect.Arousal))*0.3
	return Annotation{Score: clamp01(raw * gain(in.Weight))}, nil
}

// sensation extracts the concrete content of the event.
func sensation(in Input) (Annotation, error) {
	keywords := lexicon.Tokenize(in.Event.Text)
	seen := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		seen[k] = true
	}
	for _, e := range in.Event.Entities {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !seen[e] {
			seen[e] = true
			keywords = append(keywords, e)
		}
	}
	if len(keywords) == 0 {
		return Annotation{}, errNoContent
	}
	score := clamp01(float64(len(keywords)) / 8 * gain(in.Weight))
	return Annotation{Score: score, Keywords: keywords}, nil
}

// intuition looks for open possibilities in the event.
func intuition(in Input) (Annotation, error) {
	poss := lexicon.Possibilities(in.Event.Text)
	raw := float64(len(poss)) * 0.3
	if lexicon.IsQuestion(in.Event.Text) {
		raw += 0.2
	}
	return Annotation{Score: clamp01(raw * gain(in.Weight)), Possibilities: poss}, nil
}
// #endregion perception

// #region judgment
// feeling appraises the event and proposes affect deltas.
func feeling(in Input) (Annotation, error) {
	ev := in.Event
	lexical := lexicon.Sentiment(ev.Text)
	raw := 0.5*clampSigned(ev.ValenceHint) + 0.4*lexical + 0.1*in.Affect.SignedValence()
	appraisal := clampSigned(raw * gain(in.Weight))

	stim := map[affect.Channel]float64{
		affect.Valence: appraisal * 0.15,
		affect.Arousal: clamp01(ev.ArousalHint)*0.25 + clamp01(ev.Salience)*0.1,
	}
	if appraisal < 0 {
		stim[affect.Stress] = -appraisal * 0.1
	}
	return Annotation{Score: (appraisal + 1) / 2, Appraisal: &appraisal, Stimulus: stim}, nil
}

// thinking classifies the event's intent.
func thinking(in Input) (Annotation, error) {
	text := in.Event.Text
	intent := IntentStatement
	switch {
	case lexicon.IsRecall(text):
		intent = IntentRecall
	case lexicon.IsDirectCommand(text):
		intent = IntentCommand
	case lexicon.IsQuestion(text):
		intent = IntentQuestion
	}
	certainty := clamp01(0.5 + 0.1*float64(len(in.Prior.Keywords)) - 0.15*float64(lexicon.HedgeCount(text)))
	return Annotation{
		Score:    certainty,
		Intent:   intent,
		Stimulus: map[affect.Channel]float64{affect.Focus: 0.05 * gain(in.Weight)},
	}, nil
}

// openness scores willingness to explore rather than settle.
func openness(in Input) (Annotation, error) {
	intuitionScore, _ := in.Prior.Score(Intuition)
	raw := intuitionScore*0.5 + (1-in.Affect.Get(affect.Inhibition))*0.3
	if len(in.Prior.Possibilities) > 0 {
		raw += 0.2
	}
	exploration := clamp01(raw * gain(in.Weight))
	return Annotation{
		Score:    exploration,
		Stimulus: map[affect.Channel]float64{affect.Drive: (exploration - 0.5) * 0.1},
	}, nil
}

// closure settles on a decision hint.
func closure(in Input) (Annotation, error) {
	p := in.Prior
	var hint DecisionHint
	switch p.Intent {
	case IntentCommand:
		hint = HintAct
	case IntentRecall:
		hint = HintRespond
	case IntentQuestion:
		hint = HintRespond
		if len(p.Keywords) == 0 {
			hint = HintClarify
		}
	default:
		switch {
		case p.Exploration > 0.8 && in.Weight < 0.4:
			hint = HintClarify
		case p.Attention >= 0.4 || abs(p.Appraisal) >= 0.3:
			hint = HintRespond
		default:
			hint = HintObserve
		}
	}
	return Annotation{Score: clamp01(in.Weight), Hint: hint}, nil
}
// #endregion judgment

// #region helpers
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
// #endregion helpers
