package dialogue

import (
	"strings"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/lexicon"
)

// #region evaluator
// Evaluator scores proposals by keyword heuristics. No model call.
type Evaluator struct {
	weights EvalWeights
}

// NewEvaluator normalises w by its sum.
func NewEvaluator(w EvalWeights) *Evaluator {
	sum := w.Logic + w.Plausibility + w.Social + w.Utility
	if sum <= 0 {
		w = DefaultConfig().Weights
		sum = w.Logic + w.Plausibility + w.Social + w.Utility
	}
	return &Evaluator{weights: EvalWeights{
		Logic:        w.Logic / sum,
		Plausibility: w.Plausibility / sum,
		Social:       w.Social / sum,
		Utility:      w.Utility / sum,
	}}
}

// Weights returns the normalised weights.
func (e *Evaluator) Weights() EvalWeights { return e.weights }

// Evaluate scores text against the request it answers.
func (e *Evaluator) Evaluate(text string, req Request) (Scores, float64) {
	s := Scores{
		Logic:        scoreLogic(text),
		Plausibility: scorePlausibility(text),
		Social:       scoreSocial(text, req.Affect),
		Utility:      scoreUtility(text, req),
	}
	overall := s.Logic*e.weights.Logic +
		s.Plausibility*e.weights.Plausibility +
		s.Social*e.weights.Social +
		s.Utility*e.weights.Utility
	return s, clamp01(overall)
}
// #endregion evaluator

// #region criteria
func scoreLogic(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return clamp01(1 - 0.2*float64(lexicon.AbsolutistCount(text)) - 0.3*float64(lexicon.Contradictions(text)))
}

func scorePlausibility(text string) float64 {
	hedge := 0.1 * float64(lexicon.HedgeCount(text))
	if hedge > 0.2 {
		hedge = 0.2
	}
	return clamp01(0.7 - 0.1*float64(lexicon.AbsolutistCount(text)) + hedge)
}

func scoreSocial(text string, snap affect.Snapshot) float64 {
	score := 0.5 +
		0.15*float64(lexicon.EmpathyCount(text)) -
		0.3*float64(lexicon.HostilityCount(text)) +
		0.2*(snap.Get(affect.Affiliation)-0.5)
	return clamp01(score)
}

func scoreUtility(text string, req Request) float64 {
	engagement := 0.5
	if len(req.Keywords) > 0 {
		tokens := lexicon.Tokenize(text)
		engagement = float64(lexicon.SharedKeywords(req.Keywords, tokens)) / float64(len(req.Keywords))
	}

	words := len(strings.Fields(text))
	var length float64
	switch {
	case words < 5:
		length = 0.3
	case words <= 40:
		length = 1
	default:
		length = 0.7
	}
	return clamp01(0.6*engagement + 0.4*length)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
// #endregion criteria
