// Package personality holds the cognitive-function weights that bias the
// pipeline and the inner dialogue.
package personality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region function
// Function is one of the eight cognitive functions.
type Function string

const (
	Extroversion Function = "extroversion"
	Introversion Function = "introversion"
	Sensation    Function = "sensation"
	Intuition    Function = "intuition"
	Feeling      Function = "feeling"
	Thinking     Function = "thinking"
	Openness     Function = "openness"
	Closure      Function = "closure"
)

// Functions lists the functions in pipeline order.
func Functions() []Function {
	return []Function{
		Extroversion, Introversion, Sensation, Intuition,
		Feeling, Thinking, Openness, Closure,
	}
}
// #endregion function

// #region lane
// Lane is the inner-dialogue processing style.
type Lane string

const (
	Reactive   Lane = "reactive"
	Deliberate Lane = "deliberate"
)
// #endregion lane

// #region weights
// Weights is the personality profile. Each weight is in [0,1].
type Weights struct {
	Extroversion float64 `yaml:"extroversion"`
	Introversion float64 `yaml:"introversion"`
	Sensation    float64 `yaml:"sensation"`
	Intuition    float64 `yaml:"intuition"`
	Feeling      float64 `yaml:"feeling"`
	Thinking     float64 `yaml:"thinking"`
	Openness     float64 `yaml:"openness"`
	Closure      float64 `yaml:"closure"`
}

// Default returns a balanced profile.
func Default() Weights {
	return Weights{
		Extroversion: 0.5,
		Introversion: 0.5,
		Sensation:    0.5,
		Intuition:    0.5,
		Feeling:      0.5,
		Thinking:     0.5,
		Openness:     0.5,
		Closure:      0.5,
	}
}

// Get returns the weight of f. Unknown functions weigh 0.
func (w Weights) Get(f Function) float64 {
	switch f {
	case Extroversion:
		return w.Extroversion
	case Introversion:
		return w.Introversion
	case Sensation:
		return w.Sensation
	case Intuition:
		return w.Intuition
	case Feeling:
		return w.Feeling
	case Thinking:
		return w.Thinking
	case Openness:
		return w.Openness
	case Closure:
		return w.Closure
	}
	return 0
}

// Validate checks that every weight is in [0,1].
func (w Weights) Validate() error {
	for _, f := range Functions() {
		v := w.Get(f)
		if v < 0 || v > 1 || v != v {
			return fmt.Errorf("personality: %s weight %.3f outside [0,1]", f, v)
		}
	}
	return nil
}

// Dominant returns the highest weighted function after applying mix. Ties
// resolve to the earlier function in pipeline order.
func (w Weights) Dominant(mix LaneMix) Function {
	best := Extroversion
	bestScore := -1.0
	for _, f := range Functions() {
		score := w.Get(f) * mix.Scale(f)
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	return best
}
// #endregion weights

// #region lane-mix
// LaneMix scales function weights for one lane.
type LaneMix map[Function]float64

// Scale returns the multiplier for f (1 when unset).
func (m LaneMix) Scale(f Function) float64 {
	if v, ok := m[f]; ok {
		return v
	}
	return 1
}

// MixFor returns the default mix for a lane. Reactive turns lean on outward,
// concrete, fast functions; deliberate turns on inward, abstract, slow ones.
func MixFor(l Lane) LaneMix {
	if l == Deliberate {
		return LaneMix{
			Introversion: 1.5, Intuition: 1.3, Thinking: 1.5, Openness: 1.3,
			Extroversion: 0.7, Sensation: 0.8, Feeling: 0.9, Closure: 0.7,
		}
	}
	return LaneMix{
		Extroversion: 1.5, Sensation: 1.3, Feeling: 1.5, Closure: 1.3,
		Introversion: 0.7, Intuition: 0.8, Thinking: 0.8, Openness: 0.7,
	}
}
// #endregion lane-mix

// #region load
// Load reads a weights file. Missing functions default to 0.5.
func Load(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read personality: %w", err)
	}
	w := Default()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("parse personality: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
// #endregion load
