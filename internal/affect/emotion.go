package affect

import (
	"math"
	"math/rand/v2"
)

// #region emotion-point
// EmotionPoint is the state projected onto pleasure/arousal/dominance space
// and labelled by its nearest reference emotions.
type EmotionPoint struct {
	Pleasure  float64 `json:"pleasure"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Label     string  `json:"label"`
	SubLabel  string  `json:"sub_label"`
	Intensity float64 `json:"intensity"`
}

// EmotionOptions enables bounded, seeded jitter on the projected coordinate.
// The zero value disables jitter.
type EmotionOptions struct {
	Jitter float64 // max absolute offset per axis
	Seed   uint64
}

type reference struct {
	label   string
	p, a, d float64
}

// Reference points in [0,1]^3; 0.5 is neutral on each axis.
var references = []reference{
	{"joy", 0.90, 0.65, 0.65},
	{"excitement", 0.80, 0.90, 0.60},
	{"contentment", 0.80, 0.30, 0.60},
	{"calm", 0.65, 0.15, 0.50},
	{"surprise", 0.60, 0.85, 0.40},
	{"neutral", 0.50, 0.50, 0.50},
	{"boredom", 0.35, 0.15, 0.35},
	{"sadness", 0.15, 0.25, 0.25},
	{"fear", 0.15, 0.85, 0.15},
	{"anger", 0.15, 0.85, 0.80},
	{"disgust", 0.20, 0.55, 0.60},
}

// maxIntensity is the distance from the neutral centre to a cube corner.
var maxIntensity = math.Sqrt(3) * 0.5
// #endregion emotion-point

// #region compute
// ComputeEmotionPoint is a pure function of s: repeated calls without an
// intervening update return identical points.
func ComputeEmotionPoint(s State) EmotionPoint {
	return project(s[Valence], s[Arousal], s[Drive])
}

// ComputeEmotionPointWith applies opts before labelling. The same seed and
// state always yield the same point.
func ComputeEmotionPointWith(s State, opts EmotionOptions) EmotionPoint {
	p, a, d := s[Valence], s[Arousal], s[Drive]
	if opts.Jitter > 0 {
		r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
		p = clamp01(p + (r.Float64()*2-1)*opts.Jitter)
		a = clamp01(a + (r.Float64()*2-1)*opts.Jitter)
		d = clamp01(d + (r.Float64()*2-1)*opts.Jitter)
	}
	return project(p, a, d)
}

func project(p, a, d float64) EmotionPoint {
	first, second := -1, -1
	firstDist, secondDist := math.Inf(1), math.Inf(1)
	for i, ref := range references {
		dist := distance(p, a, d, ref.p, ref.a, ref.d)
		switch {
		case dist < firstDist:
			second, secondDist = first, firstDist
			first, firstDist = i, dist
		case dist < secondDist:
			second, secondDist = i, dist
		}
	}
	intensity := distance(p, a, d, 0.5, 0.5, 0.5) / maxIntensity
	return EmotionPoint{
		Pleasure:  p,
		Arousal:   a,
		Dominance: d,
		Label:     references[first].label,
		SubLabel:  references[second].label,
		Intensity: clamp01(intensity),
	}
}

func distance(p1, a1, d1, p2, a2, d2 float64) float64 {
	dp, da, dd := p1-p2, a1-a2, d1-d2
	return math.Sqrt(dp*dp + da*da + dd*dd)
}
// #endregion compute

// #region labels
// Labels lists the reference emotion labels.
func Labels() []string {
	out := make([]string, len(references))
	for i, r := range references {
		out[i] = r.label
	}
	return out
}
// #endregion labels
