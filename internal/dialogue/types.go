package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region decision
// Decision is the auditor's verdict on a turn.
type Decision string

const (
	Broadcast Decision = "broadcast"
	Revise    Decision = "revise"
	Discard   Decision = "discard"
)

// Criterion names one evaluation dimension.
type Criterion string

const (
	Logic        Criterion = "logic"
	Plausibility Criterion = "plausibility"
	Social       Criterion = "social"
	Utility      Criterion = "utility"
)
// #endregion decision

// #region turn
// Scores are the evaluator's per-criterion results, each in [0,1].
type Scores struct {
	Logic        float64 `json:"logic"`
	Plausibility float64 `json:"plausibility"`
	Social       float64 `json:"social"`
	Utility      float64 `json:"utility"`
}

// Get returns the score for c.
func (s Scores) Get(c Criterion) float64 {
	switch c {
	case Logic:
		return s.Logic
	case Plausibility:
		return s.Plausibility
	case Social:
		return s.Social
	case Utility:
		return s.Utility
	}
	return 0
}

// Weakest returns the lowest scoring criterion. Ties go to the earlier one.
func (s Scores) Weakest() Criterion {
	weakest := Logic
	for _, c := range []Criterion{Plausibility, Social, Utility} {
		if s.Get(c) < s.Get(weakest) {
			weakest = c
		}
	}
	return weakest
}

// InnerTurn is one proposal of the inner dialogue and its verdict.
type InnerTurn struct {
	ID              string               `json:"id"`
	RootID          string               `json:"root_id"`
	EventID         string               `json:"event_id"`
	Lane            personality.Lane     `json:"lane"`
	Function        personality.Function `json:"function"`
	Proposal        string               `json:"proposal"`
	Original        string               `json:"original"`
	Scores          Scores               `json:"scores"`
	Overall         float64              `json:"overall"`
	Decision        Decision             `json:"decision"`
	Reason          string               `json:"reason"`
	ParentTurnID    string               `json:"parent_turn_id,omitempty"`
	ChainLength     int                  `json:"chain_length"`
	ReframeApplied  bool                 `json:"reframe_applied"`
	ReframeType     string               `json:"reframe_type,omitempty"`
	SafetyTriggered bool                 `json:"safety_triggered"`
	CreatedAt       time.Time            `json:"created_at"`
}
// #endregion turn

// #region request
// Request asks the dialogue to reflect on a perceived event.
type Request struct {
	EventID   string
	Topic     string
	Keywords  []string
	Appraisal float64 // [-1,1]
	Intent    string
	Affect    affect.Snapshot
}
// #endregion request

// #region sinks
// AuditSink persists every turn.
type AuditSink interface {
	SaveTurn(ctx context.Context, t InnerTurn) error
}

// StimulusSink receives affect deltas produced by the dialogue.
type StimulusSink interface {
	Stimulate(deltas map[affect.Channel]float64) error
}
// #endregion sinks

// #region config
// LaneRule selects a lane when the dominant channel reaches Min.
type LaneRule struct {
	Channel affect.Channel   `yaml:"channel"`
	Min     float64          `yaml:"min"`
	Lane    personality.Lane `yaml:"lane"`
}

// EvalWeights weight the evaluation criteria. They are normalised by their sum.
type EvalWeights struct {
	Logic        float64 `yaml:"logic"`
	Plausibility float64 `yaml:"plausibility"`
	Social       float64 `yaml:"social"`
	Utility      float64 `yaml:"utility"`
}

// Config controls the inner dialogue.
type Config struct {
	MaxChain           int     `yaml:"max_chain"`
	BroadcastThreshold float64 `yaml:"broadcast_threshold"`
	ReviseThreshold    float64 `yaml:"revise_threshold"`
	StressPenalty      float64 `yaml:"stress_penalty"` // raises the broadcast bar by stress × penalty

	TripArousal   float64 `yaml:"trip_arousal"`
	TripValence   float64 `yaml:"trip_valence"` // signed valence must be below this
	SoothingTurns int     `yaml:"soothing_turns"`
	LiftValence   float64 `yaml:"lift_valence"`
	LiftArousal   float64 `yaml:"lift_arousal"`

	NegativeAppraisal float64 `yaml:"negative_appraisal"` // reactive drafts catastrophize below this

	LaneRules      []LaneRule       `yaml:"lane_rules"`
	DefaultLane    personality.Lane `yaml:"default_lane"`
	Weights        EvalWeights      `yaml:"weights"`
	UnsafePatterns []string         `yaml:"unsafe_patterns"`

	SharedContextSize int    `yaml:"shared_context_size"`
	AuditLogSize      int    `yaml:"audit_log_size"`
	RequestBuffer     int    `yaml:"request_buffer"`
	RulesPath         string `yaml:"rules_path"`
}

// DefaultConfig returns the default dialogue settings.
func DefaultConfig() Config {
	return Config{
		MaxChain:           3,
		BroadcastThreshold: 0.6,
		ReviseThreshold:    0.35,
		StressPenalty:      0.3,
		TripArousal:        0.8,
		TripValence:        0,
		SoothingTurns:      3,
		LiftValence:        0.2,
		LiftArousal:        -0.1,
		NegativeAppraisal:  -0.3,
		LaneRules: []LaneRule{
			{Channel: affect.Arousal, Min: 0.6, Lane: personality.Reactive},
			{Channel: affect.Stability, Min: 0.6, Lane: personality.Deliberate},
			{Channel: affect.Drive, Min: 0.6, Lane: personality.Reactive},
			{Channel: affect.Inhibition, Min: 0.5, Lane: personality.Deliberate},
			{Channel: affect.Focus, Min: 0.7, Lane: personality.Deliberate},
		},
		DefaultLane: personality.Reactive,
		Weights:     EvalWeights{Logic: 0.3, Plausibility: 0.25, Social: 0.2, Utility: 0.25},
		UnsafePatterns: []string{
			`(?i)\b(hurt|harm|kill)\s+(yourself|myself|themselves|someone)\b`,
			`(?i)\bgive up on everything\b`,
			`(?i)\bno reason to (live|go on)\b`,
		},
		SharedContextSize: 32,
		AuditLogSize:      256,
		RequestBuffer:     16,
	}
}

// Validate checks thresholds and sizes.
func (c Config) Validate() error {
	if c.MaxChain < 1 {
		return fmt.Errorf("dialogue: max_chain must be >= 1")
	}
	if c.ReviseThreshold < 0 || c.BroadcastThreshold <= c.ReviseThreshold || c.BroadcastThreshold > 1 {
		return fmt.Errorf("dialogue: thresholds revise=%.2f broadcast=%.2f invalid", c.ReviseThreshold, c.BroadcastThreshold)
	}
	if c.StressPenalty < 0 {
		return fmt.Errorf("dialogue: stress_penalty negative")
	}
	if c.TripArousal <= 0 || c.TripArousal > 1 || c.SoothingTurns < 0 {
		return fmt.Errorf("dialogue: safety settings invalid")
	}
	w := c.Weights
	if w.Logic < 0 || w.Plausibility < 0 || w.Social < 0 || w.Utility < 0 ||
		w.Logic+w.Plausibility+w.Social+w.Utility <= 0 {
		return fmt.Errorf("dialogue: evaluator weights must be non-negative with a positive sum")
	}
	for i, r := range c.LaneRules {
		if !r.Channel.Valid() || (r.Lane != personality.Reactive && r.Lane != personality.Deliberate) {
			return fmt.Errorf("dialogue: lane rule %d invalid", i)
		}
	}
	if c.SharedContextSize < 1 || c.AuditLogSize < 1 || c.RequestBuffer < 1 {
		return fmt.Errorf("dialogue: buffer sizes must be positive")
	}
	return nil
}
// #endregion config
