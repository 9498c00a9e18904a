package memory

import (
	"context"
	"fmt"
	"time"
)

// #region record
// Record is one remembered event. Records are values: every change produces
// a new Record, so readers never observe a partial update.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Summary      string    `json:"summary"`
	Keywords     []string  `json:"keywords"`
	EmotionTag   string    `json:"emotion_tag"`
	Importance   float64   `json:"importance"` // [0,1]
	Strength     float64   `json:"strength"`   // [0,1] at LastAccess
	LastAccess   time.Time `json:"last_access"`
	AccessCount  int       `json:"access_count"`
	Consolidated bool      `json:"consolidated"`
}
// #endregion record

// #region store-interface
// Filter narrows a PersistentStore query. Zero fields do not filter.
type Filter struct {
	Since         time.Time
	EmotionTag    string
	MinImportance float64
	Limit         int
}

// PersistentStore is long-term storage for consolidated records.
// Put is an upsert keyed by ID.
type PersistentStore interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	Query(ctx context.Context, f Filter) ([]Record, error)
}
// #endregion store-interface

// #region retrieval-types
// Cue is what retrieval searches with.
type Cue struct {
	Text       string
	Keywords   []string // derived from Text when empty
	EmotionTag string
	Now        time.Time // zero means the service clock
	Exclude    []string  // record IDs never returned
}

// Match is one confident recall.
type Match struct {
	Record   Record
	Score    float64
	Strength float64 // decayed strength at retrieval time, before boosting
	LongTerm bool
}

// Result is the outcome of a retrieval.
type Result struct {
	Matches            []Match
	NoConfidentMemory  bool
	ClarifyingQuestion string
	// Stale is set when a long-term boost lost a concurrent update twice; the
	// matches are correct but their strength boost was not applied.
	Stale bool
}
// #endregion retrieval-types

// #region config
// ScoreWeights weight the retrieval score components.
type ScoreWeights struct {
	Overlap   float64 `yaml:"overlap"`
	Recency   float64 `yaml:"recency"`
	Frequency float64 `yaml:"frequency"`
	Emotion   float64 `yaml:"emotion"`
}

// Config controls retention, consolidation and retrieval.
type Config struct {
	ShortTermCapacity      int           `yaml:"short_term_capacity"`
	HalfLife               time.Duration `yaml:"half_life"`
	ConsolidationThreshold float64       `yaml:"consolidation_threshold"`
	ConfidenceThreshold    float64       `yaml:"confidence_threshold"`
	RetrievalBoost         float64       `yaml:"retrieval_boost"`
	TopK                   int           `yaml:"top_k"`
	Weights                ScoreWeights  `yaml:"weights"`
	ConsolidateEvery       time.Duration `yaml:"consolidate_every"`
	LoadLimit              int           `yaml:"load_limit"`
}

// DefaultConfig returns the default memory settings.
func DefaultConfig() Config {
	return Config{
		ShortTermCapacity:      64,
		HalfLife:               6 * time.Hour,
		ConsolidationThreshold: 0.35,
		ConfidenceThreshold:    0.3,
		RetrievalBoost:         0.15,
		TopK:                   3,
		Weights:                ScoreWeights{Overlap: 0.55, Recency: 0.2, Frequency: 0.1, Emotion: 0.15},
		ConsolidateEvery:       30 * time.Second,
		LoadLimit:              1000,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.ShortTermCapacity < 1 || c.TopK < 1 {
		return fmt.Errorf("memory: capacity and top_k must be positive")
	}
	if c.HalfLife <= 0 || c.ConsolidateEvery <= 0 {
		return fmt.Errorf("memory: half_life and consolidate_every must be positive")
	}
	for name, v := range map[string]float64{
		"consolidation_threshold": c.ConsolidationThreshold,
		"confidence_threshold":    c.ConfidenceThreshold,
		"retrieval_boost":         c.RetrievalBoost,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("memory: %s %.3f outside [0,1]", name, v)
		}
	}
	w := c.Weights
	if w.Overlap < 0 || w.Recency < 0 || w.Frequency < 0 || w.Emotion < 0 || w.Overlap+w.Recency+w.Frequency+w.Emotion <= 0 {
		return fmt.Errorf("memory: score weights must be non-negative with a positive sum")
	}
	return nil
}
// #endregion config
