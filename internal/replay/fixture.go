package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string             `json:"description"`
	StartState  map[string]float64 `json:"start_state"`
	Steps       []Step             `json:"steps"`
	Expected    []Expected         `json:"expected"`
}

// Step is one stimulus plus the reflection it triggers.
type Step struct {
	ID        string             `json:"id"`
	Stimulus  map[string]float64 `json:"stimulus"`
	Topic     string             `json:"topic"`
	Keywords  []string           `json:"keywords,omitempty"`
	Appraisal float64            `json:"appraisal"`
	// Proposal overrides the root draft; revisions still come from the template generator.
	Proposal string `json:"proposal,omitempty"`
}

// Expected captures the expected outcome per step. Empty fields are not checked.
type Expected struct {
	StepID   string `json:"step_id"`
	Decision string `json:"decision"`
	Lane     string `json:"lane,omitempty"`
	Emotion  string `json:"emotion,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks channel names and step IDs.
func (f *Fixture) Validate() error {
	for name := range f.StartState {
		if _, ok := affect.ParseChannel(name); !ok {
			return fmt.Errorf("start_state: unknown channel %q", name)
		}
	}
	seen := make(map[string]bool, len(f.Steps))
	for i, s := range f.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: missing id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.Appraisal < -1 || s.Appraisal > 1 {
			return fmt.Errorf("step %s: appraisal %.2f outside [-1,1]", s.ID, s.Appraisal)
		}
	}
	for _, e := range f.Expected {
		if !seen[e.StepID] {
			return fmt.Errorf("expected: unknown step %q", e.StepID)
		}
	}
	return nil
}

// StartAffect overlays the fixture's start state on the configured baselines.
func (f *Fixture) StartAffect(cfg affect.Config) affect.State {
	var s affect.State
	for i, cc := range cfg.ByChannel() {
		s[i] = cc.Baseline
	}
	for name, v := range f.StartState {
		if ch, ok := affect.ParseChannel(name); ok {
			s[ch] = v
		}
	}
	return s
}

// #endregion fixture-loader
