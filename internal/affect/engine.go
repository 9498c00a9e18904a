// Package affect maintains the eight-channel homeostatic affect state.
package affect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
)

// #region engine
// Engine owns one State. It is not safe for concurrent use; the scheduler
// goroutine is its sole owner and hands Snapshots to everyone else.
type Engine struct {
	cfg       Config
	channels  [NumChannels]ChannelConfig
	baselines State
	state     State
	tick      uint64
	log       *zap.Logger
	now       func() time.Time
}

// NewEngine returns an engine resting at the configured baselines.
func NewEngine(cfg Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		channels: cfg.ByChannel(),
		log:      log.Named("affect"),
		now:      time.Now,
	}
	for i, cc := range e.channels {
		e.baselines[i] = cc.Baseline
		e.state[i] = cc.Baseline
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns a copy of the current vector.
func (e *Engine) State() State { return e.state }

// SetState overwrites the vector, clamping each channel. Used by replay fixtures.
func (e *Engine) SetState(s State) {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		e.state[i] = clamp01(v)
	}
}
// #endregion engine

// #region update-channels
// UpdateChannels applies deltas, then pulls every valid channel toward its
// baseline. A nil map is the zero-stimulus relaxation step.
//
// Non-finite deltas are rejected: the channel keeps its last valid value and
// receives no pull this update. The returned error lists the rejected channels
// and is informational; the remaining channels are always updated.
func (e *Engine) UpdateChannels(deltas map[Channel]float64) error {
	var rejected []string
	var skip [NumChannels]bool

	for ch, d := range deltas {
		if !ch.Valid() {
			rejected = append(rejected, ch.String())
			continue
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			skip[ch] = true
			rejected = append(rejected, ch.String())
			e.log.Warn("rejected non-finite delta",
				zap.String("channel", ch.String()),
				zap.Float64("last_valid", e.state[ch]))
			continue
		}
		e.state[ch] = clamp01(e.state[ch] + d)
	}

	for i := range e.state {
		if skip[i] {
			continue
		}
		e.state[i] = pull(e.state[i], e.channels[i])
	}
	e.tick++

	if len(rejected) == 0 {
		return nil
	}
	sort.Strings(rejected)
	return tickerr.Newf(tickerr.CodeValidation, "rejected deltas for %s", strings.Join(rejected, ", ")).
		WithMetadata("channels", strings.Join(rejected, ","))
}

// UpdateNamed is UpdateChannels keyed by channel name. Unknown names are
// reported in the returned error and otherwise ignored.
func (e *Engine) UpdateNamed(deltas map[string]float64) error {
	typed := make(map[Channel]float64, len(deltas))
	var unknown []string
	for name, d := range deltas {
		ch, ok := ParseChannel(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		typed[ch] = d
	}
	err := e.UpdateChannels(typed)
	if len(unknown) == 0 {
		return err
	}
	sort.Strings(unknown)
	e.log.Warn("unknown channels in update", zap.Strings("names", unknown))
	unknownErr := tickerr.Newf(tickerr.CodeValidation, "unknown channels %s", strings.Join(unknown, ", "))
	if err != nil {
		return fmt.Errorf("%w; %v", unknownErr, err)
	}
	return unknownErr
}

// pull moves v toward the baseline by pullRate of the remaining distance.
// With pullRate in (0,1] it never crosses the baseline.
func pull(v float64, cc ChannelConfig) float64 {
	return clamp01(v + (cc.Baseline-v)*cc.PullRate)
}
// #endregion update-channels

// #region snapshot
// Snapshot returns an immutable copy of the current state with its emotion point.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:     e.state,
		Baselines: e.baselines,
		Emotion:   ComputeEmotionPoint(e.state),
		Tick:      e.tick,
		TakenAt:   e.now(),
		epsilon:   e.cfg.DominanceEpsilon,
	}
}

// ComputeEmotionPoint derives the emotion point from the current state.
func (e *Engine) ComputeEmotionPoint() EmotionPoint {
	return ComputeEmotionPoint(e.state)
}

// ComputeEmotionPointWith derives the emotion point with optional seeded jitter.
func (e *Engine) ComputeEmotionPointWith(opts EmotionOptions) EmotionPoint {
	return ComputeEmotionPointWith(e.state, opts)
}

// NewSnapshot builds a snapshot from an arbitrary state, for tests and replay.
func NewSnapshot(s State, cfg Config) Snapshot {
	var base State
	for i, cc := range cfg.ByChannel() {
		base[i] = cc.Baseline
	}
	return Snapshot{
		State:     s,
		Baselines: base,
		Emotion:   ComputeEmotionPoint(s),
		TakenAt:   time.Now(),
		epsilon:   cfg.DominanceEpsilon,
	}
}
// #endregion snapshot

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
// #endregion helpers
