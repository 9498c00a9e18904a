package affect

import (
	"fmt"
	"time"
)

// #region channel

// Channel names one scalar of the affect state.
type Channel int

const (
	Arousal Channel = iota
	Valence
	Drive
	Stability
	Inhibition
	Affiliation
	Focus
	Stress

	NumChannels = 8
)

var channelNames = [NumChannels]string{
	"arousal", "valence", "drive", "stability",
	"inhibition", "affiliation", "focus", "stress",
}

// Channels returns every channel in fixed order.
func Channels() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Valid reports whether c is one of the eight channels.
func (c Channel) Valid() bool {
	return c >= 0 && int(c) < NumChannels
}

// ParseChannel resolves a channel by name.
func ParseChannel(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// MarshalText lets channels key yaml/json maps by name.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid channel %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a channel name.
func (c *Channel) UnmarshalText(b []byte) error {
	ch, ok := ParseChannel(string(b))
	if !ok {
		return fmt.Errorf("unknown channel %q", string(b))
	}
	*c = ch
	return nil
}

// #endregion channel

// #region config

// ChannelConfig is the homeostatic setpoint of one channel.
type ChannelConfig struct {
	Baseline float64 `yaml:"baseline"`
	PullRate float64 `yaml:"pull_rate"` // fraction of the distance to baseline recovered per update
}

// Config holds per-channel homeostasis parameters.
type Config struct {
	Arousal     ChannelConfig `yaml:"arousal"`
	Valence     ChannelConfig `yaml:"valence"`
	Drive       ChannelConfig `yaml:"drive"`
	Stability   ChannelConfig `yaml:"stability"`
	Inhibition  ChannelConfig `yaml:"inhibition"`
	Affiliation ChannelConfig `yaml:"affiliation"`
	Focus       ChannelConfig `yaml:"focus"`
	Stress      ChannelConfig `yaml:"stress"`

	// DominanceEpsilon is the minimum rise above baseline for a channel to count as dominant.
	DominanceEpsilon float64 `yaml:"dominance_epsilon"`
}

// DefaultConfig returns the resting profile.
func DefaultConfig() Config {
	return Config{
		Arousal:          ChannelConfig{Baseline: 0.25, PullRate: 0.15},
		Valence:          ChannelConfig{Baseline: 0.50, PullRate: 0.10},
		Drive:            ChannelConfig{Baseline: 0.40, PullRate: 0.10},
		Stability:        ChannelConfig{Baseline: 0.50, PullRate: 0.05},
		Inhibition:       ChannelConfig{Baseline: 0.30, PullRate: 0.10},
		Affiliation:      ChannelConfig{Baseline: 0.50, PullRate: 0.05},
		Focus:            ChannelConfig{Baseline: 0.50, PullRate: 0.10},
		Stress:           ChannelConfig{Baseline: 0.20, PullRate: 0.10},
		DominanceEpsilon: 0.05,
	}
}

// ByChannel returns the channel configs in channel order.
func (c Config) ByChannel() [NumChannels]ChannelConfig {
	return [NumChannels]ChannelConfig{
		c.Arousal, c.Valence, c.Drive, c.Stability,
		c.Inhibition, c.Affiliation, c.Focus, c.Stress,
	}
}

// Validate checks baselines are in [0,1] and pull rates in (0,1].
func (c Config) Validate() error {
	for i, cc := range c.ByChannel() {
		ch := Channel(i)
		if cc.Baseline < 0 || cc.Baseline > 1 {
			return fmt.Errorf("affect: %s baseline %.3f outside [0,1]", ch, cc.Baseline)
		}
		if cc.PullRate <= 0 || cc.PullRate > 1 {
			return fmt.Errorf("affect: %s pull_rate %.3f outside (0,1]", ch, cc.PullRate)
		}
	}
	if c.DominanceEpsilon < 0 || c.DominanceEpsilon >= 1 {
		return fmt.Errorf("affect: dominance_epsilon %.3f outside [0,1)", c.DominanceEpsilon)
	}
	return nil
}

// #endregion config

// #region state

// State is the eight-channel affect vector. It is a value type; copies never alias.
type State [NumChannels]float64

// Get returns the value of ch.
func (s State) Get(ch Channel) float64 {
	return s[ch]
}

// Snapshot is an immutable view of the affect state handed to other components.
type Snapshot struct {
	State     State
	Baselines State
	Emotion   EmotionPoint
	Tick      uint64
	TakenAt   time.Time
	epsilon   float64
}

// Get returns the value of ch.
func (s Snapshot) Get(ch Channel) float64 {
	return s.State[ch]
}

// SignedValence maps the valence channel onto [-1,1]; negative means unpleasant.
func (s Snapshot) SignedValence() float64 {
	return 2*s.State[Valence] - 1
}

// Dominant returns the channel with the largest rise above its baseline.
// ok is false when nothing rises above baseline by more than the dominance epsilon.
func (s Snapshot) Dominant() (Channel, bool) {
	best := Channel(0)
	bestRise := s.epsilon
	found := false
	for i := 0; i < NumChannels; i++ {
		rise := s.State[i] - s.Baselines[i]
		if rise > bestRise {
			best = Channel(i)
			bestRise = rise
			found = true
		}
	}
	return best, found
}

// Map returns the state keyed by channel name, for logging and wire payloads.
func (s Snapshot) Map() map[string]float64 {
	out := make(map[string]float64, NumChannels)
	for i, v := range s.State {
		out[channelNames[i]] = v
	}
	return out
}

// #endregion state
