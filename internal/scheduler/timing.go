package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
)

// #region config
// Config controls tick cadence and per-event tick budgets.
type Config struct {
	BaseInterval   time.Duration `yaml:"base_interval"`
	MinInterval    time.Duration `yaml:"min_interval"`
	MaxInterval    time.Duration `yaml:"max_interval"`
	DriveGain      float64       `yaml:"drive_gain"`      // shortens the interval, must be < 1
	InhibitionGain float64       `yaml:"inhibition_gain"` // lengthens the interval

	BaseTicks       int     `yaml:"base_ticks"`
	MaxTicks        int     `yaml:"max_ticks"`
	PerceptionShare float64 `yaml:"perception_share"`

	QueueSize      int `yaml:"queue_size"`
	StimulusBuffer int `yaml:"stimulus_buffer"`
}

// DefaultConfig returns the default cadence.
func DefaultConfig() Config {
	return Config{
		BaseInterval:    2 * time.Second,
		MinInterval:     500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		DriveGain:       0.75,
		InhibitionGain:  1.0,
		BaseTicks:       16,
		MaxTicks:        40,
		PerceptionShare: 0.4,
		QueueSize:       32,
		StimulusBuffer:  64,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.MinInterval <= 0 || c.MaxInterval < c.MinInterval {
		return fmt.Errorf("scheduler: interval bounds [%s,%s] invalid", c.MinInterval, c.MaxInterval)
	}
	if c.BaseInterval < c.MinInterval || c.BaseInterval > c.MaxInterval {
		return fmt.Errorf("scheduler: base interval %s outside bounds", c.BaseInterval)
	}
	if c.DriveGain < 0 || c.DriveGain >= 1 {
		return fmt.Errorf("scheduler: drive_gain %.3f outside [0,1)", c.DriveGain)
	}
	if c.InhibitionGain < 0 {
		return fmt.Errorf("scheduler: inhibition_gain %.3f negative", c.InhibitionGain)
	}
	if c.BaseTicks < MinTicks || c.MaxTicks < c.BaseTicks {
		return fmt.Errorf("scheduler: ticks base=%d max=%d invalid (min %d)", c.BaseTicks, c.MaxTicks, MinTicks)
	}
	if c.PerceptionShare <= 0 || c.PerceptionShare >= 1 {
		return fmt.Errorf("scheduler: perception_share %.3f outside (0,1)", c.PerceptionShare)
	}
	if c.QueueSize < 1 || c.StimulusBuffer < 1 {
		return fmt.Errorf("scheduler: queue sizes must be positive")
	}
	return nil
}
// #endregion config

// #region interval
// ComputeTickInterval derives the next tick interval from affect: drive
// speeds ticking up, inhibition slows it down.
func ComputeTickInterval(snap affect.Snapshot, cfg Config) time.Duration {
	drive := snap.Get(affect.Drive)
	inhibition := snap.Get(affect.Inhibition)
	scale := (1 - cfg.DriveGain*drive) * (1 + cfg.InhibitionGain*inhibition)
	d := time.Duration(float64(cfg.BaseInterval) * scale)
	if d < cfg.MinInterval {
		return cfg.MinInterval
	}
	if d > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return d
}
// #endregion interval

// #region budget
// MinTicks is the smallest event budget: one tick per sub-step.
const MinTicks = pipeline.NumSubSteps

// RequiredTicks is the number of ticks an event gets, fixed at event start.
// Inhibition stretches processing, drive compresses it.
func RequiredTicks(snap affect.Snapshot, cfg Config) int {
	drive := snap.Get(affect.Drive)
	inhibition := snap.Get(affect.Inhibition)
	n := int(math.Round(float64(cfg.BaseTicks) * (1 + cfg.InhibitionGain*inhibition - cfg.DriveGain*drive*0.5)))
	if n < MinTicks {
		return MinTicks
	}
	if n > cfg.MaxTicks {
		return cfg.MaxTicks
	}
	return n
}

// Budget is the tick allocation per sub-step.
type Budget [pipeline.NumSubSteps]int

// Total sums the allocation.
func (b Budget) Total() int {
	n := 0
	for _, v := range b {
		n += v
	}
	return n
}

// Phase sums the allocation of one phase.
func (b Budget) Phase(p pipeline.Phase) int {
	n := 0
	for i, v := range b {
		if pipeline.SubStep(i).Phase() == p {
			n += v
		}
	}
	return n
}

// Allocate splits required ticks between perception (share) and judgment,
// then evenly across each phase's four sub-steps. Rounding uses largest
// remainder so the total is exact; every sub-step gets at least one tick.
func Allocate(required int, share float64) Budget {
	if required < MinTicks {
		required = MinTicks
	}
	exact := float64(required) * share
	perception := int(math.Floor(exact))
	judgment := int(math.Floor(float64(required) - exact))
	if left := required - perception - judgment; left > 0 {
		if exact-math.Floor(exact) >= (float64(required)-exact)-math.Floor(float64(required)-exact) {
			perception += left
		} else {
			judgment += left
		}
	}

	per := pipeline.PerSubPhase
	if perception < per {
		judgment -= per - perception
		perception = per
	}
	if judgment < per {
		perception -= per - judgment
		judgment = per
	}

	var b Budget
	split := func(total, offset int) {
		base, rem := total/per, total%per
		for i := 0; i < per; i++ {
			b[offset+i] = base
			if i < rem {
				b[offset+i]++
			}
		}
	}
	split(perception, int(pipeline.Extroversion))
	split(judgment, int(pipeline.Feeling))
	return b
}
// #endregion budget
