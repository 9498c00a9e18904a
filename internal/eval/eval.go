// Package eval checks engine invariants on observed state. It never changes
// what it inspects.
package eval

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
)

// #region observation
// Observation is what the checks look at after one step.
type Observation struct {
	Affect   affect.State
	Turns    []dialogue.InnerTurn // turns produced this step
	Shared   []dialogue.InnerTurn // shared context contents
	Interval time.Duration        // tick interval derived from the affect state
}
// #endregion observation

// #region eval-harness
// EvalHarness runs the invariant checks.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks o. Every check is reported; the result fails if any check fails.
func (h *EvalHarness) Run(o Observation) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	add := func(m EvalMetric, reason string) {
		metrics = append(metrics, m)
		if !m.Pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Channel bounds
	outside := 0
	for _, v := range o.Affect {
		if math.IsNaN(v) || v < 0 || v > 1 {
			outside++
		}
	}
	add(EvalMetric{Name: "channel_bounds", Value: float64(outside), Pass: outside == 0},
		fmt.Sprintf("%d channels outside [0,1]", outside))

	// 2. Revision chain cap
	deepest := 0
	for _, t := range o.Turns {
		if t.ChainLength > deepest {
			deepest = t.ChainLength
		}
	}
	add(EvalMetric{Name: "chain_cap", Value: float64(deepest), Pass: deepest <= h.config.MaxChain},
		fmt.Sprintf("chain length %d exceeds %d", deepest, h.config.MaxChain))

	// 3. Chains end in a terminal decision
	open := 0
	if n := len(o.Turns); n > 0 && o.Turns[n-1].Decision == dialogue.Revise {
		open = 1
	}
	add(EvalMetric{Name: "chain_terminal", Value: float64(open), Pass: open == 0},
		"revision chain ended on a revise decision")

	// 4. Only broadcast turns are shared
	leaked := 0
	for _, t := range o.Shared {
		if t.Decision != dialogue.Broadcast {
			leaked++
		}
	}
	add(EvalMetric{Name: "broadcast_only_shared", Value: float64(leaked), Pass: leaked == 0},
		fmt.Sprintf("%d non-broadcast turns in shared context", leaked))

	// 5. Tick interval within bounds; skipped when unknown
	if o.Interval > 0 {
		ok := o.Interval >= h.config.MinInterval && o.Interval <= h.config.MaxInterval
		add(EvalMetric{Name: "tick_interval_ms", Value: float64(o.Interval.Milliseconds()), Pass: ok},
			fmt.Sprintf("tick interval %s outside [%s,%s]", o.Interval, h.config.MinInterval, h.config.MaxInterval))
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness
