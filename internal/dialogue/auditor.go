package dialogue

import (
	"fmt"
	"regexp"
)

// #region auditor
// Auditor decides whether a turn is broadcast, revised or discarded.
type Auditor struct {
	cfg    Config
	unsafe []*regexp.Regexp
}

// NewAuditor compiles the unsafe patterns.
func NewAuditor(cfg Config) (*Auditor, error) {
	a := &Auditor{cfg: cfg}
	for _, p := range cfg.UnsafePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("unsafe pattern %q: %w", p, err)
		}
		a.unsafe = append(a.unsafe, re)
	}
	return a, nil
}

// Threshold is the broadcast bar under the given stress.
func (a *Auditor) Threshold(stress float64) float64 {
	return a.cfg.BroadcastThreshold + a.cfg.StressPenalty*stress
}

// Audit returns the verdict and a reason. Checks run in order: chain cap,
// unsafe content, broadcast bar, revise bar.
func (a *Auditor) Audit(t InnerTurn, stress float64) (Decision, string) {
	if t.ChainLength >= a.cfg.MaxChain {
		return Discard, fmt.Sprintf("revision chain exhausted at %d", t.ChainLength)
	}
	for _, re := range a.unsafe {
		if re.MatchString(t.Proposal) {
			return Discard, "unsafe content: " + re.String()
		}
	}
	bar := a.Threshold(stress)
	if t.Overall >= bar {
		return Broadcast, fmt.Sprintf("overall %.3f >= %.3f", t.Overall, bar)
	}
	if t.Overall >= a.cfg.ReviseThreshold {
		return Revise, fmt.Sprintf("overall %.3f below %.3f, weakest %s", t.Overall, bar, t.Scores.Weakest())
	}
	return Discard, fmt.Sprintf("overall %.3f below revise bar %.3f", t.Overall, a.cfg.ReviseThreshold)
}
// #endregion auditor
