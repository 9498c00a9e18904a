package eval

import "time"

// #region eval-config
// EvalConfig holds the limits the invariant checks use.
type EvalConfig struct {
	MaxChain    int           // deepest allowed revision chain
	MinInterval time.Duration // tick interval lower bound
	MaxInterval time.Duration // tick interval upper bound
}

// DefaultEvalConfig matches the default dialogue and scheduler settings.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxChain:    3,
		MinInterval: 500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the outcome of one round of checks.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
