package dialogue

import (
	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region lane-selection
// SelectLane applies the ordered rule table to the dominant channel. The
// first rule for that channel whose minimum is met wins.
func SelectLane(snap affect.Snapshot, rules []LaneRule, fallback personality.Lane) personality.Lane {
	if fallback == "" {
		fallback = personality.Reactive
	}
	dom, ok := snap.Dominant()
	if !ok {
		return fallback
	}
	for _, r := range rules {
		if r.Channel == dom && snap.Get(dom) >= r.Min {
			return r.Lane
		}
	}
	return fallback
}

// Distressed reports whether affect meets the safety trip condition.
func Distressed(snap affect.Snapshot, cfg Config) bool {
	return snap.Get(affect.Arousal) > cfg.TripArousal && snap.SignedValence() < cfg.TripValence
}
// #endregion lane-selection
