// Package strategy maps a smoothed sentiment reading to a target position
// side. Decide is a pure function: identical inputs always yield identical
// output, which is what keeps backtest and live decisions in lockstep.
package strategy

import (
	"fmt"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/types"
)

// Decision is the outcome of evaluating one sample.
type Decision struct {
	Target types.Side
	// Trade is false when the signal sits between the thresholds and the
	// current exposure should simply be held.
	Trade  bool
	Reason string
}

// Decide evaluates the smoothed signal against the configured thresholds.
//
// Momentum: signal at or below the low threshold means fear, go short;
// at or above the high threshold means greed, go long. Contrarian inverts
// the mapping. Anything between the thresholds is a hold.
func Decide(smoothed float64, cfg config.StrategyConfig) Decision {
	var target types.Side
	switch {
	case smoothed <= cfg.LowThreshold:
		target = types.Short
	case smoothed >= cfg.HighThreshold:
		target = types.Long
	default:
		return Decision{
			Target: types.None,
			Trade:  false,
			Reason: fmt.Sprintf("signal %.2f inside (%.2f, %.2f), hold",
				smoothed, cfg.LowThreshold, cfg.HighThreshold),
		}
	}
	if cfg.Mode == config.Contrarian {
		target = target.Opposite()
	}
	return Decision{
		Target: target,
		Trade:  true,
		Reason: fmt.Sprintf("signal %.2f vs thresholds (%.2f, %.2f), %s mode -> %s",
			smoothed, cfg.LowThreshold, cfg.HighThreshold, cfg.Mode, target),
	}
}
