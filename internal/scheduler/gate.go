package scheduler

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// #region gate-config

// GateConfig holds thresholds for accepting a fitted vector.
type GateConfig struct {
	// MaxWeightDelta caps the largest per-agent weight change allowed when
	// an outcome-label fit replaces a proxy-label fit. A sharp disagreement
	// between the two label kinds is held back until the outcome fit rests
	// on enough samples.
	MaxWeightDelta float64
	// OverrideSampleRatio lifts the delta cap once the new fit has this
	// many times the samples of the fit it replaces.
	OverrideSampleRatio float64
}

// DefaultGateConfig returns the acceptance defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxWeightDelta:      0.35,
		OverrideSampleRatio: 2.0,
	}
}

// #endregion

// #region gate-decision

// GateDecision is the output of evaluating a proposed replacement.
type GateDecision struct {
	Action   string // "commit" | "reject"
	Reason   string
	MaxDelta float64
}

// #endregion

// #region evaluate

// evaluateGate decides whether a fitted vector may replace the current
// one. Only the proxy-to-outcome transition is gated: default weights are
// always worth replacing, and a refit within the same phase is routine.
func evaluateGate(cfg GateConfig, current, proposed weights.Vector) GateDecision {
	maxDelta := maxWeightDelta(current, proposed)

	if current.Origin != weights.OriginProxy || proposed.Origin != weights.OriginOutcome {
		return GateDecision{Action: "commit", Reason: "routine replacement", MaxDelta: maxDelta}
	}

	if maxDelta <= cfg.MaxWeightDelta {
		return GateDecision{
			Action:   "commit",
			Reason:   fmt.Sprintf("outcome fit agrees with proxy fit: max delta %.4f", maxDelta),
			MaxDelta: maxDelta,
		}
	}

	if current.SampleCount > 0 &&
		float64(proposed.SampleCount) >= cfg.OverrideSampleRatio*float64(current.SampleCount) {
		return GateDecision{
			Action: "commit",
			Reason: fmt.Sprintf("delta %.4f exceeds cap %.4f but outcome fit has %dx samples",
				maxDelta, cfg.MaxWeightDelta, proposed.SampleCount/current.SampleCount),
			MaxDelta: maxDelta,
		}
	}

	return GateDecision{
		Action: "reject",
		Reason: fmt.Sprintf("outcome fit disagrees with proxy fit: max delta %.4f exceeds cap %.4f",
			maxDelta, cfg.MaxWeightDelta),
		MaxDelta: maxDelta,
	}
}

// #endregion

// #region helpers

// maxWeightDelta returns the largest per-agent absolute weight change.
func maxWeightDelta(current, proposed weights.Vector) float64 {
	var max float64
	for agentID, w := range proposed.Weights {
		if d := math.Abs(w - current.Weights[agentID]); d > max {
			max = d
		}
	}
	for agentID, w := range current.Weights {
		if _, ok := proposed.Weights[agentID]; !ok && w > max {
			max = w
		}
	}
	return max
}

// weightDelta returns the signed per-agent weight change, for reports.
func weightDelta(current, proposed weights.Vector) map[string]float64 {
	delta := make(map[string]float64, len(proposed.Weights))
	for agentID, w := range proposed.Weights {
		delta[agentID] = w - current.Weights[agentID]
	}
	return delta
}

// #endregion
