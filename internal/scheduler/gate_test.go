package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/matchrank/internal/weights"
)

func gateVec(origin weights.Origin, samples int, w map[string]float64) weights.Vector {
	return weights.Vector{Origin: origin, SampleCount: samples, Weights: w}
}

func TestGateRoutineReplacements(t *testing.T) {
	cfg := DefaultGateConfig()
	big := map[string]float64{"a": 1}
	flipped := map[string]float64{"b": 1}

	// Any transition other than proxy->outcome commits regardless of delta.
	cases := []struct {
		from, to weights.Origin
	}{
		{weights.OriginDefault, weights.OriginProxy},
		{weights.OriginDefault, weights.OriginOutcome},
		{weights.OriginProxy, weights.OriginProxy},
		{weights.OriginOutcome, weights.OriginOutcome},
		{weights.OriginOutcome, weights.OriginProxy},
	}
	for _, tc := range cases {
		d := evaluateGate(cfg, gateVec(tc.from, 100, big), gateVec(tc.to, 100, flipped))
		require.Equal(t, "commit", d.Action, "%s -> %s", tc.from, tc.to)
	}
}

func TestGateProxyToOutcomeSmallDeltaCommits(t *testing.T) {
	cfg := DefaultGateConfig()
	current := gateVec(weights.OriginProxy, 200, map[string]float64{"a": 0.6, "b": 0.4})
	proposed := gateVec(weights.OriginOutcome, 100, map[string]float64{"a": 0.5, "b": 0.5})

	d := evaluateGate(cfg, current, proposed)
	require.Equal(t, "commit", d.Action)
	require.InDelta(t, 0.1, d.MaxDelta, 1e-9)
}

func TestGateProxyToOutcomeLargeDeltaRejects(t *testing.T) {
	cfg := DefaultGateConfig()
	current := gateVec(weights.OriginProxy, 200, map[string]float64{"a": 0.9, "b": 0.1})
	proposed := gateVec(weights.OriginOutcome, 200, map[string]float64{"a": 0.1, "b": 0.9})

	d := evaluateGate(cfg, current, proposed)
	require.Equal(t, "reject", d.Action)
	require.InDelta(t, 0.8, d.MaxDelta, 1e-9)
}

func TestGateSampleRatioOverridesDeltaCap(t *testing.T) {
	cfg := DefaultGateConfig()
	current := gateVec(weights.OriginProxy, 100, map[string]float64{"a": 0.9, "b": 0.1})
	proposed := gateVec(weights.OriginOutcome, 250, map[string]float64{"a": 0.1, "b": 0.9})

	d := evaluateGate(cfg, current, proposed)
	require.Equal(t, "commit", d.Action)
}

func TestMaxWeightDeltaCoversVanishedAgents(t *testing.T) {
	current := weights.Vector{Weights: map[string]float64{"a": 0.5, "gone": 0.5}}
	proposed := weights.Vector{Weights: map[string]float64{"a": 0.6}}

	// The vanished agent's full weight counts as its delta.
	require.InDelta(t, 0.5, maxWeightDelta(current, proposed), 1e-9)
}

func TestWeightDeltaSigned(t *testing.T) {
	current := weights.Vector{Weights: map[string]float64{"a": 0.7, "b": 0.3}}
	proposed := weights.Vector{Weights: map[string]float64{"a": 0.4, "b": 0.6}}

	delta := weightDelta(current, proposed)
	require.InDelta(t, -0.3, delta["a"], 1e-9)
	require.InDelta(t, 0.3, delta["b"], 1e-9)
}
