package ensemble

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// fixedSource serves one vector for every segment.
type fixedSource struct {
	vec weights.Vector
}

func (f fixedSource) Get(string) weights.Vector { return f.vec }

func vecFor(t *testing.T, w map[string]float64) weights.Vector {
	t.Helper()
	vec := weights.Vector{VersionID: "test-version", Weights: w}
	require.NoError(t, vec.Validate())
	return vec
}

func TestBuildFeatures(t *testing.T) {
	roster := []string{"historical", "capacity", "geo"}
	outputs := map[string]AgentOutput{
		"historical": {AgentID: "historical", Score: 80, Confidence: 0.9},
		"geo":        {AgentID: "geo", Score: 40, Confidence: 0.5},
	}

	features, err := BuildFeatures(outputs, roster)
	require.NoError(t, err)
	require.Equal(t, []float64{80 * 0.9, 0, 40 * 0.5}, features)
}

func TestBuildFeaturesEmptyRoster(t *testing.T) {
	_, err := BuildFeatures(nil, nil)
	require.ErrorIs(t, err, ErrMissingAgentSet)
}

func TestBuildFeaturesIgnoresOffRosterAgents(t *testing.T) {
	outputs := map[string]AgentOutput{
		"historical": {AgentID: "historical", Score: 70, Confidence: 1},
		"rogue":      {AgentID: "rogue", Score: 99, Confidence: 1},
	}

	features, err := BuildFeatures(outputs, []string{"historical"})
	require.NoError(t, err)
	require.Equal(t, []float64{70}, features)
}

func TestScoreWeightedBlend(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 0.75, "b": 0.25})
	scorer := NewScorer(fixedSource{vec})

	outputs := map[string]AgentOutput{
		"a": {AgentID: "a", Score: 80, Confidence: 1},
		"b": {AgentID: "b", Score: 40, Confidence: 1},
	}
	score, used := scorer.Score(outputs, "family")

	// 0.75*80 + 0.25*40 = 70 with full confidence everywhere.
	require.InDelta(t, 70.0, score, 1e-9)
	require.Equal(t, "test-version", used.VersionID)
}

func TestScoreConfidenceReweights(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 0.5, "b": 0.5})
	scorer := NewScorer(fixedSource{vec})

	// Equal weights, but agent b is far less sure of itself.
	outputs := map[string]AgentOutput{
		"a": {AgentID: "a", Score: 90, Confidence: 1.0},
		"b": {AgentID: "b", Score: 10, Confidence: 0.1},
	}
	score, _ := scorer.Score(outputs, "family")

	require.Greater(t, score, 80.0)
	require.LessOrEqual(t, score, ScoreMax)
}

func TestScoreMissingAgentContributesNothing(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 0.5, "b": 0.5})
	scorer := NewScorer(fixedSource{vec})

	// Only agent a reported; its weight should fully determine the score
	// rather than being dragged toward zero by the absent agent.
	outputs := map[string]AgentOutput{
		"a": {AgentID: "a", Score: 65, Confidence: 0.8},
	}
	score, _ := scorer.Score(outputs, "family")
	require.InDelta(t, 65.0, score, 1e-9)
}

func TestScoreZeroConfidenceFallsBackToNeutral(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 1.0})
	scorer := NewScorer(fixedSource{vec})

	outputs := map[string]AgentOutput{
		"a": {AgentID: "a", Score: 95, Confidence: 0},
	}
	score, _ := scorer.Score(outputs, "family")
	require.Equal(t, NeutralScore, score)
}

func TestScoreNoOutputsFallsBackToNeutral(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 1.0})
	scorer := NewScorer(fixedSource{vec})

	score, _ := scorer.Score(nil, "family")
	require.Equal(t, NeutralScore, score)
}

func TestScoreStaysInBounds(t *testing.T) {
	vec := vecFor(t, map[string]float64{"a": 0.5, "b": 0.5})
	scorer := NewScorer(fixedSource{vec})

	cases := []map[string]AgentOutput{
		{"a": {AgentID: "a", Score: 100, Confidence: 1}, "b": {AgentID: "b", Score: 100, Confidence: 1}},
		{"a": {AgentID: "a", Score: 0, Confidence: 1}, "b": {AgentID: "b", Score: 0, Confidence: 0.3}},
		{"a": {AgentID: "a", Score: 55, Confidence: 0.01}},
	}
	for _, outputs := range cases {
		score, _ := scorer.Score(outputs, "family")
		require.GreaterOrEqual(t, score, ScoreMin)
		require.LessOrEqual(t, score, ScoreMax)
	}
}
