package ensemble

import (
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// #region scorer

// WeightSource provides the currently active weight vector for a segment.
// Satisfied by *weights.Store.
type WeightSource interface {
	Get(segment string) weights.Vector
}

// Scorer blends live agent outputs into one final score using the active
// per-segment weights. Pure given the weight source's current state; safe
// for concurrent use.
type Scorer struct {
	source WeightSource
}

// NewScorer creates a scorer reading weights from source.
func NewScorer(source WeightSource) *Scorer {
	return &Scorer{source: source}
}

// #endregion

// #region score

// Score computes the confidence-weighted blend of the supplied agent
// outputs for a segment, and returns the weight vector actually used so
// callers can log which model version produced the decision.
//
// Only agents present in outputs contribute: an agent with no opinion for
// this case adds nothing to either sum. When every supplied agent carries
// zero confidence the blend is undefined and the neutral midpoint 50 is
// returned instead.
func (s *Scorer) Score(outputs map[string]AgentOutput, segment string) (float64, weights.Vector) {
	vec := s.source.Get(segment)

	var weightedSum, weightSum float64
	for agentID, out := range outputs {
		w := vec.Weights[agentID]
		weightedSum += w * out.Score * out.Confidence
		weightSum += w * out.Confidence
	}

	if weightSum <= 0 {
		return NeutralScore, vec
	}

	final := weightedSum / weightSum
	if final < ScoreMin {
		final = ScoreMin
	} else if final > ScoreMax {
		final = ScoreMax
	}
	return final, vec
}

// #endregion
