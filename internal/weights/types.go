package weights

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// #region origin

// Origin records which learning phase produced a vector.
type Origin string

const (
	// OriginDefault marks the hand-authored fallback vector.
	OriginDefault Origin = "default"
	// OriginProxy marks a fit against the fast proxy label.
	OriginProxy Origin = "proxy"
	// OriginOutcome marks a fit against the final outcome label.
	OriginOutcome Origin = "outcome"
)

// #endregion

// #region vector

// SumTolerance is the allowed deviation of a weight sum from 1.0.
const SumTolerance = 1e-6

// Vector is one versioned set of per-agent blending weights for a segment.
// Vectors are never mutated in place: each retrain produces a new version
// whose ParentID links to the one it superseded.
type Vector struct {
	VersionID   string             `json:"version_id"`
	ParentID    string             `json:"parent_id,omitempty"`
	Segment     string             `json:"segment"`
	Weights     map[string]float64 `json:"weights"`
	SampleCount int                `json:"sample_count"`
	Origin      Origin             `json:"origin"`
	FittedAt    time.Time          `json:"fitted_at"`
}

// Sum returns the total of all weights.
func (v Vector) Sum() float64 {
	var sum float64
	for _, w := range v.Weights {
		sum += w
	}
	return sum
}

// Validate checks that every weight is nonnegative and finite and that the
// weights sum to 1.0 within SumTolerance.
func (v Vector) Validate() error {
	for agentID, w := range v.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %s is %f, must be finite and >= 0", agentID, w)
		}
	}
	if sum := v.Sum(); math.Abs(sum-1.0) > SumTolerance {
		return fmt.Errorf("weights sum to %.8f, must sum to 1.0", sum)
	}
	return nil
}

// Clone returns a deep copy. Stored vectors are shared read-only between
// concurrent scorers; callers that need to mutate must clone first.
func (v Vector) Clone() Vector {
	cp := v
	cp.Weights = make(map[string]float64, len(v.Weights))
	for k, w := range v.Weights {
		cp.Weights[k] = w
	}
	return cp
}

// #endregion

// #region default-vector

// NewDefault builds the process-wide fallback vector. When explicit weights
// are nil every roster agent gets an equal share; otherwise the supplied
// weights are normalized over the roster. Agents absent from the supplied
// map get weight zero.
func NewDefault(roster []string, explicit map[string]float64) (Vector, error) {
	if len(roster) == 0 {
		return Vector{}, fmt.Errorf("default vector: empty agent roster")
	}

	w := make(map[string]float64, len(roster))
	if explicit == nil {
		share := 1.0 / float64(len(roster))
		for _, agentID := range roster {
			w[agentID] = share
		}
	} else {
		var sum float64
		for _, agentID := range roster {
			if explicit[agentID] < 0 {
				return Vector{}, fmt.Errorf("default vector: negative weight for %s", agentID)
			}
			sum += explicit[agentID]
		}
		if sum <= 0 {
			return Vector{}, fmt.Errorf("default vector: weights sum to zero")
		}
		for _, agentID := range roster {
			w[agentID] = explicit[agentID] / sum
		}
	}

	vec := Vector{
		VersionID: uuid.New().String(),
		Weights:   w,
		Origin:    OriginDefault,
		FittedAt:  time.Now().UTC(),
	}
	if err := vec.Validate(); err != nil {
		return Vector{}, err
	}
	return vec, nil
}

// #endregion
