package trainer

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/outcome"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// #region fit

// featureScale conditions the gradient descent: raw features are
// score*confidence in [0,100], scaled down to [0,1]. The scale cancels in
// the final normalization, so learned weights are unaffected.
const featureScale = 1.0 / ensemble.ScoreMax

// Fit learns one segment's blending weights from its outcome records.
// The returned vector carries the sample count and fit timestamp; segment,
// origin and parent linkage are filled in by the caller that knows them.
//
// Returns ErrInsufficientData when fewer than cfg.MinSamples records carry
// the selected label, ErrDegenerateFit when no agent correlates with the
// outcome, and ensemble.ErrMissingAgentSet for an empty roster.
func Fit(records []outcome.Record, roster []string, sel LabelSelector, cfg Config) (weights.Vector, error) {
	if len(roster) == 0 {
		return weights.Vector{}, ensemble.ErrMissingAgentSet
	}

	features := make([][]float64, 0, len(records))
	labels := make([]float64, 0, len(records))
	for _, rec := range records {
		label, ok := sel(rec)
		if !ok {
			continue
		}
		x, err := ensemble.BuildFeatures(rec.Outputs, roster)
		if err != nil {
			return weights.Vector{}, err
		}
		for j := range x {
			x[j] *= featureScale
		}
		features = append(features, x)
		if label {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	if len(features) < cfg.MinSamples {
		return weights.Vector{}, fmt.Errorf("%w: %d labeled records, need %d",
			ErrInsufficientData, len(features), cfg.MinSamples)
	}

	coefs := fitLogistic(features, labels, cfg)

	// The coefficient sign is an artifact of the label encoding, not a
	// meaningful direction for a blending weight.
	var sum float64
	for j := range coefs {
		coefs[j] = math.Abs(coefs[j])
		sum += coefs[j]
	}
	if sum < 1e-12 {
		return weights.Vector{}, ErrDegenerateFit
	}

	w := make(map[string]float64, len(roster))
	for j, agentID := range roster {
		w[agentID] = coefs[j] / sum
	}

	vec := weights.Vector{
		VersionID:   uuid.New().String(),
		Weights:     w,
		SampleCount: len(features),
		FittedAt:    time.Now().UTC(),
	}
	if err := vec.Validate(); err != nil {
		return weights.Vector{}, fmt.Errorf("fitted vector: %w", err)
	}
	return vec, nil
}

// #endregion
