package trainer

import "math"

// #region logistic

// fitLogistic runs batch gradient descent for a logistic model with no
// intercept term. The missing intercept is deliberate: each coefficient
// then maps onto exactly one agent's contribution, so the blend stays a
// convex combination of agent signals rather than picking up an arbitrary
// bias.
func fitLogistic(features [][]float64, labels []float64, cfg Config) []float64 {
	dim := len(features[0])
	n := float64(len(features))
	coefs := make([]float64, dim)
	grad := make([]float64, dim)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		for i, x := range features {
			p := sigmoid(dot(coefs, x))
			residual := p - labels[i]
			for j := range x {
				grad[j] += residual * x[j]
			}
		}
		for j := range coefs {
			coefs[j] -= cfg.LearningRate * (grad[j]/n + cfg.L2*coefs[j])
		}
	}
	return coefs
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// #endregion
