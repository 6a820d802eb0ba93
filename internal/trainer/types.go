package trainer

import (
	"errors"

	"github.com/danielpatrickdp/matchrank/internal/outcome"
)

// #region errors

// ErrInsufficientData reports that a segment has too few labeled records
// to fit. This is an expected condition during cold start and for
// low-volume segments, not a fault: callers keep their existing weights
// and check for it with errors.Is.
var ErrInsufficientData = errors.New("insufficient outcome data")

// ErrDegenerateFit reports that every fitted coefficient collapsed to
// zero, meaning no agent correlates with the outcome. Callers discard the
// fit and retain prior weights rather than serve all-zero weights.
var ErrDegenerateFit = errors.New("degenerate fit: all coefficients zero")

// #endregion

// #region config

// Config holds fitting parameters.
type Config struct {
	MinSamples   int     // records required before a fit is attempted
	LearningRate float64 // gradient descent step size
	Epochs       int     // full passes over the training set
	L2           float64 // ridge penalty keeping coefficients bounded
}

// DefaultConfig returns the fitting defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:   50,
		LearningRate: 0.5,
		Epochs:       300,
		L2:           1e-4,
	}
}

// #endregion

// #region label-selector

// LabelSelector extracts the training label from a record, reporting
// whether that label kind is resolved for it.
type LabelSelector func(outcome.Record) (label, ok bool)

// FinalLabel selects the ultimate outcome label.
func FinalLabel(rec outcome.Record) (bool, bool) {
	if rec.FinalLabel == nil {
		return false, false
	}
	return *rec.FinalLabel, true
}

// ProxyLabel selects the fast early-signal label.
func ProxyLabel(rec outcome.Record) (bool, bool) {
	if rec.ProxyLabel == nil {
		return false, false
	}
	return *rec.ProxyLabel, true
}

// #endregion
