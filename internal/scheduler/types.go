package scheduler

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/matchrank/internal/trainer"
)

// #region phase

// Phase is the learning phase a segment resolved to in one retrain cycle.
// Phases are evaluated per segment per run, richest label first; two
// segments can sit in different phases in the same run.
type Phase string

const (
	// PhaseColdStart: neither label has enough records; defaults or the
	// last successful fit keep serving.
	PhaseColdStart Phase = "cold_start"
	// PhaseProxy: fit against the fast proxy label.
	PhaseProxy Phase = "proxy"
	// PhaseOutcome: fit against the final outcome label.
	PhaseOutcome Phase = "outcome"
)

// #endregion

// #region errors

// ErrRetrainInFlight reports that a retrain run is already executing.
// Retraining is not reentrant: an overlapping request is refused, never
// run concurrently with itself.
var ErrRetrainInFlight = errors.New("retrain already in flight")

// #endregion

// #region config

// Config holds the retrain loop parameters.
type Config struct {
	Interval time.Duration  // time between scheduled runs
	Window   time.Duration  // recency window for outcome records
	Roster   []string       // fixed agent ordering shared with the scorer
	Trainer  trainer.Config // fitting parameters
	Gate     GateConfig     // acceptance thresholds
}

// DefaultConfig returns weekly retrains over a six-month window.
func DefaultConfig(roster []string) Config {
	return Config{
		Interval: 7 * 24 * time.Hour,
		Window:   26 * 7 * 24 * time.Hour,
		Roster:   roster,
		Trainer:  trainer.DefaultConfig(),
		Gate:     DefaultGateConfig(),
	}
}

// #endregion

// #region report

// SegmentReport describes what one retrain cycle did to one segment.
type SegmentReport struct {
	Segment        string             `json:"segment"`
	Phase          Phase              `json:"phase"`
	Replaced       bool               `json:"replaced"`
	Reason         string             `json:"reason"`
	OldVersionID   string             `json:"old_version_id,omitempty"`
	NewVersionID   string             `json:"new_version_id,omitempty"`
	OldSampleCount int                `json:"old_sample_count"`
	NewSampleCount int                `json:"new_sample_count"`
	WeightDelta    map[string]float64 `json:"weight_delta,omitempty"`
}

// Report is the explicit return value of a retrain run, replacing
// incidental logging as the record of what changed.
type Report struct {
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Window      time.Duration   `json:"window"`
	RecordCount int             `json:"record_count"`
	Segments    []SegmentReport `json:"segments"`
}

// #endregion
