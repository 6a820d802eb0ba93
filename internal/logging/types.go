package logging

import "time"

// #region retrain-entry
// RetrainEntry is a single row in the retrain_log table: one segment's
// outcome in one retrain cycle, kept for operator inspection alongside the
// weight versions themselves.
type RetrainEntry struct {
	Segment     string
	VersionID   string // new version on commit, current version otherwise
	Phase       string // "cold_start" | "proxy" | "outcome"
	Decision    string // "commit" | "reject" | "skip"
	Reason      string
	SampleCount int
	DeltaJSON   string // per-agent weight delta, JSON
	CreatedAt   time.Time
}

// #endregion retrain-entry
