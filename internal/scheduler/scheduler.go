package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/logging"
	"github.com/danielpatrickdp/matchrank/internal/outcome"
	"github.com/danielpatrickdp/matchrank/internal/trainer"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// #region scheduler-struct

// Scheduler is the periodic retrain loop. Each run pulls a recent window
// of outcome records, refits weights per segment, and atomically swaps
// successful fits into the weight store. Scoring never blocks on a run in
// progress, and a run never overlaps itself.
type Scheduler struct {
	store    *weights.Store
	outcomes outcome.Store
	cfg      Config

	mu sync.Mutex // held for the duration of a run
}

// New creates a scheduler. An empty roster is refused at startup rather
// than on the first cycle. The retrain audit table is created here.
func New(store *weights.Store, outcomes outcome.Store, cfg Config) (*Scheduler, error) {
	if len(cfg.Roster) == 0 {
		return nil, fmt.Errorf("scheduler: %w", ensemble.ErrMissingAgentSet)
	}
	if err := logging.EnsureRetrainLog(store.DB()); err != nil {
		return nil, err
	}
	return &Scheduler{store: store, outcomes: outcomes, cfg: cfg}, nil
}

// #endregion

// #region run-loop

// Run executes retrain cycles on the configured interval until ctx is
// cancelled. A cycle that is still executing when the next tick arrives
// causes that tick to be skipped.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			switch {
			case errors.Is(err, ErrRetrainInFlight):
				slog.Warn("retrain tick skipped, previous run still executing")
			case err != nil:
				// Fetch failures leave every segment untouched; the next
				// scheduled run retries.
				slog.Warn("retrain cycle failed", "error", err)
			default:
				slog.Info("retrain cycle finished",
					"records", report.RecordCount,
					"segments", len(report.Segments),
					"duration", report.FinishedAt.Sub(report.StartedAt))
			}
		}
	}
}

// #endregion

// #region run-once

// RunOnce executes a single retrain cycle. When segments are given, only
// those are refit; otherwise every segment present in the fetched window.
// Returns ErrRetrainInFlight if another run holds the loop.
//
// Cancellation mid-fetch or mid-fit discards partial work: the store is
// only touched with complete, validated vectors.
func (s *Scheduler) RunOnce(ctx context.Context, segments ...string) (Report, error) {
	if !s.mu.TryLock() {
		return Report{}, ErrRetrainInFlight
	}
	defer s.mu.Unlock()

	report := Report{StartedAt: time.Now().UTC(), Window: s.cfg.Window}

	records, err := s.outcomes.FetchRecent(ctx, s.cfg.Window)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, fmt.Errorf("fetch outcome window: %w", err)
	}
	report.RecordCount = len(records)

	parts := outcome.Partition(records)
	keys := selectSegments(parts, segments)

	for _, seg := range keys {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, err
		}

		segReport, err := s.retrainSegment(seg, parts[seg])
		if err != nil {
			// Only configuration errors reach here; nothing was modified.
			report.FinishedAt = time.Now().UTC()
			return report, err
		}
		report.Segments = append(report.Segments, segReport)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// selectSegments returns the segment keys to process, sorted for
// deterministic reports.
func selectSegments(parts map[string][]outcome.Record, requested []string) []string {
	var keys []string
	if len(requested) > 0 {
		keys = append(keys, requested...)
	} else {
		for seg := range parts {
			keys = append(keys, seg)
		}
	}
	sort.Strings(keys)
	return keys
}

// #endregion

// #region retrain-segment

// retrainSegment fits one segment, richest label first, and swaps the
// result in when the gate accepts it. Insufficient data and degenerate
// fits leave the segment's current weights untouched.
func (s *Scheduler) retrainSegment(seg string, records []outcome.Record) (SegmentReport, error) {
	current := s.store.Get(seg)
	rep := SegmentReport{
		Segment:        seg,
		OldVersionID:   current.VersionID,
		OldSampleCount: current.SampleCount,
	}

	vec, phase, err := s.fitWithFallback(records)
	rep.Phase = phase
	switch {
	case errors.Is(err, trainer.ErrInsufficientData):
		// Expected during cold start and for low-volume segments.
		rep.Reason = "insufficient data for both labels"
		s.audit(seg, current.VersionID, rep.Phase, "skip", rep.Reason, len(records), nil)
		return rep, nil
	case errors.Is(err, trainer.ErrDegenerateFit):
		slog.Warn("discarding degenerate fit", "segment", seg, "records", len(records))
		rep.Reason = "degenerate fit discarded, prior weights retained"
		s.audit(seg, current.VersionID, rep.Phase, "skip", rep.Reason, len(records), nil)
		return rep, nil
	case err != nil:
		return rep, fmt.Errorf("fit segment %s: %w", seg, err)
	}

	vec.Segment = seg
	// The default vector is never persisted, so it cannot anchor a lineage.
	if current.Origin != weights.OriginDefault {
		vec.ParentID = current.VersionID
	}
	rep.NewSampleCount = vec.SampleCount

	decision := evaluateGate(s.cfg.Gate, current, vec)
	delta := weightDelta(current, vec)
	if decision.Action != "commit" {
		rep.Reason = decision.Reason
		s.audit(seg, current.VersionID, rep.Phase, "reject", decision.Reason, vec.SampleCount, delta)
		return rep, nil
	}

	if err := s.store.Replace(seg, vec); err != nil {
		return rep, fmt.Errorf("replace weights for %s: %w", seg, err)
	}

	rep.Replaced = true
	rep.Reason = decision.Reason
	rep.NewVersionID = vec.VersionID
	rep.WeightDelta = delta
	s.audit(seg, vec.VersionID, rep.Phase, "commit", decision.Reason, vec.SampleCount, delta)

	slog.Info("weights replaced",
		"segment", seg,
		"phase", rep.Phase,
		"samples", vec.SampleCount,
		"version", vec.VersionID)
	return rep, nil
}

// fitWithFallback tries the final outcome label first, then the proxy
// label. Both short on data means the segment stays in cold start.
func (s *Scheduler) fitWithFallback(records []outcome.Record) (weights.Vector, Phase, error) {
	vec, err := trainer.Fit(records, s.cfg.Roster, trainer.FinalLabel, s.cfg.Trainer)
	if err == nil {
		vec.Origin = weights.OriginOutcome
		return vec, PhaseOutcome, nil
	}
	if !errors.Is(err, trainer.ErrInsufficientData) {
		return weights.Vector{}, PhaseOutcome, err
	}

	vec, err = trainer.Fit(records, s.cfg.Roster, trainer.ProxyLabel, s.cfg.Trainer)
	if err == nil {
		vec.Origin = weights.OriginProxy
		return vec, PhaseProxy, nil
	}
	if !errors.Is(err, trainer.ErrInsufficientData) {
		return weights.Vector{}, PhaseProxy, err
	}

	return weights.Vector{}, PhaseColdStart, err
}

// #endregion

// #region audit

// audit writes a retrain log row. Audit failures are logged, never fatal
// to the cycle.
func (s *Scheduler) audit(seg, versionID string, phase Phase, decision, reason string, samples int, delta map[string]float64) {
	var deltaJSON string
	if len(delta) > 0 {
		if b, err := json.Marshal(delta); err == nil {
			deltaJSON = string(b)
		}
	}
	err := logging.LogRetrain(s.store.DB(), logging.RetrainEntry{
		Segment:     seg,
		VersionID:   versionID,
		Phase:       string(phase),
		Decision:    decision,
		Reason:      reason,
		SampleCount: samples,
		DeltaJSON:   deltaJSON,
	})
	if err != nil {
		slog.Warn("retrain audit write failed", "segment", seg, "error", err)
	}
}

// #endregion
