package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/scheduler"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// ApiV1Router manages routes for API version 1: request-time scoring and
// the administrative weight surface.
type ApiV1Router struct {
	scorer *ensemble.Scorer
	store  *weights.Store
	sched  *scheduler.Scheduler
}

// NewApiV1Router creates a new API v1 router.
func NewApiV1Router(scorer *ensemble.Scorer, store *weights.Store, sched *scheduler.Scheduler) *ApiV1Router {
	return &ApiV1Router{scorer: scorer, store: store, sched: sched}
}

// Mux returns a configured *http.ServeMux with registered handlers:
// - POST /api/v1/score — blend agent outputs into a final score
// - GET  /api/v1/weights/{segment} — active weight vector
// - GET  /api/v1/weights/{segment}/history — retained versions
// - POST /api/v1/retrain — out-of-cycle retrain run
func (ar *ApiV1Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/score", ar.scoreHandler)
	mux.HandleFunc("GET /api/v1/weights/{segment}", ar.weightsHandler)
	mux.HandleFunc("GET /api/v1/weights/{segment}/history", ar.historyHandler)
	mux.HandleFunc("POST /api/v1/retrain", ar.retrainHandler)
	return mux
}

// ScoreRequest is the body of a scoring call: the live agent outputs for
// one case plus the case's segment.
type ScoreRequest struct {
	Segment string                 `json:"segment"`
	Outputs []ensemble.AgentOutput `json:"outputs"`
}

// ScoreResponse carries the blended score and the weight vector that
// produced it, for audit logging on the caller's side.
type ScoreResponse struct {
	Score       float64        `json:"score"`
	WeightsUsed weights.Vector `json:"weights_used"`
}

// scoreHandler blends the posted agent outputs. Scoring never fails for
// training-subsystem reasons; the worst case is a score from stale or
// default weights.
func (ar *ApiV1Router) scoreHandler(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("unreadable score request", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	defer r.Body.Close()

	outputs := make(map[string]ensemble.AgentOutput, len(req.Outputs))
	for _, out := range req.Outputs {
		outputs[out.AgentID] = out
	}

	score, used := ar.scorer.Score(outputs, req.Segment)
	writeJSON(w, ScoreResponse{Score: score, WeightsUsed: used})
}

// weightsHandler returns a segment's active vector. Never 404s: untrained
// segments report the default fallback, which is what scoring would use.
func (ar *ApiV1Router) weightsHandler(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("segment")
	writeJSON(w, ar.store.Get(segment))
}

// historyHandler returns a segment's retained weight versions.
func (ar *ApiV1Router) historyHandler(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("segment")
	history, err := ar.store.History(segment)
	if err != nil {
		slog.Error("weight history read failed", "segment", segment, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, history)
}

// RetrainRequest optionally narrows an out-of-cycle run to one segment.
type RetrainRequest struct {
	Segment string `json:"segment,omitempty"`
}

// retrainHandler triggers a retrain run and returns its report. Responds
// 409 when a scheduled run is already executing.
func (ar *ApiV1Router) retrainHandler(w http.ResponseWriter, r *http.Request) {
	var req RetrainRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("unreadable retrain request", "error", err)
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
	}
	defer r.Body.Close()

	var segments []string
	if req.Segment != "" {
		segments = append(segments, req.Segment)
	}

	report, err := ar.sched.RunOnce(r.Context(), segments...)
	switch {
	case errors.Is(err, scheduler.ErrRetrainInFlight):
		w.WriteHeader(http.StatusConflict)
		return
	case err != nil:
		slog.Error("forced retrain failed", "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}
