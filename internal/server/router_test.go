package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/outcome"
	"github.com/danielpatrickdp/matchrank/internal/scheduler"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

var testRoster = []string{"historical", "capacity", "geo"}

type stubOutcomes struct {
	records []outcome.Record
}

func (s *stubOutcomes) FetchRecent(context.Context, time.Duration) ([]outcome.Record, error) {
	return s.records, nil
}

// trainingRecords builds labeled records for one segment where historical
// tracks the outcome.
func trainingRecords(segment string, n int) []outcome.Record {
	var records []outcome.Record
	for i := 0; i < n; i++ {
		won := i%2 == 0
		score := 10.0
		if won {
			score = 90
		}
		records = append(records, outcome.Record{
			CaseID:  fmt.Sprintf("%s-%d", segment, i),
			Segment: segment,
			Outputs: map[string]ensemble.AgentOutput{
				"historical": {AgentID: "historical", Score: score, Confidence: 1},
				"geo":        {AgentID: "geo", Score: 50, Confidence: 1},
			},
			FinalLabel: &won,
		})
	}
	return records
}

func testMux(t *testing.T, records []outcome.Record) (*http.ServeMux, *weights.Store) {
	t.Helper()
	def, err := weights.NewDefault(testRoster, nil)
	require.NoError(t, err)

	store, err := weights.NewStore(filepath.Join(t.TempDir(), "weights.db"), def, 3)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := scheduler.DefaultConfig(testRoster)
	cfg.Trainer.MinSamples = 10
	sched, err := scheduler.New(store, &stubOutcomes{records: records}, cfg)
	require.NoError(t, err)

	router := NewApiV1Router(ensemble.NewScorer(store), store, sched)
	return router.Mux(), store
}

func TestScoreEndpoint(t *testing.T) {
	mux, _ := testMux(t, nil)

	body := `{
		"segment": "family",
		"outputs": [
			{"agent_id": "historical", "score": 80, "confidence": 1},
			{"agent_id": "geo", "score": 20, "confidence": 1}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Equal default weights, full confidence: plain average.
	require.InDelta(t, 50.0, resp.Score, 1e-9)
	require.Equal(t, weights.OriginDefault, resp.WeightsUsed.Origin)
}

func TestScoreEndpointBadBody(t *testing.T) {
	mux, _ := testMux(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWeightsEndpointFallsBackToDefault(t *testing.T) {
	mux, _ := testMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weights/family", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var vec weights.Vector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vec))
	require.Equal(t, weights.OriginDefault, vec.Origin)
	require.InDelta(t, 1.0/3, vec.Weights["historical"], 1e-9)
}

func TestRetrainEndpointTrainsAndServesNewWeights(t *testing.T) {
	mux, store := testMux(t, trainingRecords("family", 40))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrain", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report scheduler.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 40, report.RecordCount)
	require.Len(t, report.Segments, 1)
	require.True(t, report.Segments[0].Replaced)

	require.Equal(t, weights.OriginOutcome, store.Get("family").Origin)

	// The weights endpoint now reflects the trained vector.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/weights/family", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var vec weights.Vector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vec))
	require.Equal(t, weights.OriginOutcome, vec.Origin)
}

func TestRetrainEndpointSegmentFilter(t *testing.T) {
	records := append(trainingRecords("family", 40), trainingRecords("criminal", 40)...)
	mux, store := testMux(t, records)

	body := `{"segment": "criminal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrain", strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, weights.OriginOutcome, store.Get("criminal").Origin)
	require.Equal(t, weights.OriginDefault, store.Get("family").Origin)
}

func TestHistoryEndpoint(t *testing.T) {
	mux, store := testMux(t, nil)

	vec := weights.Vector{
		VersionID:   "v-1",
		Segment:     "family",
		Weights:     map[string]float64{"historical": 1},
		SampleCount: 80,
		Origin:      weights.OriginProxy,
		FittedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Replace("family", vec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weights/family/history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []weights.Vector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, "v-1", history[0].VersionID)
}
