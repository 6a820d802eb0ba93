package outcome

import (
	"context"
	"time"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
)

// #region record

// Record is one historical case: the agent opinions it was scored with,
// its segment, and the labels its downstream outcome resolved to.
// Records are created by the outcome store and are read-only here.
//
// FinalLabel is the slow, ultimate outcome (e.g. a closed commitment).
// ProxyLabel is the fast early signal standing in for it during early
// learning. A nil pointer means that label kind is still unresolved; the
// trainer is only handed records whose selected label is resolved.
type Record struct {
	CaseID     string                          `json:"case_id"`
	Segment    string                          `json:"segment"`
	Outputs    map[string]ensemble.AgentOutput `json:"outputs"`
	FinalLabel *bool                           `json:"final_label,omitempty"`
	ProxyLabel *bool                           `json:"proxy_label,omitempty"`
	RecordedAt time.Time                       `json:"recorded_at"`
}

// #endregion

// #region store

// Store is the external outcome store the retrain scheduler pulls from.
// Implementations own filtering: every returned record carries at least
// one resolved label.
type Store interface {
	// FetchRecent returns records whose outcome was recorded within the
	// given window before now.
	FetchRecent(ctx context.Context, window time.Duration) ([]Record, error)
}

// #endregion
