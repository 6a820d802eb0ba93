package ensemble

import "errors"

// #region errors

// ErrMissingAgentSet indicates an empty agent roster. This is a configuration
// error: feature order cannot be established without at least one agent.
var ErrMissingAgentSet = errors.New("agent roster is empty")

// #endregion

// #region agent-output

// AgentOutput is one agent's opinion for a single case: a score in [0,100]
// and a confidence in [0,1]. Produced by external agents; never persisted
// here beyond what training needs.
type AgentOutput struct {
	AgentID    string  `json:"agent_id"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// #endregion

// #region score-bounds

const (
	// ScoreMin and ScoreMax bound every agent score and every blended score.
	ScoreMin = 0.0
	ScoreMax = 100.0

	// NeutralScore is returned when no agent carries any confidence.
	NeutralScore = 50.0
)

// #endregion
