package ensemble

// #region build-features

// BuildFeatures turns a set of agent outputs into a fixed-order feature
// vector: score*confidence per roster agent, zero when the agent produced
// no opinion. The roster fixes dimension and ordering, so weight indices
// stay meaningful between training and scoring.
func BuildFeatures(outputs map[string]AgentOutput, roster []string) ([]float64, error) {
	if len(roster) == 0 {
		return nil, ErrMissingAgentSet
	}

	features := make([]float64, len(roster))
	for i, agentID := range roster {
		out, ok := outputs[agentID]
		if !ok {
			continue
		}
		features[i] = out.Score * out.Confidence
	}
	return features, nil
}

// #endregion
