package workflow

// computeConfidence scores answer reliability. Heuristic, not calibrated:
// a 0.5 base, up to 0.2 from upstream identification confidence, up to 0.3
// growing with retrieved chunk count, 0.1 for a structured rationale.
func computeConfidence(identificationConfidence float64, chunkCount int, hasRationale bool) float64 {
	confidence := 0.5

	idBoost := identificationConfidence * 0.2
	if idBoost > 0.2 {
		idBoost = 0.2
	}
	confidence += idBoost

	chunkBoost := float64(chunkCount) * 0.1
	if chunkBoost > 0.3 {
		chunkBoost = 0.3
	}
	confidence += chunkBoost

	if hasRationale {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}
