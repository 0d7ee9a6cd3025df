package respond

// ConfidenceWeights controls the relative importance of confidence factors.
type ConfidenceWeights struct {
	Retrieval  float64 // how well the retrieved chunks back the answer
	Graph      float64 // whether the graph produced results
	Validation float64 // validation score
	Length     float64 // whether the answer is substantive
}

// DefaultConfidenceWeights returns balanced weights.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Retrieval:  0.3,
		Graph:      0.3,
		Validation: 0.25,
		Length:     0.15,
	}
}

// ComputeConfidence blends retrieval support, graph-result strength,
// validation outcome, and answer length into a [0,1] score.
func ComputeConfidence(answer string, in Input, v Validation, w ConfidenceWeights) float64 {
	conf := retrievalScore(answer, in)*w.Retrieval +
		graphScore(in)*w.Graph +
		v.Score()*w.Validation +
		lengthScore(answer)*w.Length

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// retrievalScore measures citation accuracy against retrieved chunks;
// neutral 0.5 when the answer carries no citations.
func retrievalScore(answer string, in Input) float64 {
	citations := ExtractCitations(answer, in.Chunks)
	if len(citations) == 0 {
		return 0.5
	}
	verified := 0
	for _, c := range citations {
		if c.Verified {
			verified++
		}
	}
	return float64(verified) / float64(len(citations))
}

// graphScore rewards answers grounded in graph-query results.
func graphScore(in Input) float64 {
	if in.Results == nil {
		return 0
	}
	if in.Results.Procedural {
		return 1.0
	}
	switch {
	case in.Results.Count == 0:
		return 0.1
	case in.Results.Count == 1:
		return 1.0
	case in.Results.Count <= 10:
		return 0.9
	default:
		// Very broad matches suggest an underconstrained query.
		return 0.6
	}
}

// lengthScore buckets answer length in characters.
func lengthScore(answer string) float64 {
	switch n := len(answer); {
	case n < 10:
		return 0.2
	case n < 30:
		return 0.5
	case n < 100:
		return 0.8
	case n < 500:
		return 1.0
	default:
		return 0.9
	}
}
