package retriever

// Metrics are ranking-quality scores for one query at a fixed retrieval
// depth K. All ratios live in [0, 1].
type Metrics struct {
	PrecisionAtK  float64
	RecallAtK     float64
	F1AtK         float64
	MRR           float64
	AvgSimilarity float64
	RetrievedIDs  []int
	TruePositives int
	TotalRelevant int
}

// ComputeMetrics scores a retrieved ranking against the ground-truth
// relevant chunk IDs. It is a pure function of its inputs: precision@k
// divides by k, recall@k by the relevant-set size (0 when empty), F1 is the
// harmonic mean (0 when both are 0), and MRR is the inverse rank of the
// first relevant hit.
func ComputeMetrics(results []Retrieved, relevantIDs []int, topK int) Metrics {
	relevant := make(map[int]struct{}, len(relevantIDs))
	for _, id := range relevantIDs {
		relevant[id] = struct{}{}
	}

	m := Metrics{
		RetrievedIDs:  make([]int, 0, len(results)),
		TotalRelevant: len(relevant),
	}
	mrr := 0.0
	var scoreSum float64
	for i, res := range results {
		m.RetrievedIDs = append(m.RetrievedIDs, res.Document.ChunkID)
		scoreSum += res.Score
		if _, ok := relevant[res.Document.ChunkID]; ok {
			m.TruePositives++
			if mrr == 0 {
				mrr = 1.0 / float64(i+1)
			}
		}
	}
	m.MRR = mrr

	if topK > 0 {
		m.PrecisionAtK = float64(m.TruePositives) / float64(topK)
	}
	if len(relevant) > 0 {
		m.RecallAtK = float64(m.TruePositives) / float64(len(relevant))
	}
	if m.PrecisionAtK+m.RecallAtK > 0 {
		m.F1AtK = 2 * m.PrecisionAtK * m.RecallAtK / (m.PrecisionAtK + m.RecallAtK)
	}
	if len(results) > 0 {
		m.AvgSimilarity = scoreSum / float64(len(results))
	}
	return m
}
