package timeseries

// Stats summarizes the retained fairness values.
// Bias figures are the complements (100 - x) of the fairness ones,
// so MaxBias corresponds to MinFairness.
type Stats struct {
	Count           int     `json:"count"`
	CurrentFairness float64 `json:"currentFairness"`
	AvgFairness     float64 `json:"avgFairness"`
	MinFairness     float64 `json:"minFairness"`
	MaxFairness     float64 `json:"maxFairness"`
	CurrentBias     float64 `json:"currentBias"`
	AvgBias         float64 `json:"avgBias"`
	MinBias         float64 `json:"minBias"`
	MaxBias         float64 `json:"maxBias"`
}

// Stats computes summary figures over the buffer. An empty buffer yields zero Stats.
func (b *Buffer) Stats() Stats {
	return Summarize(b.Values())
}

// Summarize computes Stats for an ordered sequence of fairness values.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sum, lo, hi := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		lo = min(lo, v)
		hi = max(hi, v)
	}
	cur := values[len(values)-1]
	avg := sum / float64(len(values))

	return Stats{
		Count:           len(values),
		CurrentFairness: cur,
		AvgFairness:     avg,
		MinFairness:     lo,
		MaxFairness:     hi,
		CurrentBias:     100 - cur,
		AvgBias:         100 - avg,
		MinBias:         100 - hi,
		MaxBias:         100 - lo,
	}
}
