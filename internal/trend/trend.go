// Package trend computes the smoothed trend line drawn over raw fairness samples.
package trend

import (
	"fmt"
	"math"
	"time"

	"github.com/and161185/biasmeter/model"
)

// Smooth returns the exponential moving average of values.
//
//	out[0] = values[0]
//	out[i] = out[i-1]*(1-factor) + values[i]*factor
//
// factor is clamped to [0,1]: 0 yields a flat line at values[0], 1 returns values unchanged.
// A NaN factor is treated as 1.
func Smooth(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	factor = clamp(factor, 0, 1)

	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1]*(1-factor) + values[i]*factor
	}
	return out
}

// FactorFromLevel converts a 0..100 smoothing level into a smoothing factor.
func FactorFromLevel(level int) float64 {
	return clamp(float64(level)/100, 0, 1)
}

// clamp maps NaN to hi; min and max would propagate it.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return max(lo, min(hi, v))
}

// Grade is a coarse label for a fairness score.
type Grade string

const (
	Excellent Grade = "Excellent"
	Good      Grade = "Good"
	Fair      Grade = "Fair"
	Poor      Grade = "Poor"
)

// GradeOf classifies a fairness score.
func GradeOf(score float64) Grade {
	switch {
	case score >= 90:
		return Excellent
	case score >= 80:
		return Good
	case score >= 70:
		return Fair
	default:
		return Poor
	}
}

// Labels returns chart axis labels relative to now: "Now" for the current second, "-Ns" otherwise.
func Labels(samples []model.Sample, now time.Time) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		ago := int(now.Sub(s.Timestamp) / time.Second)
		if ago <= 0 {
			out[i] = "Now"
			continue
		}
		out[i] = fmt.Sprintf("-%ds", ago)
	}
	return out
}
