package bench

import (
	"math"
	"slices"

	"github.com/ferris-elf/ferris-elf"
)

// Fold combines the per-fixture measurements of one submission into the
// submission-level report. largestInput is the byte size of the biggest
// fixture, used for the throughput estimate.
func Fold(ms []*ferriself.Measurement, largestInput int, prevBest *float64, verified bool) *ferriself.Report {
	medians := make([]float64, len(ms))
	pooled := make([]float64, 0, 2*len(ms))
	for i, m := range ms {
		medians[i] = float64(m.Median)
		// Pool mins and maxes together: the spread should express
		// run-to-run variance, not per-fixture variance.
		pooled = append(pooled, float64(m.Min), float64(m.Max))
	}

	med := median(medians)
	return &ferriself.Report{
		Verified: verified,
		Best:     slices.Min(medians),
		Median:   med,
		Stdev:    stdev(pooled),
		// +1 guards against division by zero; ns → MB/s
		Throughput: float64(largestInput) * 1000 / (med + 1),
		PrevBest:   prevBest,
	}
}

// Delta returns the improvement (negative) or regression (positive) against
// the previous best, and whether it clears the noise threshold: changes under
// 100ns are noise for runs over 1µs, under 5ns for faster runs. The
// asymmetry avoids noise-driven regression alerts on very fast submissions.
func Delta(rep *ferriself.Report) (delta float64, significant bool) {
	if rep.PrevBest == nil {
		return 0, false
	}
	delta = rep.Best - *rep.PrevBest
	if rep.Best > 1000 {
		significant = math.Abs(delta) >= 100
	} else {
		significant = math.Abs(delta) >= 5
	}
	return delta, significant
}

// DeltaPercent expresses the delta relative to the previous best.
func DeltaPercent(rep *ferriself.Report) float64 {
	if rep.PrevBest == nil {
		return 0
	}
	return math.Abs((*rep.PrevBest - rep.Best) / (*rep.PrevBest + 1) * 100)
}

func median(vals []float64) float64 {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// stdev is the sample standard deviation (n-1 denominator), matching the
// statistics the original harness reported. Returns 0 for fewer than two
// values.
func stdev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}
