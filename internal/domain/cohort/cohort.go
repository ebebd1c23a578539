// Package cohort standardizes values within peer groups such as all
// employees sharing a manager, position, job level or department.
package cohort

import (
	"math"
	"sort"
)

// Benchmark is the per-cohort reference used for standardization. Std is
// the sample standard deviation and is NaN for cohorts with fewer than two
// valued members.
type Benchmark struct {
	Mean  float64
	Std   float64
	Count int
}

// Benchmarks computes mean and sample standard deviation per key. Rows with
// an empty key or a NaN value are ignored.
func Benchmarks(keys []string, values []float64) map[string]Benchmark {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, k := range keys {
		if k == "" || math.IsNaN(values[i]) {
			continue
		}
		sums[k] += values[i]
		counts[k]++
	}

	out := make(map[string]Benchmark, len(counts))
	for k, n := range counts {
		out[k] = Benchmark{Mean: sums[k] / float64(n), Std: math.NaN(), Count: n}
	}

	sq := make(map[string]float64, len(counts))
	for i, k := range keys {
		if k == "" || math.IsNaN(values[i]) {
			continue
		}
		d := values[i] - out[k].Mean
		sq[k] += d * d
	}
	for k, b := range out {
		if b.Count > 1 {
			b.Std = math.Sqrt(sq[k] / float64(b.Count-1))
			out[k] = b
		}
	}
	return out
}

// ZScores standardizes each value against its own cohort. The result is 0
// whenever the score is undefined: empty key, missing value, a cohort of one
// or a cohort with zero variance.
func ZScores(keys []string, values []float64) []float64 {
	bench := Benchmarks(keys, values)
	out := make([]float64, len(values))
	for i, k := range keys {
		b, ok := bench[k]
		if !ok || math.IsNaN(values[i]) || math.IsNaN(b.Std) || b.Std == 0 {
			continue
		}
		z := (values[i] - b.Mean) / b.Std
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		out[i] = z
	}
	return out
}

// Counts returns, for every row, the number of rows sharing its key. Rows
// with an empty key get 0.
func Counts(keys []string) []float64 {
	n := make(map[string]int)
	for _, k := range keys {
		if k != "" {
			n[k]++
		}
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = float64(n[k])
	}
	return out
}

// Means returns the mean of the non-NaN values per key.
func Means(keys []string, values []float64) map[string]float64 {
	out := make(map[string]float64)
	for k, b := range Benchmarks(keys, values) {
		out[k] = b.Mean
	}
	return out
}

// Medians returns the median of the non-NaN values per key.
func Medians(keys []string, values []float64) map[string]float64 {
	groups := make(map[string][]float64)
	for i, k := range keys {
		if k == "" || math.IsNaN(values[i]) {
			continue
		}
		groups[k] = append(groups[k], values[i])
	}
	out := make(map[string]float64, len(groups))
	for k, vs := range groups {
		sort.Float64s(vs)
		mid := len(vs) / 2
		if len(vs)%2 == 1 {
			out[k] = vs[mid]
		} else {
			out[k] = (vs[mid-1] + vs[mid]) / 2
		}
	}
	return out
}
