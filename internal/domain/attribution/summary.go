package attribution

import (
	"math"
	"sort"
)

// Impact is one retained driver of a summary.
type Impact struct {
	Feature              string  `json:"-"`
	FeatureName          string  `json:"feature_name"`
	ImpactPercentage     float64 `json:"impact_percentage"`
	RecommendationAction string  `json:"recommendation_action"`
	ImpactValue          float64 `json:"-"`
}

// Summarize keeps the contributions whose magnitude is above the mean
// magnitude and expresses each as a share of the retained magnitude,
// highest first.
func Summarize(features []string, contrib []float64) []Impact {
	if len(contrib) == 0 {
		return nil
	}
	mean := 0.0
	for _, c := range contrib {
		mean += math.Abs(c)
	}
	mean /= float64(len(contrib))

	var out []Impact
	total := 0.0
	for i, c := range contrib {
		if math.Abs(c) > mean {
			out = append(out, Impact{Feature: features[i], ImpactValue: c})
			total += math.Abs(c)
		}
	}
	return finish(out, total)
}

// TopDrivers ranks an averaged vector by magnitude and keeps the n largest,
// expressed as shares of their combined magnitude.
func TopDrivers(features []string, avg []float64, n int) []Impact {
	idx := make([]int, len(avg))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return math.Abs(avg[idx[a]]) > math.Abs(avg[idx[b]]) })
	if n > 0 && len(idx) > n {
		idx = idx[:n]
	}
	out := make([]Impact, 0, len(idx))
	total := 0.0
	for _, i := range idx {
		if avg[i] == 0 {
			continue
		}
		out = append(out, Impact{Feature: features[i], ImpactValue: avg[i]})
		total += math.Abs(avg[i])
	}
	return finish(out, total)
}

func finish(out []Impact, total float64) []Impact {
	if total == 0 {
		return nil
	}
	for i := range out {
		out[i].ImpactPercentage = Round2(math.Abs(out[i].ImpactValue) / total * 100)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ImpactPercentage > out[b].ImpactPercentage })
	return out
}

// Average returns the element-wise mean of equal-length vectors.
func Average(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, c := range v {
			out[i] += c
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
