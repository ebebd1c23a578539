package gbm

import (
	"math"
	"sort"

	"github.com/okian/retention/internal/domain/feature"
)

// maxBins bounds the candidate split points per feature.
const maxBins = 128

// fitEncoders orders the categories of every categorical column by their
// mean target and returns the rank of each category as its numeric code.
func fitEncoders(cols []feature.Column, X [][]feature.Value, y []float64) map[string]map[string]float64 {
	enc := make(map[string]map[string]float64)
	for j, c := range cols {
		if c.Kind != feature.Categorical {
			continue
		}
		sums := make(map[string]float64)
		counts := make(map[string]int)
		for i, row := range X {
			cat := row[j].Cat
			if cat == "" {
				continue
			}
			sums[cat] += y[i]
			counts[cat]++
		}
		cats := make([]string, 0, len(counts))
		for cat := range counts {
			cats = append(cats, cat)
		}
		mean := func(c string) float64 { return sums[c] / float64(counts[c]) }
		sort.Slice(cats, func(a, b int) bool {
			ma, mb := mean(cats[a]), mean(cats[b])
			if ma != mb {
				return ma < mb
			}
			return cats[a] < cats[b]
		})
		codes := make(map[string]float64, len(cats))
		for rank, cat := range cats {
			codes[cat] = float64(rank)
		}
		enc[c.Name] = codes
	}
	return enc
}

// encodeRow turns one row of cells into numbers. Missing cells and unseen
// categories become NaN.
func encodeRow(cols []feature.Column, enc map[string]map[string]float64, row []feature.Value) []float64 {
	out := make([]float64, len(cols))
	for j, c := range cols {
		if c.Kind != feature.Categorical {
			out[j] = row[j].Num
			continue
		}
		code, ok := enc[c.Name][row[j].Cat]
		if !ok {
			out[j] = math.NaN()
			continue
		}
		out[j] = code
	}
	return out
}

// binning quantizes one encoded column. Bin 0 holds missing values; bin b>0
// holds values in (edges[b-2], edges[b-1]].
type binning struct {
	edges []float64
}

func newBinning(values []float64) binning {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)

	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) <= maxBins {
		return binning{edges: distinct}
	}

	edges := make([]float64, 0, maxBins)
	for k := 1; k <= maxBins; k++ {
		pos := k*len(sorted)/maxBins - 1
		v := sorted[pos]
		if len(edges) == 0 || v > edges[len(edges)-1] {
			edges = append(edges, v)
		}
	}
	if last := sorted[len(sorted)-1]; edges[len(edges)-1] < last {
		edges = append(edges, last)
	}
	return binning{edges: edges}
}

func (b binning) bin(v float64) uint16 {
	if math.IsNaN(v) {
		return 0
	}
	return uint16(sort.SearchFloat64s(b.edges, v) + 1)
}

// bins returns the number of bins including the missing bin.
func (b binning) bins() int { return len(b.edges) + 1 }
