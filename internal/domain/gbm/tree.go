package gbm

import "math"

// Node is one tree node. Leaves have Feature == -1. Value is the node's
// regularized mean residual; for leaves it is the output before shrinkage.
// Missing values always follow the left branch.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Gain      float64 `json:"gain"`
	Cover     float64 `json:"cover"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Feature < 0 }

// Tree is a binary regression tree stored as a flat node slice; node 0 is
// the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// goesLeft routes an encoded value at a split node.
func goesLeft(n Node, v float64) bool {
	return math.IsNaN(v) || v <= n.Threshold
}

// leafValue returns the output of the leaf x falls into.
func (t *Tree) leafValue(x []float64) float64 {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := t.Nodes[i]
		if goesLeft(n, x[n.Feature]) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// grower builds one tree on binned data.
type grower struct {
	bins     [][]uint16
	binnings []binning
	resid    []float64
	params   Params
	nodes    []Node
	// splitBin is the last left bin of each split node, used to route the
	// binned training rows without comparing raw values.
	splitBin []int

	sumBuf []float64
	cntBuf []float64
}

func (g *grower) grow(rows []int, depth int) int {
	lambda := g.params.L2LeafReg
	sum := 0.0
	for _, r := range rows {
		sum += g.resid[r]
	}
	n := float64(len(rows))
	idx := len(g.nodes)
	g.nodes = append(g.nodes, Node{Feature: -1, Value: sum / (n + lambda), Cover: n})
	g.splitBin = append(g.splitBin, -1)

	if depth >= g.params.Depth || len(rows) < 2*g.params.MinLeafSize {
		return idx
	}

	parentScore := sum * sum / (n + lambda)
	bestGain, bestFeature, bestBin := 0.0, -1, -1
	minLeaf := float64(g.params.MinLeafSize)
	for f, col := range g.bins {
		nb := g.binnings[f].bins()
		if nb < 3 {
			continue
		}
		sums := g.buffer(&g.sumBuf, nb)
		cnts := g.buffer(&g.cntBuf, nb)
		for _, r := range rows {
			b := col[r]
			sums[b] += g.resid[r]
			cnts[b]++
		}
		var gl, nl float64
		// Left takes bins 0..b; the last bin never goes left alone.
		for b := 0; b < nb-1; b++ {
			gl += sums[b]
			nl += cnts[b]
			if b == 0 || cnts[b] == 0 {
				continue
			}
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			gr := sum - gl
			gain := gl*gl/(nl+lambda) + gr*gr/(nr+lambda) - parentScore
			if gain > bestGain+1e-12 {
				bestGain, bestFeature, bestBin = gain, f, b
			}
		}
	}
	if bestFeature < 0 {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := g.bins[bestFeature]
	for _, r := range rows {
		if int(col[r]) <= bestBin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	g.nodes[idx].Feature = bestFeature
	g.nodes[idx].Threshold = g.binnings[bestFeature].edges[bestBin-1]
	g.nodes[idx].Gain = bestGain
	g.splitBin[idx] = bestBin
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[idx].Left = l
	g.nodes[idx].Right = r
	return idx
}

// route returns the leaf value for binned training row r.
func (g *grower) route(r int) float64 {
	i := 0
	for !g.nodes[i].IsLeaf() {
		if int(g.bins[g.nodes[i].Feature][r]) <= g.splitBin[i] {
			i = g.nodes[i].Left
		} else {
			i = g.nodes[i].Right
		}
	}
	return g.nodes[i].Value
}

func (g *grower) buffer(buf *[]float64, n int) []float64 {
	if cap(*buf) < n {
		*buf = make([]float64, n)
	}
	b := (*buf)[:n]
	for i := range b {
		b[i] = 0
	}
	return b
}
