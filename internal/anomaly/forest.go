package anomaly

import (
	"math"
	"math/rand/v2"
)

const (
	DefaultTrees      = 100
	DefaultSampleSize = 256
	DefaultSeed       = 42
)

const eulerGamma = 0.5772156649015329

// Forest is an isolation forest. Anomalies are isolated in fewer random
// splits than normal points, so a short average path means a high score.
type Forest struct {
	trees      int
	sampleSize int
	rng        *rand.Rand

	roots []*node
	psi   int
}

type node struct {
	feature     int
	split       float64
	left, right *node
	size        int
}

func NewForest(trees, sampleSize int, seed uint64) *Forest {
	return &Forest{
		trees:      trees,
		sampleSize: sampleSize,
		rng:        rand.New(rand.NewPCG(seed, seed)),
	}
}

// Fit builds the trees on subsamples of data.
func (f *Forest) Fit(data [][]float64) {
	f.psi = min(f.sampleSize, len(data))
	f.roots = f.roots[:0]
	if f.psi == 0 {
		return
	}
	limit := int(math.Ceil(math.Log2(float64(max(f.psi, 2)))))

	for range f.trees {
		perm := f.rng.Perm(len(data))[:f.psi]
		sample := make([][]float64, f.psi)
		for i, p := range perm {
			sample[i] = data[p]
		}
		f.roots = append(f.roots, f.build(sample, 0, limit))
	}
}

func (f *Forest) build(rows [][]float64, depth, limit int) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	// only features that still vary can split
	var candidates []int
	lo := make([]float64, len(rows[0]))
	hi := make([]float64, len(rows[0]))
	for j := range rows[0] {
		lo[j], hi[j] = rows[0][j], rows[0][j]
		for _, r := range rows[1:] {
			lo[j] = min(lo[j], r[j])
			hi[j] = max(hi[j], r[j])
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(rows)}
	}

	feat := candidates[f.rng.IntN(len(candidates))]
	split := lo[feat] + f.rng.Float64()*(hi[feat]-lo[feat])

	var left, right [][]float64
	for _, r := range rows {
		if r[feat] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return &node{
		feature: feat,
		split:   split,
		left:    f.build(left, depth+1, limit),
		right:   f.build(right, depth+1, limit),
	}
}

// Score returns the anomaly score of x in (0, 1]; higher is more anomalous.
func (f *Forest) Score(x []float64) float64 {
	if len(f.roots) == 0 {
		return 0
	}
	var total float64
	for _, root := range f.roots {
		total += pathLength(root, x, 0)
	}
	mean := total / float64(len(f.roots))
	c := averagePath(f.psi)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

func pathLength(n *node, x []float64, depth int) float64 {
	for n.left != nil {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath is the expected path length of an unsuccessful search in a
// binary search tree of n points.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
