package occupancy

import (
	"math"
	"math/rand"
)

// forest is an ensemble of randomized isolation trees (Liu et al.). Each
// tree is grown on a random subsample; anomalies isolate in few splits, so
// short average path lengths mean anomalous points.
type forest struct {
	trees []*isoNode
	cn    float64 // path-length normalizer for the subsample size
}

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int // external node size; inner nodes keep 0
}

// Euler-Mascheroni constant used by the path-length correction.
const eulerGamma = 0.5772156649015329

// avgPathLength is c(n): the expected path length of an unsuccessful BST
// search in n points. Terminating a traversal in an external node of size
// n adds c(n) to the path.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// buildForest grows the ensemble. data is row-major; sampleSize caps the
// per-tree subsample. The rng fully determines the forest, so a fixed seed
// gives reproducible models.
func buildForest(data [][]float64, trees, sampleSize int, rng *rand.Rand) *forest {
	n := len(data)
	m := sampleSize
	if m > n {
		m = n
	}

	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(m), 2))))

	f := &forest{
		trees: make([]*isoNode, 0, trees),
		cn:    avgPathLength(m),
	}
	for t := 0; t < trees; t++ {
		perm := rng.Perm(n)
		sample := make([]int, m)
		copy(sample, perm[:m])
		f.trees = append(f.trees, growTree(data, sample, 0, maxDepth, rng))
	}
	return f
}

func growTree(data [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	dims := len(data[idx[0]])

	// Pick a random feature with spread; constant columns cannot split.
	feature := -1
	var lo, hi float64
	for _, d := range rng.Perm(dims) {
		lo, hi = data[idx[0]][d], data[idx[0]][d]
		for _, i := range idx[1:] {
			v := data[i][d]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			feature = d
			break
		}
	}
	if feature < 0 {
		return &isoNode{size: len(idx)}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if data[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(idx)}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    growTree(data, left, depth+1, maxDepth, rng),
		right:   growTree(data, right, depth+1, maxDepth, rng),
	}
}

func (f *forest) pathLength(x []float64, node *isoNode) float64 {
	depth := 0.0
	for node.left != nil {
		if x[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + avgPathLength(node.size)
}

// anomalyScore returns s(x) = 2^(-E[h(x)]/c(m)) in (0, 1); values near 1
// are anomalous.
func (f *forest) anomalyScore(x []float64) float64 {
	if len(f.trees) == 0 || f.cn == 0 {
		return 0.5
	}
	var total float64
	for _, t := range f.trees {
		total += f.pathLength(x, t)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/f.cn)
}
