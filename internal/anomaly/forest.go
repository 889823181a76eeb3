package anomaly

import (
	"math"
	"math/rand/v2"

	"minewatch/internal/pixels"
)

const (
	DefaultTrees      = 200
	DefaultSampleSize = 256
	DefaultSeed       = 42

	eulerGamma = 0.5772156649015329
	// autoOffset is the decision offset used when the anomaly fraction is
	// estimated rather than fixed: a row is anomalous when its score falls
	// below -0.5.
	autoOffset = -0.5
)

// IsolationForest isolates rows with random axis-aligned splits. Rows that
// need few splits to isolate have short average path lengths and score as
// anomalous.
type IsolationForest struct {
	Trees      int
	SampleSize int
	Seed       uint64
}

// NewIsolationForest returns a forest with the given parameters, substituting
// defaults for non-positive values.
func NewIsolationForest(trees, sampleSize int, seed uint64) *IsolationForest {
	if trees <= 0 {
		trees = DefaultTrees
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &IsolationForest{Trees: trees, SampleSize: sampleSize, Seed: seed}
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	size      int
	leaf      bool
}

type tree struct {
	nodes []node
}

// FitPredict trains a fresh forest on matrix and scores every row.
func (f *IsolationForest) FitPredict(matrix [][]float64) (Result, error) {
	if err := ValidateMatrix(matrix); err != nil {
		return Result{}, err
	}

	trees := f.Trees
	if trees <= 0 {
		trees = DefaultTrees
	}
	psi := f.SampleSize
	if psi <= 0 {
		psi = DefaultSampleSize
	}
	n := len(matrix)
	if psi > n {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
	indices := make([]int, n)
	forest := make([]tree, trees)
	for t := range forest {
		for i := range indices {
			indices[i] = i
		}
		// Partial Fisher-Yates: the first psi entries become the sub-sample.
		for i := 0; i < psi; i++ {
			j := i + rng.IntN(n-i)
			indices[i], indices[j] = indices[j], indices[i]
		}
		sample := make([]int, psi)
		copy(sample, indices[:psi])
		forest[t] = buildTree(matrix, sample, maxDepth, rng)
	}

	norm := averagePathLength(psi)
	result := Result{
		Labels: make([]pixels.Label, n),
		Scores: make([]float64, n),
	}
	for r, row := range matrix {
		var total float64
		for i := range forest {
			total += forest[i].pathLength(row)
		}
		mean := total / float64(len(forest))
		score := -math.Pow(2, -mean/norm)
		decision := score - autoOffset
		result.Scores[r] = decision
		if decision < 0 {
			result.Labels[r] = pixels.LabelAnomalous
		} else {
			result.Labels[r] = pixels.LabelNormal
		}
	}
	return result, nil
}

func buildTree(matrix [][]float64, sample []int, maxDepth int, rng *rand.Rand) tree {
	t := tree{nodes: make([]node, 0, 2*len(sample))}
	t.grow(matrix, sample, 0, maxDepth, rng)
	return t
}

func (t *tree) grow(matrix [][]float64, rows []int, depth, maxDepth int, rng *rand.Rand) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, node{size: len(rows)})
	if depth >= maxDepth || len(rows) <= 1 {
		t.nodes[id].leaf = true
		return id
	}

	width := len(matrix[rows[0]])
	features := rng.Perm(width)
	for _, feature := range features {
		lo, hi := matrix[rows[0]][feature], matrix[rows[0]][feature]
		for _, r := range rows[1:] {
			v := matrix[r][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi <= lo {
			continue
		}
		threshold := lo + rng.Float64()*(hi-lo)
		left := make([]int, 0, len(rows))
		right := make([]int, 0, len(rows))
		for _, r := range rows {
			if matrix[r][feature] < threshold {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			// threshold landed exactly on lo; treat the node as a split of lo vs rest
			left, right = left[:0], right[:0]
			for _, r := range rows {
				if matrix[r][feature] <= lo {
					left = append(left, r)
				} else {
					right = append(right, r)
				}
			}
			threshold = math.Nextafter(lo, math.Inf(1))
		}
		t.nodes[id].feature = feature
		t.nodes[id].threshold = threshold
		l := t.grow(matrix, left, depth+1, maxDepth, rng)
		r := t.grow(matrix, right, depth+1, maxDepth, rng)
		t.nodes[id].left = l
		t.nodes[id].right = r
		return id
	}

	// every feature is constant across the node
	t.nodes[id].leaf = true
	return id
}

func (t *tree) pathLength(row []float64) float64 {
	depth := 0
	id := 0
	for {
		n := t.nodes[id]
		if n.leaf {
			return float64(depth) + averagePathLength(n.size)
		}
		if row[n.feature] < n.threshold {
			id = n.left
		} else {
			id = n.right
		}
		depth++
	}
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n nodes, used to normalize depths.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}
