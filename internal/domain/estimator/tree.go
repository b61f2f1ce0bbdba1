package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
)

// tree is a CART regression tree grown by squared-error reduction.
type tree struct {
	params          Params
	rngSeed         int64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int

	fitted bool
	width  int
	nodes  []treeNode
}

// treeNode is a flattened node. Leaves have Feature == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type treeState struct {
	Width int        `json:"width"`
	Nodes []treeNode `json:"nodes"`
}

func newTree(p Params, seed int64) (Estimator, error) {
	if err := p.only("tree", "max_depth", "min_samples_split", "min_samples_leaf", "max_features"); err != nil {
		return nil, err
	}
	t := &tree{params: p.clone(), rngSeed: seed}
	var err error
	if t.maxDepth, err = p.getInt("max_depth", 8); err != nil {
		return nil, err
	}
	if t.minSamplesSplit, err = p.getInt("min_samples_split", 2); err != nil {
		return nil, err
	}
	if t.minSamplesLeaf, err = p.getInt("min_samples_leaf", 1); err != nil {
		return nil, err
	}
	if t.maxFeatures, err = p.getInt("max_features", 0); err != nil {
		return nil, err
	}
	switch {
	case t.maxDepth < 0:
		return nil, fmt.Errorf("%w: max_depth=%d must be >= 0", ErrParam, t.maxDepth)
	case t.minSamplesSplit < 2:
		return nil, fmt.Errorf("%w: min_samples_split=%d must be >= 2", ErrParam, t.minSamplesSplit)
	case t.minSamplesLeaf < 1:
		return nil, fmt.Errorf("%w: min_samples_leaf=%d must be >= 1", ErrParam, t.minSamplesLeaf)
	case t.maxFeatures < 0:
		return nil, fmt.Errorf("%w: max_features=%d must be >= 0", ErrParam, t.maxFeatures)
	}
	return t, nil
}

func (m *tree) Kind() string   { return "tree" }
func (m *tree) Params() Params { return m.params.clone() }
func (m *tree) seed() int64    { return m.rngSeed }

func (m *tree) Fit(ctx context.Context, X [][]float64, y []float64) error {
	p, err := checkShape(X, y)
	if err != nil {
		return err
	}
	b := &builder{
		ctx: ctx,
		m:   m,
		x:   X,
		y:   y,
		rng: rand.New(rand.NewSource(m.rngSeed)), //nolint:gosec // reproducible feature sampling
		p:   p,
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	m.nodes = m.nodes[:0]
	if _, err := b.grow(idx, 0); err != nil {
		m.nodes = nil
		return err
	}
	m.width = p
	m.fitted = true
	return nil
}

type builder struct {
	ctx context.Context
	m   *tree
	x   [][]float64
	y   []float64
	rng *rand.Rand
	p   int
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	self := len(b.m.nodes)
	b.m.nodes = append(b.m.nodes, treeNode{Feature: -1, Value: sum / float64(len(idx))})

	if len(idx) < b.m.minSamplesSplit || (b.m.maxDepth > 0 && depth >= b.m.maxDepth) {
		return self, nil
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self, nil
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l, err := b.grow(left, depth+1)
	if err != nil {
		return 0, err
	}
	r, err := b.grow(right, depth+1)
	if err != nil {
		return 0, err
	}
	n := &b.m.nodes[self]
	n.Feature, n.Threshold, n.Left, n.Right = feature, threshold, l, r
	return self, nil
}

func (b *builder) candidates() []int {
	all := make([]int, b.p)
	for j := range all {
		all[j] = j
	}
	if b.m.maxFeatures == 0 || b.m.maxFeatures >= b.p {
		return all
	}
	b.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:b.m.maxFeatures]
	sort.Ints(picked)
	return picked
}

// bestSplit finds the split minimizing the summed squared error of both
// children. Ties keep the first candidate found.
func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.m.minSamplesLeaf
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parent := totalSq - total*total/float64(n)

	bestFeature, bestThreshold, bestErr := -1, 0.0, parent
	order := make([]int, n)
	for _, f := range b.candidates() {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool { return b.x[order[a]][f] < b.x[order[c]][f] })

		var ls, lsq float64
		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			ls += yi
			lsq += yi * yi
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[order[k]][f], b.x[order[k+1]][f]
			if cur == next {
				continue
			}
			rs, rsq := total-ls, totalSq-lsq
			sse := (lsq - ls*ls/float64(nl)) + (rsq - rs*rs/float64(nr))
			if sse < bestErr-1e-12 {
				bestFeature, bestThreshold, bestErr = f, (cur+next)/2, sse
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (m *tree) Predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, m.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		k := 0
		for m.nodes[k].Feature >= 0 {
			if row[m.nodes[k].Feature] <= m.nodes[k].Threshold {
				k = m.nodes[k].Left
			} else {
				k = m.nodes[k].Right
			}
		}
		out[i] = m.nodes[k].Value
	}
	return out, nil
}

func (m *tree) state() any {
	if !m.fitted {
		return nil
	}
	return treeState{Width: m.width, Nodes: m.nodes}
}

func (m *tree) restore(raw json.RawMessage) error {
	var s treeState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrShape)
	}
	for k, n := range s.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= s.Width || n.Left <= k || n.Right <= k || n.Left >= len(s.Nodes) || n.Right >= len(s.Nodes) {
			return fmt.Errorf("%w: tree node %d is inconsistent", ErrShape, k)
		}
	}
	m.width, m.nodes, m.fitted = s.Width, s.Nodes, true
	return nil
}
