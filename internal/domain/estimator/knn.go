package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// knn averages the targets of the k nearest training rows. Distance ties are
// broken by training row index so predictions are deterministic.
type knn struct {
	params  Params
	k       int
	weights string

	fitted bool
	x      [][]float64
	y      []float64
}

type knnState struct {
	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
}

func newKNN(p Params, _ int64) (Estimator, error) {
	if err := p.only("knn", "k", "weights"); err != nil {
		return nil, err
	}
	k, err := p.getInt("k", 5)
	if err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k=%d must be >= 1", ErrParam, k)
	}
	w, err := p.getString("weights", "uniform", "uniform", "distance")
	if err != nil {
		return nil, err
	}
	return &knn{params: p.clone(), k: k, weights: w}, nil
}

func (m *knn) Kind() string   { return "knn" }
func (m *knn) Params() Params { return m.params.clone() }

func (m *knn) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := checkShape(X, y); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.x = make([][]float64, len(X))
	for i, row := range X {
		m.x[i] = append([]float64(nil), row...)
	}
	m.y = append([]float64(nil), y...)
	m.fitted = true
	return nil
}

func (m *knn) Predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, len(m.x[0])); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.predictOne(row)
	}
	return out, nil
}

type neighbor struct {
	idx int
	d   float64
}

func (m *knn) predictOne(row []float64) float64 {
	nbrs := make([]neighbor, len(m.x))
	for j, xj := range m.x {
		nbrs[j] = neighbor{idx: j, d: sqDist(row, xj)}
	}
	sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })
	k := m.k
	if k > len(nbrs) {
		k = len(nbrs)
	}
	nbrs = nbrs[:k]

	if m.weights == "distance" {
		var exact, nExact float64
		for _, nb := range nbrs {
			if nb.d == 0 {
				exact += m.y[nb.idx]
				nExact++
			}
		}
		if nExact > 0 {
			return exact / nExact
		}
		var num, den float64
		for _, nb := range nbrs {
			w := 1 / math.Sqrt(nb.d)
			num += w * m.y[nb.idx]
			den += w
		}
		return num / den
	}

	var sum float64
	for _, nb := range nbrs {
		sum += m.y[nb.idx]
	}
	return sum / float64(k)
}

// sqDist compares squared distances; the ordering is the same as Euclidean.
func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func (m *knn) state() any {
	if !m.fitted {
		return nil
	}
	return knnState{X: m.x, Y: m.y}
}

func (m *knn) restore(raw json.RawMessage) error {
	var s knnState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if len(s.X) == 0 || len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: knn state has %d rows and %d targets", ErrShape, len(s.X), len(s.Y))
	}
	m.x, m.y, m.fitted = s.X, s.Y, true
	return nil
}
