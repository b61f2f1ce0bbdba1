package estimator

import (
	"context"
	"encoding/json"

	"gonum.org/v1/gonum/stat"
)

// mean predicts the training target mean. It is the baseline every other
// family has to beat.
type mean struct {
	params Params
	width  int
	value  float64
	fitted bool
}

type meanState struct {
	Width int     `json:"width"`
	Value float64 `json:"value"`
}

func newMean(p Params, _ int64) (Estimator, error) {
	if err := p.only("mean"); err != nil {
		return nil, err
	}
	return &mean{params: p.clone()}, nil
}

func (m *mean) Kind() string   { return "mean" }
func (m *mean) Params() Params { return m.params.clone() }

func (m *mean) Fit(ctx context.Context, X [][]float64, y []float64) error {
	p, err := checkShape(X, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.width = p
	m.value = stat.Mean(y, nil)
	m.fitted = true
	return nil
}

func (m *mean) Predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, m.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = m.value
	}
	return out, nil
}

func (m *mean) state() any {
	if !m.fitted {
		return nil
	}
	return meanState{Width: m.width, Value: m.value}
}

func (m *mean) restore(raw json.RawMessage) error {
	var s meanState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	m.width, m.value, m.fitted = s.Width, s.Value, true
	return nil
}
