package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// linear is ridge-regularized least squares solved in closed form.
type linear struct {
	params       Params
	alpha        float64
	fitIntercept bool

	fitted    bool
	coef      []float64
	intercept float64
}

type linearState struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func newLinear(p Params, _ int64) (Estimator, error) {
	if err := p.only("linear", "alpha", "fit_intercept"); err != nil {
		return nil, err
	}
	alpha, err := p.getFloat("alpha", 1.0)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		return nil, fmt.Errorf("%w: alpha=%v must be >= 0", ErrParam, alpha)
	}
	intercept, err := p.getBool("fit_intercept", true)
	if err != nil {
		return nil, err
	}
	return &linear{params: p.clone(), alpha: alpha, fitIntercept: intercept}, nil
}

func (m *linear) Kind() string   { return "linear" }
func (m *linear) Params() Params { return m.params.clone() }

func (m *linear) Fit(ctx context.Context, X [][]float64, y []float64) error {
	p, err := checkShape(X, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n := len(X)

	xMean := make([]float64, p)
	yMean := 0.0
	if m.fitIntercept {
		col := make([]float64, n)
		for j := 0; j < p; j++ {
			for i := range X {
				col[i] = X[i][j]
			}
			xMean[j] = stat.Mean(col, nil)
		}
		yMean = stat.Mean(y, nil)
	}

	m.coef = make([]float64, p)
	m.intercept = yMean
	if p > 0 {
		a := mat.NewDense(n, p, nil)
		for i, row := range X {
			for j, v := range row {
				a.Set(i, j, v-xMean[j])
			}
		}
		b := mat.NewVecDense(n, nil)
		for i, v := range y {
			b.SetVec(i, v-yMean)
		}

		var gram mat.Dense
		gram.Mul(a.T(), a)
		for j := 0; j < p; j++ {
			gram.Set(j, j, gram.At(j, j)+m.alpha)
		}
		var rhs mat.VecDense
		rhs.MulVec(a.T(), b)

		var w mat.VecDense
		if err := w.SolveVec(&gram, &rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) || math.IsNaN(float64(cond)) {
				return fmt.Errorf("%w: %v", ErrSingular, err)
			}
		}
		for j := 0; j < p; j++ {
			c := w.AtVec(j)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: coefficient %d is not finite", ErrSingular, j)
			}
			m.coef[j] = c
			m.intercept -= c * xMean[j]
		}
	}
	m.fitted = true
	return nil
}

func (m *linear) Predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		s := m.intercept
		for j, v := range row {
			s += m.coef[j] * v
		}
		out[i] = s
	}
	return out, nil
}

func (m *linear) state() any {
	if !m.fitted {
		return nil
	}
	return linearState{Coef: m.coef, Intercept: m.intercept}
}

func (m *linear) restore(raw json.RawMessage) error {
	var s linearState
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	m.coef = s.Coef
	if m.coef == nil {
		m.coef = []float64{}
	}
	m.intercept = s.Intercept
	m.fitted = true
	return nil
}
