// Package estimator defines the plug-in predictor families behind a common
// fit/predict interface.
package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Estimator is a regression predictor over dense feature rows.
type Estimator interface {
	Kind() string
	Params() Params
	Fit(ctx context.Context, X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// stateful estimators can persist and restore their fitted state.
type stateful interface {
	state() any
	restore(raw json.RawMessage) error
}

type factory func(p Params, seed int64) (Estimator, error)

var kinds = map[string]factory{
	"linear": newLinear,
	"knn":    newKNN,
	"tree":   newTree,
	"mean":   newMean,
}

// Kinds returns the registered estimator kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds an unfitted estimator. Unknown hyperparameter names are rejected.
func New(kind string, params Params, seed int64) (Estimator, error) {
	f, ok := kinds[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownKind, kind, strings.Join(Kinds(), ", "))
	}
	return f(params, seed)
}

type envelope struct {
	Kind   string          `json:"kind"`
	Seed   int64           `json:"seed"`
	Params Params          `json:"params"`
	State  json.RawMessage `json:"state"`
}

type seeded interface{ seed() int64 }

// Marshal encodes a fitted estimator together with its hyperparameters.
func Marshal(e Estimator) ([]byte, error) {
	s, ok := e.(stateful)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot be serialized", ErrFormat, e)
	}
	state, err := json.Marshal(s.state())
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", e.Kind(), err)
	}
	if string(state) == "null" {
		return nil, ErrNotFitted
	}
	env := envelope{Kind: e.Kind(), Params: e.Params(), State: state}
	if sd, ok := e.(seeded); ok {
		env.Seed = sd.seed()
	}
	return json.Marshal(env)
}

// Unmarshal restores an estimator written by Marshal.
func Unmarshal(b []byte) (Estimator, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	e, err := New(env.Kind, env.Params, env.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if len(env.State) == 0 || string(env.State) == "null" {
		return nil, fmt.Errorf("%w: %s estimator has no fitted state", ErrFormat, env.Kind)
	}
	if err := e.(stateful).restore(env.State); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return e, nil
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrShape)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	p := len(X[0])
	for i, row := range X {
		if len(row) != p {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), p)
		}
	}
	return p, nil
}

func checkWidth(X [][]float64, p int) error {
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("%w: row %d has %d features, model expects %d", ErrShape, i, len(row), p)
		}
	}
	return nil
}
