// Package transform fits and applies the deterministic feature engineering
// that turns a validated table into a numeric design matrix.
package transform

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/schema"
)

// FormatVersion is the serialization version written by Marshal.
const FormatVersion = 1

// Feature kinds.
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
)

// Matrix is a transformed dataset. Y is nil when the input had no target.
type Matrix struct {
	FeatureNames []string
	X            [][]float64
	Y            []float64
	// DroppedRows counts rows removed because their target was null.
	DroppedRows int
}

// Rows returns the number of samples.
func (m Matrix) Rows() int { return len(m.X) }

// step is the fitted state for one input column.
type step struct {
	Column     string   `json:"column"`
	Kind       string   `json:"kind"`
	Nullable   bool     `json:"nullable"`
	Median     float64  `json:"median,omitempty"`
	Mean       float64  `json:"mean,omitempty"`
	Std        float64  `json:"std,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

func (s step) width() int {
	if s.Kind == KindCategorical {
		return len(s.Categories)
	}
	return 1
}

// Transformer is fitted preprocessing state. It is immutable once fitted and
// safe for concurrent use.
type Transformer struct {
	target string
	steps  []step
	names  []string
}

// FitTransform fits a transformer on train only and returns it with the
// transformed training matrix. Columns on the drop list, the target and
// columns not declared in the contract are excluded from the features. Rows
// whose target is null are removed before fitting.
func FitTransform(train *dataset.Table, c *schema.Contract) (*Transformer, Matrix, error) {
	if train == nil {
		return nil, Matrix{}, ErrEmpty
	}
	keep := keptRows(train, c.Target())
	if len(keep) == 0 {
		return nil, Matrix{}, fmt.Errorf("%w: all %d rows have a null target", ErrEmpty, train.Len())
	}

	t := &Transformer{target: c.Target()}
	for _, col := range c.Features() {
		data, ok := train.Column(col.Name)
		if !ok {
			return nil, Matrix{}, fmt.Errorf("%w: %q", ErrMissingColumn, col.Name)
		}
		s, err := fit(col, data, keep)
		if err != nil {
			return nil, Matrix{}, err
		}
		t.steps = append(t.steps, s)
	}
	t.names = featureNames(t.steps)

	m, err := t.Transform(train)
	if err != nil {
		return nil, Matrix{}, err
	}
	return t, m, nil
}

func fit(col schema.Column, data dataset.Column, keep []int) (step, error) {
	s := step{Column: col.Name, Nullable: col.Nullable}
	if !col.Type.Numeric() {
		s.Kind = KindCategorical
		seen := map[string]struct{}{}
		for _, i := range keep {
			v := data.Value(i)
			if v == nil {
				continue
			}
			key := dataset.FormatCell(v)
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				s.Categories = append(s.Categories, key)
			}
		}
		sort.Strings(s.Categories)
		return s, nil
	}

	s.Kind = KindNumeric
	present := make([]float64, 0, len(keep))
	for _, i := range keep {
		v := data.Value(i)
		if v == nil {
			continue
		}
		f, err := numeric(v)
		if err != nil {
			return step{}, fmt.Errorf("column %q row %d: %w", col.Name, i, err)
		}
		present = append(present, f)
	}
	if len(present) > 0 {
		med, err := stats.Median(present)
		if err != nil {
			return step{}, fmt.Errorf("column %q: median: %w", col.Name, err)
		}
		s.Median = med
	}

	imputed := make([]float64, len(keep))
	for k, i := range keep {
		imputed[k] = s.Median
		if v := data.Value(i); v != nil {
			imputed[k], _ = numeric(v)
		}
	}
	s.Mean, s.Std = stat.PopMeanStdDev(imputed, nil)
	if s.Std == 0 || math.IsNaN(s.Std) {
		s.Std = 1
	}
	return s, nil
}

func featureNames(steps []step) []string {
	var names []string
	for _, s := range steps {
		if s.Kind == KindCategorical {
			for _, cat := range s.Categories {
				names = append(names, s.Column+"="+cat)
			}
			continue
		}
		names = append(names, s.Column)
	}
	return names
}

func keptRows(t *dataset.Table, target string) []int {
	col, ok := t.Column(target)
	keep := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if ok && col.Value(i) == nil {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

// Target returns the target column the transformer was fitted for.
func (t *Transformer) Target() string { return t.target }

// FeatureNames returns the ordered output feature names.
func (t *Transformer) FeatureNames() []string {
	return append([]string(nil), t.names...)
}

// InputColumns returns the raw columns required at inference time.
func (t *Transformer) InputColumns() []string {
	out := make([]string, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.Column
	}
	return out
}

// Transform applies the fitted state to a table. The same transformer and
// table always yield identical output.
func (t *Transformer) Transform(tbl *dataset.Table) (Matrix, error) {
	m := Matrix{FeatureNames: t.FeatureNames()}
	if tbl == nil {
		return m, ErrEmpty
	}
	cols := make([]dataset.Column, len(t.steps))
	for j, s := range t.steps {
		col, ok := tbl.Column(s.Column)
		if !ok {
			return Matrix{}, fmt.Errorf("%w: %q", ErrMissingColumn, s.Column)
		}
		cols[j] = col
	}

	target, hasTarget := tbl.Column(t.target)
	keep := keptRows(tbl, t.target)
	m.DroppedRows = tbl.Len() - len(keep)
	m.X = make([][]float64, 0, len(keep))
	if hasTarget {
		m.Y = make([]float64, 0, len(keep))
	}

	for _, i := range keep {
		row := make([]float64, 0, len(t.names))
		for j, s := range t.steps {
			var err error
			row, err = s.encode(row, cols[j].Value(i))
			if err != nil {
				return Matrix{}, fmt.Errorf("row %d: %w", i, err)
			}
		}
		m.X = append(m.X, row)
		if hasTarget {
			y, ok := target.Float(i)
			if !ok {
				return Matrix{}, fmt.Errorf("%w: target %q row %d is not numeric", ErrBadValue, t.target, i)
			}
			m.Y = append(m.Y, y)
		}
	}
	return m, nil
}

// TransformRow encodes one inference row. Every input column must be
// present; null is accepted only for nullable columns. Errors wrap
// failure.ErrMalformedInput.
func (t *Transformer) TransformRow(row dataset.Record) ([]float64, error) {
	out := make([]float64, 0, len(t.names))
	for _, s := range t.steps {
		raw, ok := row[s.Column]
		if !ok {
			return nil, fmt.Errorf("%w: %w: %q", failure.ErrMalformedInput, ErrMissingColumn, s.Column)
		}
		v := dataset.Normalize(raw)
		if v == nil && !s.Nullable {
			return nil, fmt.Errorf("%w: %w: %q must not be null", failure.ErrMalformedInput, ErrBadValue, s.Column)
		}
		var err error
		if out, err = s.encode(out, v); err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrMalformedInput, err)
		}
	}
	return out, nil
}

func (s step) encode(dst []float64, v any) ([]float64, error) {
	if s.Kind == KindCategorical {
		key := ""
		if v != nil {
			key = dataset.FormatCell(v)
		}
		for _, cat := range s.Categories {
			if v != nil && cat == key {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}
		return dst, nil
	}

	f := s.Median
	if v != nil {
		var err error
		if f, err = numeric(v); err != nil {
			return nil, fmt.Errorf("column %q: %w", s.Column, err)
		}
	}
	return append(dst, (f-s.Mean)/s.Std), nil
}

func numeric(v any) (float64, error) {
	if f, ok := dataset.AsFloat(v); ok {
		return f, nil
	}
	if str, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrBadValue, v)
}
