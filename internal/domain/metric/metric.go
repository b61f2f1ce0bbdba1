// Package metric implements the scoring functions used to compare models.
package metric

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Metric scores predictions against targets.
type Metric struct {
	Name string
	// GreaterIsBetter is false for error metrics.
	GreaterIsBetter bool
	fn              func(yTrue, yPred []float64) float64
}

var registry = map[string]Metric{
	"r2":       {Name: "r2", GreaterIsBetter: true, fn: r2},
	"rmse":     {Name: "rmse", fn: rmse},
	"mae":      {Name: "mae", fn: mae},
	"mse":      {Name: "mse", fn: mse},
	"accuracy": {Name: "accuracy", GreaterIsBetter: true, fn: accuracy},
	"f1":       {Name: "f1", GreaterIsBetter: true, fn: f1},
}

// Lookup returns the metric registered under name (case-insensitive).
func Lookup(name string) (Metric, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknown, name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names returns the registered metric names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Score computes the metric.
func (m Metric) Score(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d targets, %d predictions", ErrLength, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, ErrEmpty
	}
	return m.fn(yTrue, yPred), nil
}

// Improvement returns how much better next is than current in the metric's
// direction. Positive means next is better.
func (m Metric) Improvement(next, current float64) float64 {
	if m.GreaterIsBetter {
		return next - current
	}
	return current - next
}

func r2(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)
	var ssRes, ssTot float64
	for i := range yTrue {
		ssRes += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		ssTot += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func mse(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

func rmse(yTrue, yPred []float64) float64 {
	return math.Sqrt(mse(yTrue, yPred))
}

func mae(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		s += math.Abs(yTrue[i] - yPred[i])
	}
	return s / float64(len(yTrue))
}

// accuracy compares rounded class labels.
func accuracy(yTrue, yPred []float64) float64 {
	hits := 0
	for i := range yTrue {
		if math.Round(yTrue[i]) == math.Round(yPred[i]) {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// f1 is the binary F1 score with 1 as the positive class. Predictions are
// thresholded at 0.5.
func f1(yTrue, yPred []float64) float64 {
	var tp, fp, fn float64
	for i := range yTrue {
		actual := yTrue[i] >= 0.5
		predicted := yPred[i] >= 0.5
		switch {
		case actual && predicted:
			tp++
		case !actual && predicted:
			fp++
		case actual && !predicted:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	return 2 * tp / (2*tp + fp + fn)
}
