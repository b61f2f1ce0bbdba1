package estimator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Params maps hyperparameter names to values as decoded from configuration.
type Params map[string]any

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// only rejects names outside allowed.
func (p Params) only(kind string, allowed ...string) error {
	ok := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		ok[a] = struct{}{}
	}
	var unknown []string
	for k := range p {
		if _, found := ok[k]; !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s does not accept %s", ErrParam, kind, strings.Join(unknown, ", "))
	}
	return nil
}

func (p Params) getFloat(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, fmt.Errorf("%w: %s=%v", ErrParam, name, v)
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, fmt.Errorf("%w: %s=%q is not a number", ErrParam, name, x)
		}
	default:
		return 0, fmt.Errorf("%w: %s=%v is not a number", ErrParam, name, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%v", ErrParam, name, v)
	}
	return f, nil
}

func (p Params) getInt(name string, def int) (int, error) {
	f, err := p.getFloat(name, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrParam, name, f)
	}
	return int(f), nil
}

func (p Params) getBool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrParam, name, x)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s=%v is not a boolean", ErrParam, name, v)
	}
}

func (p Params) getString(name, def string, allowed ...string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", fmt.Errorf("%w: %s=%v is not a string", ErrParam, name, v)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s=%q (allowed: %s)", ErrParam, name, s, strings.Join(allowed, ", "))
}
