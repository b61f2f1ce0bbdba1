package transform

import (
	"encoding/json"
	"fmt"
)

type document struct {
	FormatVersion int      `json:"format_version"`
	Target        string   `json:"target"`
	Steps         []step   `json:"steps"`
	FeatureNames  []string `json:"feature_names"`
}

// MarshalJSON encodes the fitted state.
func (t *Transformer) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		FormatVersion: FormatVersion,
		Target:        t.target,
		Steps:         t.steps,
		FeatureNames:  t.names,
	})
}

// UnmarshalJSON restores a transformer written by MarshalJSON.
func (t *Transformer) UnmarshalJSON(b []byte) error {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if doc.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrFormat, doc.FormatVersion)
	}
	if doc.Target == "" {
		return fmt.Errorf("%w: missing target", ErrFormat)
	}
	for _, s := range doc.Steps {
		switch s.Kind {
		case KindNumeric:
			if s.Std == 0 {
				return fmt.Errorf("%w: column %q has zero scale", ErrFormat, s.Column)
			}
		case KindCategorical:
		default:
			return fmt.Errorf("%w: column %q has unknown kind %q", ErrFormat, s.Column, s.Kind)
		}
	}
	names := featureNames(doc.Steps)
	if len(names) != len(doc.FeatureNames) {
		return fmt.Errorf("%w: %d feature names recorded, steps produce %d", ErrFormat, len(doc.FeatureNames), len(names))
	}
	for i := range names {
		if names[i] != doc.FeatureNames[i] {
			return fmt.Errorf("%w: feature %d is %q, steps produce %q", ErrFormat, i, doc.FeatureNames[i], names[i])
		}
	}

	t.target = doc.Target
	t.steps = doc.Steps
	t.names = names
	return nil
}

// Unmarshal decodes a serialized transformer.
func Unmarshal(b []byte) (*Transformer, error) {
	t := &Transformer{}
	if err := t.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return t, nil
}
