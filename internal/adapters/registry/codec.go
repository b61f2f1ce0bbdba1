package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/autotrain/internal/domain/estimator"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/transform"
)

// modelDoc is the on-disk form of models/<version>/model.json.
type modelDoc struct {
	Kind           string           `json:"kind"`
	Params         estimator.Params `json:"params"`
	Seed           int64            `json:"seed"`
	Metric         string           `json:"metric"`
	TrainingMetric float64          `json:"training_metric"`
	FeatureNames   []string         `json:"feature_names"`
	TrainedAt      time.Time        `json:"trained_at"`
	Estimator      json.RawMessage  `json:"estimator"`
}

// manifest is written last among the version files and names its parts.
type manifest struct {
	Entry        model.RegistryEntry     `json:"entry"`
	FeatureNames []string                `json:"feature_names"`
	Files        map[string]string       `json:"files"`
	Verdict      model.EvaluationVerdict `json:"verdict"`
}

func encodeModel(a model.ModelArtifact) ([]byte, error) {
	est, err := estimator.Marshal(a.Estimator)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(modelDoc{
		Kind:           a.Kind,
		Params:         a.Params,
		Seed:           a.Seed,
		Metric:         a.Metric,
		TrainingMetric: a.TrainingMetric,
		FeatureNames:   a.FeatureNames,
		TrainedAt:      a.TrainedAt,
		Estimator:      est,
	}, "", "  ")
}

func decodeModel(b []byte) (model.ModelArtifact, error) {
	var doc modelDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: model: %w", ErrCorruptBundle, err)
	}
	est, err := estimator.Unmarshal(doc.Estimator)
	if err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: model: %w", ErrCorruptBundle, err)
	}
	return model.ModelArtifact{
		Estimator:      est,
		Kind:           doc.Kind,
		Params:         doc.Params,
		Seed:           doc.Seed,
		Metric:         doc.Metric,
		TrainingMetric: doc.TrainingMetric,
		FeatureNames:   doc.FeatureNames,
		TrainedAt:      doc.TrainedAt,
	}, nil
}

func decodeTransformer(b []byte) (model.TransformerArtifact, error) {
	t, err := transform.Unmarshal(b)
	if err != nil {
		return model.TransformerArtifact{}, fmt.Errorf("%w: transformer: %w", ErrCorruptBundle, err)
	}
	return model.NewTransformerArtifact(t), nil
}
