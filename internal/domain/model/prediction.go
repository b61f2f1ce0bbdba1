package model

// Prediction is the output for one inference row.
type Prediction struct {
	Value   float64 `json:"prediction"`
	Version string  `json:"model_version"`
}
