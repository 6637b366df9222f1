package domain

// Score is the raw output of the inference engine for one transaction.
type Score struct {
	Probability  float64 `json:"probability"`
	ModelVersion string  `json:"model_version"`
}

// PredictionResult is a score classified against the flagging threshold.
type PredictionResult struct {
	Probability  float64 `json:"probability"`
	IsFraud      bool    `json:"is_fraud"`
	ModelVersion string  `json:"model_version"`
}

// Classify flags a score when its probability meets or exceeds threshold.
func Classify(s Score, threshold float64) PredictionResult {
	return PredictionResult{
		Probability:  s.Probability,
		IsFraud:      s.Probability >= threshold,
		ModelVersion: s.ModelVersion,
	}
}
