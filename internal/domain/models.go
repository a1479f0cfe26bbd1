package domain

import (
	"time"

	"github.com/google/uuid"
)

// PatientRecord is the raw, immutable input to one prediction request.
// Optional fields are pointers; a nil later-stage field means that stage is
// skipped rather than failing the request.
type PatientRecord struct {
	// Stage 1 (clinical) - all required.
	Age       *int     `json:"age"`
	Gender    *string  `json:"gender"`
	Education *int     `json:"education"`
	FAQ       *int     `json:"faq"`
	EcogMem   *float64 `json:"ecogMem"`
	EcogTotal *float64 `json:"ecogTotal"`

	// Stage 2 (genetic) - optional. APOE genotype as an allele pair, e.g. "3/4".
	Genotype *string `json:"genotype"`

	// Stage 3 (biomarker) - optional, all four needed for the stage to run.
	PTau217 *float64 `json:"ptau217"`
	AB42    *float64 `json:"ab42"`
	AB40    *float64 `json:"ab40"`
	NfL     *float64 `json:"nfl"`
}

// Validate checks supplied values against their documented ranges. It does
// not enforce presence; presence per stage is the orchestrator's concern.
func (r *PatientRecord) Validate() error {
	if r.Age != nil && *r.Age <= 0 {
		return NewValidationError("age", "must be a positive integer", *r.Age)
	}
	if r.Education != nil && *r.Education < 0 {
		return NewValidationError("education", "must be a non-negative integer", *r.Education)
	}
	if r.FAQ != nil && (*r.FAQ < 0 || *r.FAQ > 30) {
		return NewValidationError("faq", "must be in the 0-30 ordinal range", *r.FAQ)
	}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"ptau217", r.PTau217},
		{"ab42", r.AB42},
		{"ab40", r.AB40},
		{"nfl", r.NfL},
	} {
		if f.value != nil && *f.value < 0 {
			return NewValidationError(f.name, "concentration must be non-negative", *f.value)
		}
	}
	return nil
}

// FeatureValue is one named entry of a stage's ordered feature vector.
// Names match the training artifacts exactly.
type FeatureValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// StageResult is the immutable outcome of one executed stage.
type StageResult struct {
	Stage       Stage          `json:"stage"`
	Probability float64        `json:"probability"`
	Category    RiskCategory   `json:"risk_category"`
	Features    []FeatureValue `json:"features"`
}

// StageOutcome wraps a StageResult with skip bookkeeping. A skipped optional
// stage carries the field whose absence triggered the skip.
type StageOutcome struct {
	Stage        Stage        `json:"stage"`
	Skipped      bool         `json:"skipped"`
	MissingField string       `json:"missing_field,omitempty"`
	Result       *StageResult `json:"result,omitempty"`
}

// PredictionResult is the terminal artifact of one cascade run. It is fully
// determined by the input record and the model parameters: identical inputs
// always produce a byte-identical result.
type PredictionResult struct {
	FinalRiskScore    float64        `json:"final_risk_score"`
	FinalRiskCategory RiskCategory   `json:"final_risk_category"`
	Stages            []StageOutcome `json:"stages"`
	TopFactors        []string       `json:"top_factors"`
}

// PredictionRecord is the persisted form of a prediction: the deterministic
// result plus request-scoped identity and timing.
type PredictionRecord struct {
	ID        uuid.UUID        `json:"id"`
	Input     PatientRecord    `json:"input"`
	Result    PredictionResult `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}
