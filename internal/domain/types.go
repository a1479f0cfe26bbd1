// Package domain contains the core business entities and types for the MirAI
// three-stage cascade screening pipeline (clinical -> genetic -> biomarker).
//
// Each stage is backed by an independently trained classifier whose input
// feature vector includes the preceding stage's output probability, so the
// stages form a strict sequential cascade and can never be reordered.
package domain

import (
	"errors"
	"fmt"
)

// Stage identifies one of the three cascade stages.
type Stage string

const (
	StageClinical  Stage = "clinical"
	StageGenetic   Stage = "genetic"
	StageBiomarker Stage = "biomarker"
)

// IsValid validates the stage identifier.
func (s Stage) IsValid() bool {
	switch s {
	case StageClinical, StageGenetic, StageBiomarker:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// RiskCategory is the discrete label derived from a risk probability.
// Categories partition [0,1]: every probability maps to exactly one label.
type RiskCategory string

const (
	RiskLow      RiskCategory = "Low"
	RiskModerate RiskCategory = "Moderate"
	RiskElevated RiskCategory = "Elevated"
	RiskHigh     RiskCategory = "High"
)

// IsValid validates the risk category label.
func (rc RiskCategory) IsValid() bool {
	switch rc {
	case RiskLow, RiskModerate, RiskElevated, RiskHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk category.
func (rc RiskCategory) String() string {
	return string(rc)
}

// LogFields returns structured logging fields for audit trails.
func (rc RiskCategory) LogFields() map[string]any {
	return map[string]any{
		"risk_category":   string(rc),
		"is_valid":        rc.IsValid(),
		"requires_workup": rc.RequiresClinicalWorkup(),
	}
}

// RequiresClinicalWorkup reports whether the category warrants diagnostic
// follow-up under the screening protocol.
func (rc RiskCategory) RequiresClinicalWorkup() bool {
	switch rc {
	case RiskElevated, RiskHigh:
		return true
	default:
		return false
	}
}

// ErrInvalidThresholds indicates a risk threshold table that does not form a
// strictly increasing partition of (0,1).
var ErrInvalidThresholds = errors.New("risk thresholds must satisfy 0 < moderate < elevated < high < 1")

// ErrNotFound indicates a missing persistence record.
var ErrNotFound = errors.New("not found")

// RiskThresholds is the ordered cut-point table mapping a probability to a
// RiskCategory. The cut-points come from the trained calibration and are
// carried as configuration, never as literals scattered through logic.
type RiskThresholds struct {
	Moderate float64 `json:"moderate" mapstructure:"moderate"`
	Elevated float64 `json:"elevated" mapstructure:"elevated"`
	High     float64 `json:"high" mapstructure:"high"`
}

// DefaultRiskThresholds returns the calibration shipped with the trained
// models: p < 0.30 Low, < 0.60 Moderate, < 0.80 Elevated, >= 0.80 High.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Moderate: 0.30, Elevated: 0.60, High: 0.80}
}

// Validate ensures the cut-points form a strictly increasing partition.
func (rt RiskThresholds) Validate() error {
	if !(rt.Moderate > 0 && rt.Moderate < rt.Elevated && rt.Elevated < rt.High && rt.High < 1) {
		return fmt.Errorf("%w: got %v/%v/%v", ErrInvalidThresholds, rt.Moderate, rt.Elevated, rt.High)
	}
	return nil
}

// Categorize maps a probability to its risk category. Boundary values resolve
// upward: p equal to a cut-point belongs to the higher category.
func (rt RiskThresholds) Categorize(p float64) RiskCategory {
	switch {
	case p >= rt.High:
		return RiskHigh
	case p >= rt.Elevated:
		return RiskElevated
	case p >= rt.Moderate:
		return RiskModerate
	default:
		return RiskLow
	}
}
