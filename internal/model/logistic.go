// Package model provides the stage model implementations behind the cascade:
// local logistic regressions loaded from exported training artifacts, and a
// resilient HTTP client for deployments that score against a remote service.
package model

import (
	"context"
	"fmt"
	"math"

	"github.com/mirai-cascade-server/internal/domain"
)

// LogisticModel scores a standardized logistic regression exported from the
// training pipeline. Inputs are standardized with the scaler fitted at
// training time before the linear term is applied.
type LogisticModel struct {
	stage        domain.Stage
	features     []string
	mean         []float64
	scale        []float64
	coefficients []float64
	intercept    float64
}

// NewLogisticModel validates the artifact dimensions and returns a scorer.
func NewLogisticModel(stage domain.Stage, features []string, mean, scale, coefficients []float64, intercept float64) (*LogisticModel, error) {
	if !stage.IsValid() {
		return nil, fmt.Errorf("invalid stage %q", stage)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("stage %s: artifact has no features", stage)
	}
	if len(mean) != len(features) || len(scale) != len(features) || len(coefficients) != len(features) {
		return nil, fmt.Errorf("stage %s: dimension mismatch: %d features, %d means, %d scales, %d coefficients",
			stage, len(features), len(mean), len(scale), len(coefficients))
	}
	for i, s := range scale {
		if s == 0 {
			return nil, fmt.Errorf("stage %s: zero scale for feature %s", stage, features[i])
		}
	}
	return &LogisticModel{
		stage:        stage,
		features:     features,
		mean:         mean,
		scale:        scale,
		coefficients: coefficients,
		intercept:    intercept,
	}, nil
}

// Stage returns the cascade stage this model serves.
func (m *LogisticModel) Stage() domain.Stage { return m.stage }

// FeatureNames returns the feature order the model was trained with.
func (m *LogisticModel) FeatureNames() []string {
	names := make([]string, len(m.features))
	copy(names, m.features)
	return names
}

// Predict returns the positive-class probability for one feature vector.
// The vector must follow FeatureNames order.
func (m *LogisticModel) Predict(_ context.Context, features []float64) (float64, error) {
	if len(features) != len(m.features) {
		return 0, fmt.Errorf("stage %s: expected %d features, got %d", m.stage, len(m.features), len(features))
	}
	z := m.intercept
	for i, x := range features {
		z += m.coefficients[i] * (x - m.mean[i]) / m.scale[i]
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
