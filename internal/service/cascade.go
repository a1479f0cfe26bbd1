package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/domain"
)

// CascadeService runs the three-stage cascade: clinical screening, genetic
// stratification, biomarker confirmation. Stages execute in strict order
// because each later model was trained on the preceding stage's output
// probability as an input feature.
type CascadeService struct {
	log        *logrus.Logger
	models     domain.ModelSet
	thresholds domain.RiskThresholds
}

// NewCascadeService creates a new cascade service. The clinical model is
// mandatory; genetic and biomarker models back optional stages but the
// service still requires all three at construction so a deployment gap is
// caught at startup, not per-request.
func NewCascadeService(logger *logrus.Logger, models domain.ModelSet, thresholds domain.RiskThresholds) (*CascadeService, error) {
	if models.Clinical == nil || models.Genetic == nil || models.Biomarker == nil {
		return nil, fmt.Errorf("cascade service requires all three stage models")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &CascadeService{
		log:        logger,
		models:     models,
		thresholds: thresholds,
	}, nil
}

// Thresholds returns the risk cut-point table in effect.
func (s *CascadeService) Thresholds() domain.RiskThresholds {
	return s.thresholds
}

// Predict runs the full cascade for one patient record.
//
// Stage 1 is mandatory: a missing clinical field aborts with
// InsufficientInputError. Stages 2 and 3 are skipped when their inputs are
// absent, and the running probability propagates forward unchanged, so a
// patient without biomarker results still receives a clinical+genetic
// estimate. Unrecognized categorical values and model failures are fatal.
func (s *CascadeService) Predict(ctx context.Context, record *domain.PatientRecord) (*domain.PredictionResult, error) {
	if record == nil {
		return nil, domain.NewValidationError("record", "patient record is required", nil)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	// Stage 1: clinical screening.
	clinicalFeatures, err := ClinicalFeatures(record)
	if err != nil {
		var missing *domain.MissingFeatureError
		if errors.As(err, &missing) {
			return nil, &domain.InsufficientInputError{Field: missing.Field}
		}
		return nil, err
	}
	running, err := s.queryStage(ctx, s.models.Clinical, clinicalFeatures)
	if err != nil {
		return nil, err
	}
	outcomes := []domain.StageOutcome{{
		Stage:  domain.StageClinical,
		Result: s.stageResult(domain.StageClinical, running, clinicalFeatures),
	}}

	// Stage 2: genetic stratification.
	geneticFeatures, err := GeneticFeatures(running, record)
	switch {
	case err == nil:
		prob, qerr := s.queryStage(ctx, s.models.Genetic, geneticFeatures)
		if qerr != nil {
			return nil, qerr
		}
		outcomes = append(outcomes, domain.StageOutcome{
			Stage:  domain.StageGenetic,
			Result: s.stageResult(domain.StageGenetic, prob, geneticFeatures),
		})
		running = prob
	case isMissingFeature(err):
		outcomes = append(outcomes, skippedStage(domain.StageGenetic, err))
	default:
		return nil, err
	}

	// Stage 3: biomarker confirmation, threading the running probability
	// from whichever stage executed last.
	biomarkerFeatures, err := BiomarkerFeatures(running, record)
	switch {
	case err == nil:
		prob, qerr := s.queryStage(ctx, s.models.Biomarker, biomarkerFeatures)
		if qerr != nil {
			return nil, qerr
		}
		outcomes = append(outcomes, domain.StageOutcome{
			Stage:  domain.StageBiomarker,
			Result: s.stageResult(domain.StageBiomarker, prob, biomarkerFeatures),
		})
		running = prob
	case isMissingFeature(err):
		outcomes = append(outcomes, skippedStage(domain.StageBiomarker, err))
	default:
		return nil, err
	}

	result := &domain.PredictionResult{
		FinalRiskScore:    running,
		FinalRiskCategory: s.thresholds.Categorize(running),
		Stages:            outcomes,
		TopFactors:        TopFactors(outcomes),
	}

	s.log.WithFields(logrus.Fields{
		"final_risk_score":    result.FinalRiskScore,
		"final_risk_category": result.FinalRiskCategory,
		"stages_executed":     executedCount(outcomes),
	}).Info("Cascade prediction completed")

	return result, nil
}

// queryStage queries one stage model and enforces the probability contract.
func (s *CascadeService) queryStage(ctx context.Context, model domain.StageModel, features []domain.FeatureValue) (float64, error) {
	prob, err := model.Predict(ctx, featureVector(features))
	if err != nil {
		return 0, &domain.ModelQueryError{Stage: model.Stage(), Err: err}
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return 0, &domain.ModelQueryError{
			Stage: model.Stage(),
			Err:   fmt.Errorf("probability %v outside [0,1]", prob),
		}
	}
	return prob, nil
}

func (s *CascadeService) stageResult(stage domain.Stage, prob float64, features []domain.FeatureValue) *domain.StageResult {
	return &domain.StageResult{
		Stage:       stage,
		Probability: prob,
		Category:    s.thresholds.Categorize(prob),
		Features:    features,
	}
}

func skippedStage(stage domain.Stage, err error) domain.StageOutcome {
	var missing *domain.MissingFeatureError
	errors.As(err, &missing)
	return domain.StageOutcome{
		Stage:        stage,
		Skipped:      true,
		MissingField: missing.Field,
	}
}

func isMissingFeature(err error) bool {
	var missing *domain.MissingFeatureError
	return errors.As(err, &missing)
}

func executedCount(outcomes []domain.StageOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Skipped {
			n++
		}
	}
	return n
}
