// Package service implements the cascade inference engine: per-stage feature
// derivation, sequential stage orchestration, and risk categorization with
// explanatory factor ranking.
package service

import (
	"github.com/mirai-cascade-server/internal/domain"
)

// Feature names exactly as they appear in the training artifacts. The order
// of each stage's vector is fixed by the corresponding derivation function
// and must match the order the pipeline was fitted with.
const (
	FeatAge        = "AGE"
	FeatGender     = "PTGENDER"
	FeatEducation  = "PTEDUCAT"
	FeatFAQ        = "FAQ"
	FeatEcogMem    = "EcogPtMem"
	FeatEcogTotal  = "EcogPtTotal"
	FeatStage1Prob = "Stage1_Prob"
	FeatAPOE4      = "APOE4"
	FeatStage2Prob = "Stage2_Prob"
	FeatPTau       = "PTAU"
	FeatAB42       = "ABETA42"
	FeatAB40       = "ABETA40"
	FeatNfL        = "NFL"
)

// ClinicalFeatures derives the stage-1 feature vector. Pure: it reads only
// its argument. Every clinical field is required; the first absent one is
// reported as a MissingFeatureError, which the orchestrator escalates because
// stage 1 is mandatory. An unrecognized gender is an UnknownCategoryError.
func ClinicalFeatures(record *domain.PatientRecord) ([]domain.FeatureValue, error) {
	if record.Age == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "age"}
	}
	if record.Gender == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "gender"}
	}
	if record.Education == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "education"}
	}
	if record.FAQ == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "faq"}
	}
	if record.EcogMem == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "ecogMem"}
	}
	if record.EcogTotal == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageClinical, Field: "ecogTotal"}
	}

	genderCode, err := domain.EncodeGender(*record.Gender)
	if err != nil {
		return nil, err
	}

	return []domain.FeatureValue{
		{Name: FeatAge, Value: float64(*record.Age)},
		{Name: FeatGender, Value: genderCode},
		{Name: FeatEducation, Value: float64(*record.Education)},
		{Name: FeatFAQ, Value: float64(*record.FAQ)},
		{Name: FeatEcogMem, Value: *record.EcogMem},
		{Name: FeatEcogTotal, Value: *record.EcogTotal},
	}, nil
}

// GeneticFeatures derives the stage-2 feature vector from the stage-1
// probability and the APOE genotype. A nil genotype yields a
// MissingFeatureError (stage skip); a malformed genotype yields an
// UnknownCategoryError (fatal).
func GeneticFeatures(stage1Prob float64, record *domain.PatientRecord) ([]domain.FeatureValue, error) {
	if record.Genotype == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageGenetic, Field: "genotype"}
	}

	apoe4, err := domain.ParseAPOE4Count(*record.Genotype)
	if err != nil {
		return nil, err
	}

	return []domain.FeatureValue{
		{Name: FeatStage1Prob, Value: stage1Prob},
		{Name: FeatAPOE4, Value: float64(apoe4)},
	}, nil
}

// BiomarkerFeatures derives the stage-3 feature vector from the running
// cascade probability and the blood biomarker panel. The panel is all or
// nothing: the first absent analyte yields a MissingFeatureError.
func BiomarkerFeatures(runningProb float64, record *domain.PatientRecord) ([]domain.FeatureValue, error) {
	if record.PTau217 == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageBiomarker, Field: "ptau217"}
	}
	if record.AB42 == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageBiomarker, Field: "ab42"}
	}
	if record.AB40 == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageBiomarker, Field: "ab40"}
	}
	if record.NfL == nil {
		return nil, &domain.MissingFeatureError{Stage: domain.StageBiomarker, Field: "nfl"}
	}

	return []domain.FeatureValue{
		{Name: FeatStage2Prob, Value: runningProb},
		{Name: FeatPTau, Value: *record.PTau217},
		{Name: FeatAB42, Value: *record.AB42},
		{Name: FeatAB40, Value: *record.AB40},
		{Name: FeatNfL, Value: *record.NfL},
	}, nil
}

// featureVector flattens named features into the ordered value slice a
// StageModel consumes.
func featureVector(features []domain.FeatureValue) []float64 {
	vec := make([]float64, len(features))
	for i, f := range features {
		vec[i] = f.Value
	}
	return vec
}
