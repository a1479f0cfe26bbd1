package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/domain"
)

// artifactFiles maps each stage to the JSON file the training pipeline
// exports for it.
var artifactFiles = map[domain.Stage]string{
	domain.StageClinical:  "stage1_model.json",
	domain.StageGenetic:   "stage2_model.json",
	domain.StageBiomarker: "stage3_model.json",
}

// modelArtifact mirrors the exported training artifact layout.
type modelArtifact struct {
	Stage    string   `json:"stage"`
	Features []string `json:"features"`
	Scaler   struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// LoadModel reads one stage's artifact from disk and builds its scorer.
func LoadModel(path string, stage domain.Stage) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}
	if artifact.Stage != "" && artifact.Stage != string(stage) {
		return nil, fmt.Errorf("artifact %s declares stage %q, expected %q", path, artifact.Stage, stage)
	}

	return NewLogisticModel(stage, artifact.Features, artifact.Scaler.Mean, artifact.Scaler.Scale,
		artifact.Coefficients, artifact.Intercept)
}

// LoadModelSet loads all three stage artifacts from dir.
func LoadModelSet(dir string, log *logrus.Logger) (domain.ModelSet, error) {
	var set domain.ModelSet

	for _, stage := range []domain.Stage{domain.StageClinical, domain.StageGenetic, domain.StageBiomarker} {
		path := filepath.Join(dir, artifactFiles[stage])
		m, err := LoadModel(path, stage)
		if err != nil {
			return domain.ModelSet{}, err
		}
		log.WithFields(logrus.Fields{
			"stage":    stage,
			"path":     path,
			"features": m.FeatureNames(),
		}).Info("Loaded stage model artifact")

		switch stage {
		case domain.StageClinical:
			set.Clinical = m
		case domain.StageGenetic:
			set.Genetic = m
		case domain.StageBiomarker:
			set.Biomarker = m
		}
	}

	return set, nil
}
