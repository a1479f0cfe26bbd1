package domain

import (
	"context"

	"github.com/google/uuid"
)

// StageModel is the opaque predictor capability for one cascade stage.
// Implementations are read-only after load and safe for concurrent use;
// Predict is a pure query from feature vector to probability in [0,1].
type StageModel interface {
	// Stage identifies which cascade stage this model serves.
	Stage() Stage

	// FeatureNames returns the ordered feature names the model was trained
	// on. The vector passed to Predict must follow this exact order.
	FeatureNames() []string

	// Predict scores an ordered feature vector. The result must lie in [0,1].
	Predict(ctx context.Context, features []float64) (float64, error)
}

// ModelSet bundles the three trained stage predictors.
type ModelSet struct {
	Clinical  StageModel
	Genetic   StageModel
	Biomarker StageModel
}

// PredictionRepository persists prediction records. Persistence is an
// external collaborator: the inference engine never touches it.
type PredictionRepository interface {
	Save(ctx context.Context, record *PredictionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PredictionRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*PredictionRecord, error)
}

// PredictionCache memoizes prediction results keyed by the input record.
// Safe because inference is deterministic for identical inputs.
type PredictionCache interface {
	Get(ctx context.Context, input *PatientRecord) (*PredictionResult, bool, error)
	Set(ctx context.Context, input *PatientRecord, result *PredictionResult) error
}

// ConfigManager provides access to validated application configuration.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	Validate() error
}
