// Package feedback provides clinician feedback storage for screening
// predictions. It stores agreements and corrections from reviewing
// clinicians, keyed by prediction, to support later model recalibration.
package feedback

import (
	"context"
	"io"
	"time"

	"github.com/mirai-cascade-server/internal/domain"
)

// Feedback represents one clinician's review of a screening prediction.
type Feedback struct {
	ID                int64               `json:"id,omitempty"`
	PredictionID      string              `json:"prediction_id"`               // UUID of the reviewed prediction
	Reviewer          string              `json:"reviewer,omitempty"`          // Clinician or site identifier
	SuggestedCategory domain.RiskCategory `json:"suggested_category"`          // System's risk category
	ReviewerCategory  domain.RiskCategory `json:"reviewer_category"`           // Clinician's assessment
	ReviewerAgreed    bool                `json:"reviewer_agreed"`             // Did the clinician agree?
	Diagnosis         string              `json:"diagnosis,omitempty"`         // Confirmed diagnosis, if any
	Notes             string              `json:"notes,omitempty"`             // Free-text notes
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback for a prediction. If feedback for the
	// same prediction+reviewer exists, it will be updated.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves feedback for a prediction. If reviewer is empty, returns
	// the first matching entry.
	Get(ctx context.Context, predictionID string, reviewer string) (*Feedback, error)

	// List returns all feedback entries with pagination.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}
