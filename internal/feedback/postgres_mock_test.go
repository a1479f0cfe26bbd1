package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/mirai-cascade-server/internal/domain"
)

// newMockStore builds a PostgresStore over a sqlmock connection so the
// SQL paths can be exercised without a running database.
func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &PostgresStore{db: db}, mock
}

func TestPostgresStoreMock_SaveUpsert(t *testing.T) {
	store, mock := newMockStore(t)

	predictionID := uuid.NewString()
	created := time.Now().Add(-time.Hour)

	mock.ExpectQuery("INSERT INTO feedback").
		WithArgs(predictionID, "dr-okafor", "Elevated", "High", false, "MCI", "escalate", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	fb := &Feedback{
		PredictionID:      predictionID,
		Reviewer:          "dr-okafor",
		SuggestedCategory: domain.RiskElevated,
		ReviewerCategory:  domain.RiskHigh,
		ReviewerAgreed:    false,
		Diagnosis:         "MCI",
		Notes:             "escalate",
	}

	if err := store.Save(context.Background(), fb); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if fb.ID != 7 {
		t.Errorf("Expected returned id 7, got %d", fb.ID)
	}
	if !fb.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at from the returning clause, got %v", fb.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreMock_GetNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	predictionID := uuid.NewString()
	mock.ExpectQuery("SELECT id, prediction_id, reviewer").
		WithArgs(predictionID, "dr-lindqvist").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "prediction_id", "reviewer",
			"suggested_category", "reviewer_category", "reviewer_agreed",
			"diagnosis", "notes", "created_at", "updated_at",
		}))

	fb, err := store.Get(context.Background(), predictionID, "dr-lindqvist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fb != nil {
		t.Errorf("Expected nil for missing feedback, got %+v", fb)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreMock_List(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "prediction_id", "reviewer",
		"suggested_category", "reviewer_category", "reviewer_agreed",
		"diagnosis", "notes", "created_at", "updated_at",
	}).
		AddRow(int64(2), uuid.NewString(), "dr-okafor", "High", "High", true, "", "", now, now).
		AddRow(int64(1), uuid.NewString(), "dr-lindqvist", "Low", "Moderate", false, "", "borderline", now.Add(-time.Minute), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, prediction_id, reviewer").
		WithArgs(20, 0).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ReviewerCategory != domain.RiskHigh {
		t.Errorf("Expected reviewer category High, got %s", entries[0].ReviewerCategory)
	}
	if entries[1].ReviewerAgreed {
		t.Error("Expected second entry to be a disagreement")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreMock_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM feedback").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 42 {
		t.Errorf("Expected count 42, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgresStoreMock_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM feedback WHERE id").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), 7); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
