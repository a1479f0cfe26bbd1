package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/domain"
	"github.com/mirai-cascade-server/internal/feedback"
)

// predictResponse wraps the deterministic cascade result with the persisted
// record's identity when persistence is enabled.
type predictResponse struct {
	PredictionID string `json:"prediction_id,omitempty"`
	domain.PredictionResult
}

// handlePredict runs the cascade for one patient record.
func (s *Server) handlePredict(c *gin.Context) {
	var record domain.PatientRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.respondError(c, domain.NewValidationError("body", "request body must be a valid patient record", nil))
		return
	}

	ctx := c.Request.Context()

	// Serve memoized results when the cache is wired in.
	if s.cache != nil {
		if cached, found, err := s.cache.Get(ctx, &record); err == nil && found {
			s.writePrediction(c, &record, cached, true)
			return
		} else if err != nil {
			s.log.WithError(err).Warn("Prediction cache lookup failed")
		}
	}

	result, err := s.cascade.Predict(ctx, &record)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, &record, result); err != nil {
			s.log.WithError(err).Warn("Failed to cache prediction")
		}
	}

	s.writePrediction(c, &record, result, false)
}

// writePrediction persists the result when a repository is configured and
// writes the response envelope.
func (s *Server) writePrediction(c *gin.Context, record *domain.PatientRecord, result *domain.PredictionResult, fromCache bool) {
	resp := predictResponse{PredictionResult: *result}

	if s.predictions != nil && !fromCache {
		stored := &domain.PredictionRecord{
			ID:        uuid.New(),
			Input:     *record,
			Result:    *result,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.predictions.Save(c.Request.Context(), stored); err != nil {
			s.log.WithError(err).Error("Failed to persist prediction")
		} else {
			resp.PredictionID = stored.ID.String()
		}
	}

	s.log.WithFields(logrus.Fields{
		"correlation_id":      c.GetString("correlation_id"),
		"final_risk_category": result.FinalRiskCategory,
		"from_cache":          fromCache,
	}).Info("Prediction request served")

	c.JSON(http.StatusOK, resp)
}

// handleGetPrediction retrieves a persisted prediction record by ID.
func (s *Server) handleGetPrediction(c *gin.Context) {
	if s.predictions == nil {
		s.respondUnavailable(c, "prediction persistence is not enabled")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.respondError(c, domain.NewValidationError("id", "must be a valid UUID", c.Param("id")))
		return
	}

	record, err := s.predictions.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleListPredictions lists persisted predictions, newest first.
func (s *Server) handleListPredictions(c *gin.Context) {
	if s.predictions == nil {
		s.respondUnavailable(c, "prediction persistence is not enabled")
		return
	}

	limit := parseQueryInt(c, "limit", 20, 100)
	offset := parseQueryInt(c, "offset", 0, 1<<30)

	records, err := s.predictions.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": records,
		"limit":       limit,
		"offset":      offset,
	})
}

// feedbackRequest is the clinician review payload.
type feedbackRequest struct {
	PredictionID      string              `json:"prediction_id"`
	Reviewer          string              `json:"reviewer"`
	SuggestedCategory domain.RiskCategory `json:"suggested_category"`
	ReviewerCategory  domain.RiskCategory `json:"reviewer_category"`
	ReviewerAgreed    bool                `json:"reviewer_agreed"`
	Diagnosis         string              `json:"diagnosis"`
	Notes             string              `json:"notes"`
}

// handleSaveFeedback stores a clinician's review of a prediction.
func (s *Server) handleSaveFeedback(c *gin.Context) {
	if s.feedback == nil {
		s.respondUnavailable(c, "feedback store is not enabled")
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "request body must be valid feedback", nil))
		return
	}
	if _, err := uuid.Parse(req.PredictionID); err != nil {
		s.respondError(c, domain.NewValidationError("prediction_id", "must be a valid UUID", req.PredictionID))
		return
	}
	if !req.SuggestedCategory.IsValid() {
		s.respondError(c, domain.NewValidationError("suggested_category", "unknown risk category", string(req.SuggestedCategory)))
		return
	}
	if !req.ReviewerCategory.IsValid() {
		s.respondError(c, domain.NewValidationError("reviewer_category", "unknown risk category", string(req.ReviewerCategory)))
		return
	}

	entry := &feedback.Feedback{
		PredictionID:      req.PredictionID,
		Reviewer:          req.Reviewer,
		SuggestedCategory: req.SuggestedCategory,
		ReviewerCategory:  req.ReviewerCategory,
		ReviewerAgreed:    req.ReviewerAgreed,
		Diagnosis:         req.Diagnosis,
		Notes:             req.Notes,
	}

	if err := s.feedback.Save(c.Request.Context(), entry); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// handleListFeedback lists stored clinician feedback.
func (s *Server) handleListFeedback(c *gin.Context) {
	if s.feedback == nil {
		s.respondUnavailable(c, "feedback store is not enabled")
		return
	}

	limit := parseQueryInt(c, "limit", 20, 100)
	offset := parseQueryInt(c, "offset", 0, 1<<30)

	entries, err := s.feedback.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	count, err := s.feedback.Count(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"total":    count,
		"limit":    limit,
		"offset":   offset,
	})
}

// respondError maps domain errors onto the HTTP error envelope.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString("correlation_id")

	var (
		validationErr  *domain.ValidationError
		insufficient   *domain.InsufficientInputError
		unknownCat     *domain.UnknownCategoryError
		modelQueryFail *domain.ModelQueryError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeValidation, validationErr.Message, validationErr.Field, requestID))
	case errors.As(err, &unknownCat):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeUnknownCategory, unknownCat.Error(), unknownCat.Field, requestID))
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, domain.NewAPIError(
			domain.ErrCodeInsufficientInput, insufficient.Error(), insufficient.Field, requestID))
	case errors.As(err, &modelQueryFail):
		s.log.WithError(err).Error("Stage model query failed")
		c.JSON(http.StatusBadGateway, domain.NewAPIError(
			domain.ErrCodeModelQuery, "stage model query failed", "", requestID))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(
			domain.ErrCodeNotFound, "resource not found", "", requestID))
	default:
		s.log.WithError(err).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeInternalServer, "internal server error", "", requestID))
	}
}

func (s *Server) respondUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(
		domain.ErrCodeUnavailable, message, "", c.GetString("correlation_id")))
}

func parseQueryInt(c *gin.Context, name string, fallback, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}
