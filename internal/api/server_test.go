package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirai-cascade-server/internal/config"
	"github.com/mirai-cascade-server/internal/domain"
	"github.com/mirai-cascade-server/internal/feedback"
	"github.com/mirai-cascade-server/internal/service"
)

type stubModel struct {
	stage domain.Stage
	prob  float64
	err   error
}

func (m *stubModel) Stage() domain.Stage    { return m.stage }
func (m *stubModel) FeatureNames() []string { return nil }

func (m *stubModel) Predict(_ context.Context, _ []float64) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.prob, nil
}

// memoryRepo is an in-memory PredictionRepository for handler tests.
type memoryRepo struct {
	records map[uuid.UUID]*domain.PredictionRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]*domain.PredictionRecord)}
}

func (r *memoryRepo) Save(_ context.Context, record *domain.PredictionRecord) error {
	r.records[record.ID] = record
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PredictionRecord, error) {
	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (r *memoryRepo) ListRecent(_ context.Context, limit, offset int) ([]*domain.PredictionRecord, error) {
	var out []*domain.PredictionRecord
	for _, record := range r.records {
		out = append(out, record)
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T, probs [3]float64, opts Options) *Server {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	cfgManager, err := config.NewManager()
	require.NoError(t, err)

	cascade, err := service.NewCascadeService(testLogger(), domain.ModelSet{
		Clinical:  &stubModel{stage: domain.StageClinical, prob: probs[0]},
		Genetic:   &stubModel{stage: domain.StageGenetic, prob: probs[1]},
		Biomarker: &stubModel{stage: domain.StageBiomarker, prob: probs[2]},
	}, domain.DefaultRiskThresholds())
	require.NoError(t, err)

	return NewServer(cfgManager, cascade, testLogger(), opts)
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func fullRequestBody() map[string]any {
	return map[string]any{
		"age":       72,
		"gender":    "Female",
		"education": 16,
		"faq":       8,
		"ecogMem":   2.5,
		"ecogTotal": 2.0,
		"genotype":  "3/4",
		"ptau217":   0.45,
		"ab42":      15.2,
		"ab40":      180.5,
		"nfl":       22.0,
	}
}

func TestHandlePredict_FullCascade(t *testing.T) {
	server := newTestServer(t, [3]float64{0.55, 0.60, 0.62}, Options{})

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", fullRequestBody())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 0.62, resp.FinalRiskScore)
	assert.Equal(t, domain.RiskElevated, resp.FinalRiskCategory)
	assert.Len(t, resp.Stages, 3)
	assert.Contains(t, resp.TopFactors, "FAQ Score: 8")
	assert.Contains(t, resp.TopFactors, "APOE4 Count: 1")
	assert.Empty(t, resp.PredictionID, "no repository wired, no id expected")
}

func TestHandlePredict_SkippedStages(t *testing.T) {
	server := newTestServer(t, [3]float64{0.25, 0.9, 0.9}, Options{})

	body := fullRequestBody()
	delete(body, "genotype")
	delete(body, "ptau217")
	delete(body, "ab42")
	delete(body, "ab40")
	delete(body, "nfl")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 0.25, resp.FinalRiskScore)
	assert.Equal(t, domain.RiskLow, resp.FinalRiskCategory)
	assert.True(t, resp.Stages[1].Skipped)
	assert.True(t, resp.Stages[2].Skipped)
}

func TestHandlePredict_MissingClinicalField(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	body := fullRequestBody()
	delete(body, "faq")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", body)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeInsufficientInput, apiErr.Code)
	assert.Equal(t, "faq", apiErr.Field)
}

func TestHandlePredict_UnknownGender(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	body := fullRequestBody()
	body["gender"] = "other"

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeUnknownCategory, apiErr.Code)
	assert.Equal(t, "gender", apiErr.Field)
}

func TestHandlePredict_OutOfRangeValue(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	body := fullRequestBody()
	body["faq"] = 99

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeValidation, apiErr.Code)
	assert.Equal(t, "faq", apiErr.Field)
}

func TestHandlePredict_ModelFailure(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfgManager, err := config.NewManager()
	require.NoError(t, err)

	cascade, err := service.NewCascadeService(testLogger(), domain.ModelSet{
		Clinical:  &stubModel{stage: domain.StageClinical, err: assert.AnError},
		Genetic:   &stubModel{stage: domain.StageGenetic, prob: 0.5},
		Biomarker: &stubModel{stage: domain.StageBiomarker, prob: 0.5},
	}, domain.DefaultRiskThresholds())
	require.NoError(t, err)
	server := NewServer(cfgManager, cascade, testLogger(), Options{})

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", fullRequestBody())

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeModelQuery, apiErr.Code)
}

func TestHandlePredict_MalformedBody(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePredict_PersistsRecord(t *testing.T) {
	repo := newMemoryRepo()
	server := newTestServer(t, [3]float64{0.55, 0.60, 0.62}, Options{Predictions: repo})

	rec := doJSON(t, server, http.MethodPost, "/api/v1/predict", fullRequestBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.PredictionID)

	id, err := uuid.Parse(resp.PredictionID)
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0.62, stored.Result.FinalRiskScore)

	// Retrieval endpoint round trip
	getRec := doJSON(t, server, http.MethodGet, "/api/v1/predictions/"+resp.PredictionID, nil)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleGetPrediction_NotFound(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{Predictions: newMemoryRepo()})

	rec := doJSON(t, server, http.MethodGet, "/api/v1/predictions/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetPrediction_PersistenceDisabled(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	rec := doJSON(t, server, http.MethodGet, "/api/v1/predictions/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleFeedback_RoundTrip(t *testing.T) {
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{Feedback: store})

	body := map[string]any{
		"prediction_id":      uuid.NewString(),
		"reviewer":           "dr-okafor",
		"suggested_category": "Elevated",
		"reviewer_category":  "High",
		"reviewer_agreed":    false,
		"notes":              "Biomarker panel suggests higher tier",
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/feedback", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	listRec := doJSON(t, server, http.MethodGet, "/api/v1/feedback", nil)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp struct {
		Feedback []*feedback.Feedback `json:"feedback"`
		Total    int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	assert.Equal(t, int64(1), listResp.Total)
	require.Len(t, listResp.Feedback, 1)
	assert.Equal(t, domain.RiskHigh, listResp.Feedback[0].ReviewerCategory)
}

func TestHandleFeedback_InvalidCategory(t *testing.T) {
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{Feedback: store})

	body := map[string]any{
		"prediction_id":      uuid.NewString(),
		"suggested_category": "Elevated",
		"reviewer_category":  "Extreme",
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/feedback", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	rec := doJSON(t, server, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSecurityHeadersApplied(t *testing.T) {
	server := newTestServer(t, [3]float64{0.5, 0.5, 0.5}, Options{})

	rec := doJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
