package model

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/mirai-cascade-server/internal/domain"
)

// stageFeatures is the canonical trained feature order per stage. The remote
// scoring service expects vectors in this order.
var stageFeatures = map[domain.Stage][]string{
	domain.StageClinical:  {"AGE", "PTGENDER", "PTEDUCAT", "FAQ", "EcogPtMem", "EcogPtTotal"},
	domain.StageGenetic:   {"Stage1_Prob", "APOE4"},
	domain.StageBiomarker: {"Stage2_Prob", "PTAU", "ABETA42", "ABETA40", "NFL"},
}

// remoteScorer is the transport shared by the three remote stage models:
// one HTTP client, one circuit breaker, one rate limiter, and one memo
// cache. Scoring is deterministic per feature vector, so memoized results
// never go stale.
type remoteScorer struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	memo    *lru.Cache[string, float64]
	log     *logrus.Logger
}

// RemoteModel scores one cascade stage against a remote model service.
type RemoteModel struct {
	stage  domain.Stage
	scorer *remoteScorer
}

type remotePredictRequest struct {
	Stage    string    `json:"stage"`
	Features []float64 `json:"features"`
}

type remotePredictResponse struct {
	Probability float64 `json:"probability"`
}

// NewRemoteModelSet builds the three stage models backed by the scoring
// service at cfg.BaseURL.
func NewRemoteModelSet(cfg domain.RemoteModelConfig, log *logrus.Logger) (domain.ModelSet, error) {
	if cfg.BaseURL == "" {
		return domain.ModelSet{}, fmt.Errorf("remote model base URL is required")
	}

	memo, err := lru.New[string, float64](cfg.CacheSize)
	if err != nil {
		return domain.ModelSet{}, fmt.Errorf("failed to create model memo cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-service",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	scorer := &remoteScorer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		memo:    memo,
		log:     log,
	}

	return domain.ModelSet{
		Clinical:  &RemoteModel{stage: domain.StageClinical, scorer: scorer},
		Genetic:   &RemoteModel{stage: domain.StageGenetic, scorer: scorer},
		Biomarker: &RemoteModel{stage: domain.StageBiomarker, scorer: scorer},
	}, nil
}

// Stage returns the cascade stage this model serves.
func (m *RemoteModel) Stage() domain.Stage { return m.stage }

// FeatureNames returns the feature order the scoring service expects.
func (m *RemoteModel) FeatureNames() []string {
	names := make([]string, len(stageFeatures[m.stage]))
	copy(names, stageFeatures[m.stage])
	return names
}

// Predict scores one feature vector via the remote service, memoizing the
// result so repeated screenings of identical inputs avoid a round trip.
func (m *RemoteModel) Predict(ctx context.Context, features []float64) (float64, error) {
	if len(features) != len(stageFeatures[m.stage]) {
		return 0, fmt.Errorf("stage %s: expected %d features, got %d", m.stage, len(stageFeatures[m.stage]), len(features))
	}

	key, err := memoKey(m.stage, features)
	if err != nil {
		return 0, err
	}
	if prob, ok := m.scorer.memo.Get(key); ok {
		return prob, nil
	}

	prob, err := m.scorer.score(ctx, m.stage, features)
	if err != nil {
		return 0, err
	}

	m.scorer.memo.Add(key, prob)
	return prob, nil
}

func (s *remoteScorer) score(ctx context.Context, stage domain.Stage, features []float64) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.post(ctx, stage, features)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return 0, fmt.Errorf("model service unavailable (circuit breaker open)")
		}
		return 0, err
	}
	return result.(float64), nil
}

func (s *remoteScorer) post(ctx context.Context, stage domain.Stage, features []float64) (float64, error) {
	body, err := json.Marshal(remotePredictRequest{
		Stage:    string(stage),
		Features: features,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predict", s.baseURL, stage)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("model service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("model service returned %d: %s", resp.StatusCode, string(payload))
	}

	var parsed remotePredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode predict response: %w", err)
	}
	return parsed.Probability, nil
}

// memoKey hashes the stage and feature vector into a stable cache key.
func memoKey(stage domain.Stage, features []float64) (string, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return "", fmt.Errorf("failed to build memo key: %w", err)
	}
	hash := sha256.Sum256(append([]byte(stage+":"), payload...))
	return fmt.Sprintf("%x", hash), nil
}
