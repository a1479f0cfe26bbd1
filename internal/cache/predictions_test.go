package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirai-cascade-server/internal/domain"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func strp(v string) *string     { return &v }

// getTestCache returns a cache backed by a real Redis instance.
// Skip test if TEST_REDIS_URL is not set.
func getTestCache(t *testing.T) *PredictionCache {
	t.Helper()

	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	cache, err := NewPredictionCache(domain.CacheConfig{
		Enabled:     true,
		RedisURL:    redisURL,
		DefaultTTL:  time.Minute,
		MaxRetries:  3,
		PoolSize:    5,
		PoolTimeout: 4 * time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache
}

func testInput() *domain.PatientRecord {
	return &domain.PatientRecord{
		Age:       intp(72),
		Gender:    strp("Female"),
		Education: intp(16),
		FAQ:       intp(8),
		EcogMem:   floatp(2.5),
		EcogTotal: floatp(2.0),
		Genotype:  strp("3/4"),
	}
}

func testResult() *domain.PredictionResult {
	return &domain.PredictionResult{
		FinalRiskScore:    0.62,
		FinalRiskCategory: domain.RiskElevated,
		TopFactors:        []string{"FAQ Score: 8", "APOE4 Count: 1"},
	}
}

func TestPredictionCache_SetAndGet(t *testing.T) {
	cache := getTestCache(t)
	ctx := context.Background()

	input := testInput()
	require.NoError(t, cache.Invalidate(ctx, input))

	// Miss before set
	_, found, err := cache.Get(ctx, input)
	require.NoError(t, err)
	assert.False(t, found)

	// Set then hit
	require.NoError(t, cache.Set(ctx, input, testResult()))

	cached, found, err := cache.Get(ctx, input)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.62, cached.FinalRiskScore)
	assert.Equal(t, domain.RiskElevated, cached.FinalRiskCategory)
	assert.Equal(t, []string{"FAQ Score: 8", "APOE4 Count: 1"}, cached.TopFactors)
}

func TestPredictionCache_DistinctInputsDistinctKeys(t *testing.T) {
	cache := getTestCache(t)
	ctx := context.Background()

	first := testInput()
	second := testInput()
	second.FAQ = intp(12)

	require.NoError(t, cache.Invalidate(ctx, first))
	require.NoError(t, cache.Invalidate(ctx, second))

	require.NoError(t, cache.Set(ctx, first, testResult()))

	_, found, err := cache.Get(ctx, second)
	require.NoError(t, err)
	assert.False(t, found, "different input must not hit the first input's entry")
}

func TestPredictionCache_Invalidate(t *testing.T) {
	cache := getTestCache(t)
	ctx := context.Background()

	input := testInput()
	require.NoError(t, cache.Set(ctx, input, testResult()))
	require.NoError(t, cache.Invalidate(ctx, input))

	_, found, err := cache.Get(ctx, input)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordKey_Deterministic(t *testing.T) {
	first, err := recordKey(testInput())
	require.NoError(t, err)
	second, err := recordKey(testInput())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other := testInput()
	other.Genotype = nil
	third, err := recordKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
