package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/models"
)

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("connection refused")
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemCache(), metrics, time.Minute, zap.NewNop(), true)

	var season models.Season
	hit, err := svc.Get(context.Background(), seasonCacheKey(2), &season)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), seasonCacheKey(2), models.Season{ID: 2, Name: "Fall"}, 0))
	hit, err = svc.Get(context.Background(), seasonCacheKey(2), &season)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Fall", season.Name)

	body := scrape(t, metrics)
	assert.Contains(t, body, "cache_hits_total 1")
	assert.Contains(t, body, "cache_misses_total 1")
}

func TestCacheServiceInvalidateSeasonScopesKeys(t *testing.T) {
	repo := newMemCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, catalogCacheKey(2), []int{1}, 0))
	require.NoError(t, svc.Set(ctx, catalogCacheKey(3), []int{1}, 0))
	require.NoError(t, svc.Set(ctx, seasonCacheKey(2), models.Season{ID: 2}, 0))

	svc.InvalidateSeason(ctx, 2)
	assert.False(t, repo.has(catalogCacheKey(2)))
	assert.False(t, repo.has(seasonCacheKey(2)))
	assert.True(t, repo.has(catalogCacheKey(3)))

	svc.InvalidateAll(ctx)
	assert.False(t, repo.has(catalogCacheKey(3)))
}

func TestCacheServiceDisabledAndFailingBackends(t *testing.T) {
	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)
	nilSvc.InvalidateAll(context.Background())

	disabled := NewCacheService(newMemCache(), nil, 0, nil, false)
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Set(context.Background(), "k", 1, 0))

	failing := NewCacheService(failingCache{}, nil, 0, nil, true)
	hit, err = failing.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, failing.Set(context.Background(), "k", 1, 0))
	assert.Error(t, failing.Invalidate(context.Background(), "k*"))
}
