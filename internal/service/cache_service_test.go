package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

type cacheRepoStub struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (r *cacheRepoStub) Get(_ context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *cacheRepoStub) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.entries[key] = raw
	r.ttls[key] = ttl
	return nil
}

func (r *cacheRepoStub) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.entries {
		if key == pattern || (prefix != pattern && strings.HasPrefix(key, prefix)) {
			delete(r.entries, key)
			r.deleted = append(r.deleted, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripsRecoveryChecks(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, nil, WithCacheTTL(time.Minute))
	ctx := context.Background()

	var check models.RecoveryCheck
	hit, err := cache.Get(ctx, "recovery:flag:2", &check)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "recovery:flag:2", models.RecoveryCheck{FlagID: 2, RecoveryQty: 7}, 0))
	assert.Equal(t, time.Minute, repo.ttls["recovery:flag:2"])

	hit, err = cache.Get(ctx, "recovery:flag:2", &check)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, check.RecoveryQty)

	require.NoError(t, cache.Invalidate(ctx, "recovery:flag:*"))
	assert.Equal(t, []string{"recovery:flag:2"}, repo.deleted)
	assert.Contains(t, scrapeMetrics(t, metrics), "cache_hits_total 1")
}

func TestCacheServiceTreatsStoreFailureAsMiss(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("redis: connection refused")
	cache := NewCacheService(repo, nil, nil)

	var check models.RecoveryCheck
	hit, err := cache.Get(context.Background(), "recovery:flag:2", &check)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	cache := NewCacheService(repo, nil, nil, WithCacheEnabled(false))

	assert.False(t, cache.Enabled())
	require.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.entries)

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
}
