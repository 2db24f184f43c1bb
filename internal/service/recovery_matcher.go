package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

const recoveryCacheKeyPrefix = "recovery:flag:"

type recoverySource interface {
	CheckRecoveryGon(ctx context.Context, flagID int64) (int, error)
}

type recoveryCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type recoveryEntry struct {
	check   models.RecoveryCheck
	expires time.Time
}

// RecoveryMatcher memoizes recovery GON lookups per flag. Concurrent lookups for the same
// flag share one upstream call and repeated lookups return the same answer until Invalidate.
type RecoveryMatcher struct {
	source recoverySource
	cache  recoveryCache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	results map[int64]recoveryEntry
}

// NewRecoveryMatcher constructs a matcher. cache may be nil; ttl <= 0 keeps results until invalidated.
func NewRecoveryMatcher(source recoverySource, cache recoveryCache, ttl time.Duration, logger *zap.Logger) *RecoveryMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryMatcher{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		results: make(map[int64]recoveryEntry),
	}
}

// Check returns the recovery result for a flag, querying the source at most once per flag.
func (m *RecoveryMatcher) Check(ctx context.Context, flagID int64) (models.RecoveryCheck, error) {
	if check, ok := m.Checked(ctx, flagID); ok {
		return check, nil
	}

	key := recoveryKey(flagID)
	value, err, _ := m.group.Do(key, func() (interface{}, error) {
		if check, ok := m.local(flagID); ok {
			return check, nil
		}
		qty, err := m.source.CheckRecoveryGon(ctx, flagID)
		if err != nil {
			return nil, err
		}
		if qty < 0 {
			qty = 0
		}
		check := models.RecoveryCheck{FlagID: flagID, IsRecoveryCandidate: qty > 0, RecoveryQty: qty}
		m.remember(check)
		if m.cacheEnabled() {
			_ = m.cache.Set(ctx, key, check, m.ttl)
		}
		return check, nil
	})
	if err != nil {
		return models.RecoveryCheck{}, err
	}
	return value.(models.RecoveryCheck), nil
}

// Checked reports a previous result without calling the source.
func (m *RecoveryMatcher) Checked(ctx context.Context, flagID int64) (models.RecoveryCheck, bool) {
	if check, ok := m.local(flagID); ok {
		return check, true
	}
	if !m.cacheEnabled() {
		return models.RecoveryCheck{}, false
	}
	var check models.RecoveryCheck
	hit, err := m.cache.Get(ctx, recoveryKey(flagID), &check)
	if err != nil || !hit {
		return models.RecoveryCheck{}, false
	}
	m.remember(check)
	return check, true
}

// Invalidate forgets the result for a flag.
func (m *RecoveryMatcher) Invalidate(ctx context.Context, flagID int64) {
	m.mu.Lock()
	delete(m.results, flagID)
	m.mu.Unlock()
	if m.cacheEnabled() {
		if err := m.cache.Invalidate(ctx, recoveryKey(flagID)); err != nil {
			m.logger.Warn("failed to invalidate recovery cache", zap.Int64("flag_id", flagID), zap.Error(err))
		}
	}
}

func (m *RecoveryMatcher) local(flagID int64) (models.RecoveryCheck, bool) {
	m.mu.RLock()
	entry, ok := m.results[flagID]
	m.mu.RUnlock()
	if !ok {
		return models.RecoveryCheck{}, false
	}
	if !entry.expires.IsZero() && m.now().After(entry.expires) {
		m.mu.Lock()
		delete(m.results, flagID)
		m.mu.Unlock()
		return models.RecoveryCheck{}, false
	}
	return entry.check, true
}

func (m *RecoveryMatcher) remember(check models.RecoveryCheck) {
	entry := recoveryEntry{check: check}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.results[check.FlagID] = entry
	m.mu.Unlock()
}

func (m *RecoveryMatcher) cacheEnabled() bool {
	return m.cache != nil && m.cache.Enabled()
}

func recoveryKey(flagID int64) string {
	return recoveryCacheKeyPrefix + strconv.FormatInt(flagID, 10)
}
