package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// FlagSource is the collaborator that owns flag data.
type FlagSource interface {
	FetchFlags(ctx context.Context, filter models.FlagFilter) (models.FlagPage, error)
	RejectFlag(ctx context.Context, cmd models.RejectionCommand) error
	ResolveFlag(ctx context.Context, cmd models.ResolutionCommand) error
	CheckRecoveryGon(ctx context.Context, flagID int64) (int, error)
}

// DegradedWarning is surfaced to clients whenever flags come from the local fixture.
const DegradedWarning = "Using demo data - API unavailable"

// FallbackFlagSource serves listings from a fixture when the primary source is unreachable.
// Writes always go to the primary.
type FallbackFlagSource struct {
	primary  FlagSource
	fallback FlagSource
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewFallbackFlagSource wraps primary with fallback.
func NewFallbackFlagSource(primary, fallback FlagSource, metrics *MetricsService, logger *zap.Logger) *FallbackFlagSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackFlagSource{primary: primary, fallback: fallback, metrics: metrics, logger: logger}
}

// FixtureReadOnly reports that fixture flags must not drive writes to the primary.
func (s *FallbackFlagSource) FixtureReadOnly() bool {
	return s.fallback != nil
}

// FetchFlags tries the primary and falls back on transport failures.
func (s *FallbackFlagSource) FetchFlags(ctx context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	page, err := s.primary.FetchFlags(ctx, filter)
	if err == nil {
		return page, nil
	}
	if !isTransportError(err) || s.fallback == nil {
		return models.FlagPage{}, err
	}

	s.logger.Warn("flag source unavailable, serving fixture data", zap.Error(err))
	page, fbErr := s.fallback.FetchFlags(ctx, filter)
	if fbErr != nil {
		return models.FlagPage{}, err
	}
	page.Degraded = true
	s.metrics.RecordDegradedFetch()
	return page, nil
}

// RejectFlag delegates to the primary.
func (s *FallbackFlagSource) RejectFlag(ctx context.Context, cmd models.RejectionCommand) error {
	return s.primary.RejectFlag(ctx, cmd)
}

// ResolveFlag delegates to the primary.
func (s *FallbackFlagSource) ResolveFlag(ctx context.Context, cmd models.ResolutionCommand) error {
	return s.primary.ResolveFlag(ctx, cmd)
}

// CheckRecoveryGon delegates to the primary.
func (s *FallbackFlagSource) CheckRecoveryGon(ctx context.Context, flagID int64) (int, error) {
	return s.primary.CheckRecoveryGon(ctx, flagID)
}

// isTransportError reports whether err means the source could not be reached, as opposed to
// the source answering with a domain error.
func isTransportError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code == appErrors.ErrUpstream.Code
	}
	return true
}
