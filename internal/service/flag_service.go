package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// Flag actions used for metrics and logs.
const (
	flagActionList     = "list"
	flagActionRecovery = "recovery_check"
	flagActionResolve  = "resolve"
	flagActionReject   = "reject"
)

type auditRecorder interface {
	Record(entry AuditEntry)
}

// FlagActionResult is returned after a confirmed resolve or reject.
// Flags is the refetched listing, Degraded reports whether it came from fixture data.
type FlagActionResult struct {
	Flag     models.Flag
	Flags    []models.Flag
	Degraded bool
}

// FlagService orchestrates the supervisor flag workflow.
type FlagService struct {
	source    FlagSource
	store     *FlagStore
	matcher   *RecoveryMatcher
	engine    *FlagResolutionEngine
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// FlagServiceOption configures the service.
type FlagServiceOption func(*FlagService)

// WithFlagAuditRecorder routes confirmed actions to the audit trail.
func WithFlagAuditRecorder(recorder auditRecorder) FlagServiceOption {
	return func(s *FlagService) {
		s.audit = recorder
	}
}

// WithFlagMetrics sets the metrics sink.
func WithFlagMetrics(metrics *MetricsService) FlagServiceOption {
	return func(s *FlagService) {
		s.metrics = metrics
	}
}

// WithFlagEngine overrides the resolution engine.
func WithFlagEngine(engine *FlagResolutionEngine) FlagServiceOption {
	return func(s *FlagService) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// NewFlagService constructs the service. matcher may be nil, in which case one is built over source.
func NewFlagService(source FlagSource, matcher *RecoveryMatcher, validate *validator.Validate, logger *zap.Logger, opts ...FlagServiceOption) *FlagService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if matcher == nil {
		matcher = NewRecoveryMatcher(source, nil, 0, logger)
	}
	svc := &FlagService{
		source:    source,
		store:     NewFlagStore(),
		matcher:   matcher,
		validator: validate,
		logger:    logger,
		inFlight:  make(map[int64]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if svc.engine == nil {
		svc.engine = NewFlagResolutionEngine(svc.matcher)
	}
	return svc
}

// Store exposes the local mirror.
func (s *FlagService) Store() *FlagStore {
	return s.store
}

// List fetches flags matching the query and refreshes the mirror.
func (s *FlagService) List(ctx context.Context, query dto.FlagListQuery) (models.FlagPage, error) {
	filter, err := ParseFlagFilter(query)
	if err != nil {
		return models.FlagPage{}, err
	}
	page, err := s.source.FetchFlags(ctx, filter)
	if err != nil {
		s.metrics.RecordFlagAction(filter.Type, flagActionList, OutcomeFailure)
		return models.FlagPage{}, sourceError(err, "failed to fetch flags")
	}
	if isUnfiltered(filter) {
		s.store.Replace(page)
	} else {
		s.store.Merge(page)
	}
	if page.Degraded {
		s.logger.Warn("serving degraded flag listing", zap.Int("count", len(page.Flags)))
	}
	sortFlags(page.Flags)
	return page, nil
}

// CheckRecovery runs the recovery GON check for an excess flag.
func (s *FlagService) CheckRecovery(ctx context.Context, id int64) (models.RecoveryCheck, error) {
	flag, err := s.lookup(ctx, id)
	if err != nil {
		return models.RecoveryCheck{}, err
	}
	if flag.Type != models.FlagTypeExcess {
		return models.RecoveryCheck{}, appErrors.Clone(appErrors.ErrIllegalState,
			fmt.Sprintf("recovery check only applies to EXCESS flags, %s is %s", flag.DisplayID(), flag.Type))
	}
	if err := requirePending(flag); err != nil {
		return models.RecoveryCheck{}, err
	}
	check, err := s.matcher.Check(ctx, id)
	s.metrics.RecordFlagAction(flag.Type, flagActionRecovery, outcomeOf(err))
	if err != nil {
		return models.RecoveryCheck{}, sourceError(err, "failed to check recovery GON")
	}
	return check, nil
}

// Resolve validates and submits a resolution, then refetches the listing.
func (s *FlagService) Resolve(ctx context.Context, id int64, req dto.ResolveFlagRequest, actorID string) (*FlagActionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, structError(err, "invalid resolution payload")
	}
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	flag, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	cmd, err := s.engine.Resolve(ctx, flag, req)
	if err != nil {
		s.metrics.RecordFlagAction(flag.Type, flagActionResolve, outcomeOf(err))
		return nil, err
	}
	if err := s.source.ResolveFlag(ctx, *cmd); err != nil {
		mapped := sourceError(err, "failed to resolve flag")
		s.metrics.RecordFlagAction(flag.Type, flagActionResolve, outcomeOf(mapped))
		s.logger.Warn("flag resolution failed", zap.Int64("flag_id", id), zap.Error(err))
		return nil, mapped
	}

	s.store.MarkResolved(id)
	s.matcher.Invalidate(ctx, id)
	s.metrics.RecordFlagAction(flag.Type, flagActionResolve, OutcomeSuccess)
	s.logger.Info("flag resolved", zap.Int64("flag_id", id), zap.String("type", string(flag.Type)), zap.String("actor", actorID))
	s.record(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditActionFlagResolved,
		Resource:   models.AuditResourceFlag,
		ResourceID: strconv.FormatInt(id, 10),
		Payload:    cmd,
	})

	flag.Status = models.FlagStatusResolved
	return s.afterAction(ctx, flag), nil
}

// Reject validates and submits a rejection, then refetches the listing.
func (s *FlagService) Reject(ctx context.Context, id int64, req dto.RejectFlagRequest, actorID string) (*FlagActionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, structError(err, "invalid rejection payload")
	}
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	flag, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	cmd, err := s.engine.Reject(flag, req.Reason)
	if err != nil {
		s.metrics.RecordFlagAction(flag.Type, flagActionReject, outcomeOf(err))
		return nil, err
	}
	if err := s.source.RejectFlag(ctx, *cmd); err != nil {
		mapped := sourceError(err, "failed to reject flag")
		s.metrics.RecordFlagAction(flag.Type, flagActionReject, outcomeOf(mapped))
		s.logger.Warn("flag rejection failed", zap.Int64("flag_id", id), zap.Error(err))
		return nil, mapped
	}

	s.store.MarkRejected(id, cmd.Reason)
	s.matcher.Invalidate(ctx, id)
	s.metrics.RecordFlagAction(flag.Type, flagActionReject, OutcomeSuccess)
	s.logger.Info("flag rejected", zap.Int64("flag_id", id), zap.String("type", string(flag.Type)), zap.String("actor", actorID))
	s.record(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditActionFlagRejected,
		Resource:   models.AuditResourceFlag,
		ResourceID: strconv.FormatInt(id, 10),
		Payload:    cmd,
	})

	flag.Status = models.FlagStatusRejected
	flag.RejectionReason = &cmd.Reason
	return s.afterAction(ctx, flag), nil
}

// afterAction refetches the full listing. A failed refetch keeps the locally updated mirror.
func (s *FlagService) afterAction(ctx context.Context, flag models.Flag) *FlagActionResult {
	page, err := s.source.FetchFlags(ctx, models.FlagFilter{})
	if err != nil {
		s.logger.Warn("refetch after flag action failed", zap.Int64("flag_id", flag.ID), zap.Error(err))
	} else {
		s.store.Replace(page)
	}
	if refreshed, ok := s.store.Get(flag.ID); ok {
		flag = refreshed
	}
	return &FlagActionResult{
		Flag:     flag,
		Flags:    s.store.List(models.FlagFilter{}),
		Degraded: s.store.Degraded(),
	}
}

// lookup finds a flag in the mirror, refreshing it once from the source on a miss.
// When the source keeps fixture data read-only, a flag known only from a degraded
// listing is refetched and refused unless the live source returns it.
func (s *FlagService) lookup(ctx context.Context, id int64) (models.Flag, error) {
	flag, degraded, ok := s.store.Entry(id)
	if ok && (!degraded || !s.fixtureReadOnly()) {
		return flag, nil
	}
	page, err := s.source.FetchFlags(ctx, models.FlagFilter{})
	if err != nil {
		return models.Flag{}, sourceError(err, "failed to fetch flags")
	}
	s.store.Replace(page)
	flag, degraded, ok = s.store.Entry(id)
	if !ok {
		return models.Flag{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("flag %d not found", id))
	}
	if degraded && s.fixtureReadOnly() {
		return models.Flag{}, appErrors.Clone(appErrors.ErrUpstream,
			fmt.Sprintf("flag %d is only known from demo data, try again once the flag source is reachable", id))
	}
	return flag, nil
}

type readOnlyFallback interface {
	FixtureReadOnly() bool
}

func (s *FlagService) fixtureReadOnly() bool {
	ro, ok := s.source.(readOnlyFallback)
	return ok && ro.FixtureReadOnly()
}

// acquire refuses a second concurrent action on the same flag.
func (s *FlagService) acquire(id int64) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return nil, appErrors.Clone(appErrors.ErrInFlight, fmt.Sprintf("a request for flag %d is already in progress", id))
	}
	s.inFlight[id] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}, nil
}

func (s *FlagService) record(entry AuditEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(entry)
}

// ParseFlagFilter validates listing query parameters.
func ParseFlagFilter(query dto.FlagListQuery) (models.FlagFilter, error) {
	errs := &fieldErrors{}
	filter := models.FlagFilter{
		Identifier: strings.TrimSpace(query.Identifier),
		TimeStart:  query.TimeStart,
		TimeEnd:    query.TimeEnd,
	}
	if filter.Identifier == "" {
		filter.Identifier = strings.TrimSpace(query.CrateID)
	}

	if raw := strings.ToUpper(strings.TrimSpace(query.Type)); raw != "" && raw != models.FlagTypeAll {
		if t := models.FlagType(raw); t.Valid() {
			filter.Type = t
		} else {
			errs.add("type", fmt.Sprintf("unknown flag type %q", query.Type))
		}
	}
	if raw := strings.ToUpper(strings.TrimSpace(query.Status)); raw != "" {
		if st := models.FlagStatus(raw); st.Valid() {
			filter.Status = st
		} else {
			errs.add("status", fmt.Sprintf("unknown flag status %q", query.Status))
		}
	}
	if raw := strings.TrimSpace(query.Date); raw != "" {
		if _, err := time.Parse(models.DateLayout, raw); err != nil {
			errs.add("date", "date must be formatted YYYY-MM-DD")
		} else {
			filter.Date = raw
		}
	}
	if filter.TimeStart != nil && filter.TimeEnd != nil && *filter.TimeStart > *filter.TimeEnd {
		errs.add("timeEnd", "timeEnd must not be before timeStart")
	}
	if err := errs.err(); err != nil {
		return models.FlagFilter{}, err
	}
	return filter, nil
}

func isUnfiltered(filter models.FlagFilter) bool {
	return filter.Type == "" && filter.Status == "" && filter.Identifier == "" && filter.Date == "" &&
		filter.TimeStart == nil && filter.TimeEnd == nil
}

// sourceError maps collaborator failures. Typed errors pass through; a missing or closed
// row means the flag is no longer pending; everything else is an upstream failure.
func sourceError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrIllegalState.Code, appErrors.ErrIllegalState.Status, "flag is missing or no longer pending")
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
}
