package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/internal/repository"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

type flagSourceStub struct {
	*repository.FixtureFlagRepository

	resolveErr error
	fetchErr   error
	entered    chan struct{}
	release    chan struct{}
	fetches    int
	mu         sync.Mutex
}

func newFlagSourceStub() *flagSourceStub {
	return &flagSourceStub{FixtureFlagRepository: repository.NewFixtureFlagRepository(repository.DefaultFlagFixtures())}
}

func (s *flagSourceStub) FetchFlags(ctx context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	s.mu.Lock()
	s.fetches++
	err := s.fetchErr
	s.mu.Unlock()
	if err != nil {
		return models.FlagPage{}, err
	}
	return s.FixtureFlagRepository.FetchFlags(ctx, filter)
}

func (s *flagSourceStub) ResolveFlag(ctx context.Context, cmd models.ResolutionCommand) error {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	if s.resolveErr != nil {
		return s.resolveErr
	}
	return s.FixtureFlagRepository.ResolveFlag(ctx, cmd)
}

type auditRecorderStub struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *auditRecorderStub) Record(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func newTestFlagService(source FlagSource) (*FlagService, *auditRecorderStub) {
	audit := &auditRecorderStub{}
	svc := NewFlagService(source, nil, nil, nil, WithFlagAuditRecorder(audit))
	return svc, audit
}

func TestFlagServiceListWithoutFilterReturnsEveryFlagOnce(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	page, err := svc.List(context.Background(), dto.FlagListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Flags, len(repository.DefaultFlagFixtures()))
	assert.True(t, page.Degraded)

	seen := make(map[int64]bool)
	for _, f := range page.Flags {
		require.False(t, seen[f.ID], "flag %d listed twice", f.ID)
		seen[f.ID] = true
	}
	for i := 1; i < len(page.Flags); i++ {
		assert.GreaterOrEqual(t, page.Flags[i-1].CreatedAt, page.Flags[i].CreatedAt)
	}
}

func TestFlagServiceListStatusFilter(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	page, err := svc.List(context.Background(), dto.FlagListQuery{Status: "rejected"})
	require.NoError(t, err)
	require.Len(t, page.Flags, 1)
	for _, f := range page.Flags {
		assert.Equal(t, models.FlagStatusRejected, f.Status)
	}

	page, err = svc.List(context.Background(), dto.FlagListQuery{Type: "ALL", Status: "PENDING"})
	require.NoError(t, err)
	require.Len(t, page.Flags, 6)
}

func TestFlagServiceListCrateIDFallsBackToIdentifier(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	page, err := svc.List(context.Background(), dto.FlagListQuery{CrateID: "crate-e"})
	require.NoError(t, err)
	require.Len(t, page.Flags, 3)
}

func TestFlagServiceListRejectsBadQuery(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	_, err := svc.List(context.Background(), dto.FlagListQuery{Type: "MISSING", Date: "06-09-2025"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "type")
	assert.Contains(t, appErr.Fields, "date")
}

func TestFlagServiceResolveLostRefetches(t *testing.T) {
	source := newFlagSourceStub()
	svc, audit := newTestFlagService(source)

	result, err := svc.Resolve(context.Background(), 1, dto.ResolveFlagRequest{}, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusResolved, result.Flag.Status)
	assert.True(t, result.Degraded)
	require.Len(t, result.Flags, 7)
	assert.GreaterOrEqual(t, source.fetches, 2)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionFlagResolved, audit.entries[0].Action)
	assert.Equal(t, "1", audit.entries[0].ResourceID)

	_, err = svc.Resolve(context.Background(), 1, dto.ResolveFlagRequest{}, "supervisor-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrIllegalState.Code))
}

func TestFlagServiceExcessRequiresRecoveryCheck(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())
	ctx := context.Background()

	_, err := svc.Resolve(ctx, 2, dto.ResolveFlagRequest{}, "supervisor-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrIllegalState.Code))

	check, err := svc.CheckRecovery(ctx, 2)
	require.NoError(t, err)
	assert.True(t, check.IsRecoveryCandidate)
	assert.Equal(t, 7, check.RecoveryQty)

	again, err := svc.CheckRecovery(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, check, again)

	result, err := svc.Resolve(ctx, 2, dto.ResolveFlagRequest{}, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusResolved, result.Flag.Status)
}

func TestFlagServiceRecoveryCheckOnlyForExcess(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	_, err := svc.CheckRecovery(context.Background(), 4)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrIllegalState.Code))

	_, err = svc.CheckRecovery(context.Background(), 99)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestFlagServiceResolveDamagedSumMismatch(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())

	_, err := svc.Resolve(context.Background(), 4, dto.ResolveFlagRequest{
		Reasons: []models.DamageReason{{Reason: models.DamageReasonPhysicalDamage, Quantity: 1}},
	}, "supervisor-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "damage quantities add up to 1, expected 3", appErr.Fields["reasons"])

	flag, ok := svc.Store().Get(4)
	require.True(t, ok)
	assert.Equal(t, models.FlagStatusPending, flag.Status)
}

func TestFlagServiceRejectValidation(t *testing.T) {
	svc, audit := newTestFlagService(newFlagSourceStub())
	ctx := context.Background()

	_, err := svc.Reject(ctx, 3, dto.RejectFlagRequest{Reason: "too short"}, "supervisor-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Reject(ctx, 7, dto.RejectFlagRequest{Reason: "Counted again and it matches"}, "supervisor-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrIllegalState.Code))

	result, err := svc.Reject(ctx, 3, dto.RejectFlagRequest{Reason: "  Counted again and it matches  "}, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusRejected, result.Flag.Status)
	require.NotNil(t, result.Flag.RejectionReason)
	assert.Equal(t, "Counted again and it matches", *result.Flag.RejectionReason)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionFlagRejected, audit.entries[0].Action)
}

func TestFlagServiceSourceFailureLeavesFlagPending(t *testing.T) {
	source := newFlagSourceStub()
	source.resolveErr = errors.New("connection reset")
	svc, audit := newTestFlagService(source)

	_, err := svc.Resolve(context.Background(), 1, dto.ResolveFlagRequest{}, "supervisor-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrUpstream.Code))

	flag, ok := svc.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, models.FlagStatusPending, flag.Status)
	assert.Empty(t, audit.entries)
}

func TestFlagServiceRefusesConcurrentActionOnSameFlag(t *testing.T) {
	source := newFlagSourceStub()
	source.entered = make(chan struct{})
	source.release = make(chan struct{})
	svc, _ := newTestFlagService(source)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(ctx, 1, dto.ResolveFlagRequest{}, "supervisor-1")
		done <- err
	}()
	<-source.entered

	_, err := svc.Reject(ctx, 1, dto.RejectFlagRequest{Reason: "Counted again and it matches"}, "supervisor-2")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInFlight.Code))

	close(source.release)
	require.NoError(t, <-done)
}

func TestFlagServiceRefetchFailureKeepsLocalUpdate(t *testing.T) {
	source := newFlagSourceStub()
	svc, _ := newTestFlagService(source)
	ctx := context.Background()

	_, err := svc.List(ctx, dto.FlagListQuery{})
	require.NoError(t, err)

	source.mu.Lock()
	source.fetchErr = errors.New("timeout")
	source.mu.Unlock()

	result, err := svc.Resolve(ctx, 5, dto.ResolveFlagRequest{
		NewBatchID: "B-2025-01",
		MfgDate:    "2025-01-01",
		ExpiryDate: "2026-01-01",
	}, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusResolved, result.Flag.Status)
	require.Len(t, result.Flags, 7)
}

func TestSourceErrorMapping(t *testing.T) {
	assert.True(t, appErrors.IsCode(sourceError(errors.New("boom"), "x"), appErrors.ErrUpstream.Code))
	assert.True(t, appErrors.IsCode(sourceError(appErrors.Clone(appErrors.ErrConflict, "no"), "x"), appErrors.ErrConflict.Code))
	assert.Nil(t, sourceError(nil, "x"))
}

type switchableFlagSource struct {
	mu       sync.Mutex
	down     bool
	flags    []models.Flag
	resolved []models.ResolutionCommand
}

func (s *switchableFlagSource) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *switchableFlagSource) unreachable() error {
	if s.down {
		return appErrors.Wrap(errors.New("dial tcp: connection refused"), appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "unreachable")
	}
	return nil
}

func (s *switchableFlagSource) FetchFlags(_ context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return models.FlagPage{}, err
	}
	out := make([]models.Flag, 0, len(s.flags))
	for _, flag := range s.flags {
		if filter.Matches(flag) {
			out = append(out, flag.Clone())
		}
	}
	return models.FlagPage{Flags: out}, nil
}

func (s *switchableFlagSource) RejectFlag(context.Context, models.RejectionCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreachable()
}

func (s *switchableFlagSource) ResolveFlag(_ context.Context, cmd models.ResolutionCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return err
	}
	s.resolved = append(s.resolved, cmd)
	return nil
}

func (s *switchableFlagSource) CheckRecoveryGon(context.Context, int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 0, s.unreachable()
}

func newLiveExcessSource() *switchableFlagSource {
	return &switchableFlagSource{flags: []models.Flag{{
		ID:         1,
		Type:       models.FlagTypeExcess,
		Identifier: "BOX-LIVE-1",
		SKU:        "SKU-LIVE",
		Details:    models.ExcessDetails{Qty: 10},
		CreatedAt:  1757000000,
		Status:     models.FlagStatusPending,
	}}}
}

func TestFlagServiceDegradedListingDoesNotReplaceLiveFlag(t *testing.T) {
	primary := newLiveExcessSource()
	fixture := repository.NewFixtureFlagRepository(repository.DefaultFlagFixtures())
	svc, _ := newTestFlagService(NewFallbackFlagSource(primary, fixture, nil, nil))
	ctx := context.Background()

	_, err := svc.List(ctx, dto.FlagListQuery{})
	require.NoError(t, err)

	primary.setDown(true)
	page, err := svc.List(ctx, dto.FlagListQuery{Status: "PENDING"})
	require.NoError(t, err)
	require.True(t, page.Degraded)

	primary.setDown(false)
	_, err = svc.Resolve(ctx, 1, dto.ResolveFlagRequest{}, "supervisor-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrIllegalState.Code), "got %v", err)
	assert.Contains(t, err.Error(), "recovery check")
	assert.Empty(t, primary.resolved)

	flag, ok := svc.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, models.FlagTypeExcess, flag.Type)
}

func TestFlagServiceRefusesActionOnFixtureOnlyFlag(t *testing.T) {
	primary := newLiveExcessSource()
	fixture := repository.NewFixtureFlagRepository(repository.DefaultFlagFixtures())
	svc, _ := newTestFlagService(NewFallbackFlagSource(primary, fixture, nil, nil))
	ctx := context.Background()

	primary.setDown(true)
	_, err := svc.List(ctx, dto.FlagListQuery{})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, 3, dto.RejectFlagRequest{Reason: "Counted again and it matches"}, "supervisor-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUpstream.Code))

	primary.setDown(false)
	_, err = svc.Resolve(ctx, 4, dto.ResolveFlagRequest{
		Reasons: []models.DamageReason{{Reason: models.DamageReasonPhysicalDamage, Quantity: 3}},
	}, "supervisor-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	assert.Empty(t, primary.resolved)
}

func TestFlagServiceListTimeBoundsAreEpochSeconds(t *testing.T) {
	svc, _ := newTestFlagService(newFlagSourceStub())
	start := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC).Unix()

	page, err := svc.List(context.Background(), dto.FlagListQuery{TimeStart: &start, TimeEnd: &end})
	require.NoError(t, err)
	ids := make([]int64, 0, len(page.Flags))
	for _, f := range page.Flags {
		ids = append(ids, f.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	startMillis := start * 1000
	page, err = svc.List(context.Background(), dto.FlagListQuery{TimeStart: &startMillis})
	require.NoError(t, err)
	assert.Empty(t, page.Flags)
}
