package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// FixtureFlagRepository serves flags from an in-memory dataset. Every page it returns is degraded.
type FixtureFlagRepository struct {
	mu    sync.RWMutex
	flags []models.Flag
}

// NewFixtureFlagRepository copies the dataset so the caller's slice is never mutated.
func NewFixtureFlagRepository(flags []models.Flag) *FixtureFlagRepository {
	copied := make([]models.Flag, len(flags))
	for i := range flags {
		copied[i] = flags[i].Clone()
	}
	return &FixtureFlagRepository{flags: copied}
}

// FetchFlags filters the dataset.
func (r *FixtureFlagRepository) FetchFlags(_ context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Flag, 0, len(r.flags))
	for _, flag := range r.flags {
		if filter.Matches(flag) {
			out = append(out, flag.Clone())
		}
	}
	return models.FlagPage{Flags: out, Degraded: true}, nil
}

// RejectFlag closes a pending flag.
func (r *FixtureFlagRepository) RejectFlag(_ context.Context, cmd models.RejectionCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.pendingIndex(cmd.FlagID)
	if idx < 0 {
		return sql.ErrNoRows
	}
	reason := cmd.Reason
	r.flags[idx].Status = models.FlagStatusRejected
	r.flags[idx].RejectionReason = &reason
	return nil
}

// ResolveFlag closes a pending flag.
func (r *FixtureFlagRepository) ResolveFlag(_ context.Context, cmd models.ResolutionCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.pendingIndex(cmd.FlagID)
	if idx < 0 || r.flags[idx].Type != cmd.Type {
		return sql.ErrNoRows
	}
	r.flags[idx].Status = models.FlagStatusResolved
	return nil
}

// CheckRecoveryGon answers from the recovery hints carried on excess details.
func (r *FixtureFlagRepository) CheckRecoveryGon(_ context.Context, flagID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, flag := range r.flags {
		if flag.ID != flagID {
			continue
		}
		excess, ok := flag.Details.(models.ExcessDetails)
		if !ok || excess.IsRecoveryCandidate == nil || !*excess.IsRecoveryCandidate || excess.RecoveryQty == nil {
			return 0, nil
		}
		qty := *excess.RecoveryQty
		if qty > excess.Qty {
			qty = excess.Qty
		}
		return qty, nil
	}
	return 0, sql.ErrNoRows
}

func (r *FixtureFlagRepository) pendingIndex(id int64) int {
	for i := range r.flags {
		if r.flags[i].ID == id {
			if r.flags[i].Status != models.FlagStatusPending {
				return -1
			}
			return i
		}
	}
	return -1
}

// DefaultFlagFixtures returns the demo dataset shown when the upstream is unreachable.
func DefaultFlagFixtures() []models.Flag {
	yes, no := true, false
	recovery := 7
	rejected := "Auditor error. Recounted and found correct."

	return []models.Flag{
		{ID: 1, Type: models.FlagTypeLost, Identifier: "WT-001", SKU: "S1-XYZ123",
			Details: models.LostDetails{Qty: 2, BoxID: "B1"}, CreatedAt: fixtureDate("2025-09-06"), Status: models.FlagStatusPending},
		{ID: 2, Type: models.FlagTypeExcess, Identifier: "CRATE-E-01", SKU: "S9-DEF789",
			Details:   models.ExcessDetails{Qty: 10, IsRecoveryCandidate: &yes, RecoveryQty: &recovery},
			CreatedAt: fixtureDate("2025-09-06"), Status: models.FlagStatusPending},
		{ID: 3, Type: models.FlagTypeExcess, Identifier: "CRATE-E-02", SKU: "S10-GHI456",
			Details:   models.ExcessDetails{Qty: 5, IsRecoveryCandidate: &no},
			CreatedAt: fixtureDate("2025-09-07"), Status: models.FlagStatusPending},
		{ID: 4, Type: models.FlagTypeDamaged, Identifier: "CRATE-D-01", SKU: "S5-MNO111",
			Details: models.DamagedDetails{Qty: 3}, CreatedAt: fixtureDate("2025-09-08"), Status: models.FlagStatusPending},
		{ID: 5, Type: models.FlagTypeBatchDiscrepancy, Identifier: "WT-002", SKU: "S2-ABC456",
			Details:   models.BatchDiscrepancyDetails{Expected: "B-OLD", Found: "B-NEW"},
			CreatedAt: fixtureDate("2025-09-09"), Status: models.FlagStatusPending},
		{ID: 6, Type: models.FlagTypeWrongSKU, Identifier: "CRATE-S-01", SKU: "SKU-WRONG",
			Details:   models.WrongSKUDetails{FoundSKU: "SKU-WRONG", FoundQty: 5},
			CreatedAt: fixtureDate("2025-09-12"), Status: models.FlagStatusPending},
		{ID: 7, Type: models.FlagTypeExcess, Identifier: "CRATE-E-03", SKU: "S12-FINAL",
			Details: models.ExcessDetails{Qty: 1}, CreatedAt: fixtureDate("2025-09-11"),
			Status: models.FlagStatusRejected, RejectionReason: &rejected},
	}
}

func fixtureDate(day string) int64 {
	t, err := time.Parse(models.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return t.Unix()
}
