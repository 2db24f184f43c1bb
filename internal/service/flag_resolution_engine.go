package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

const (
	minRejectReasonLen = 10
	maxRejectReasonLen = 500
	maxBatchIDLen      = 50
)

// ResolutionStrategy turns operator input into the payload of a resolution command for one flag type.
type ResolutionStrategy interface {
	Resolve(ctx context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error)
}

// ResolutionStrategyFunc allows using plain functions.
type ResolutionStrategyFunc func(ctx context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error)

// Resolve implements ResolutionStrategy.
func (f ResolutionStrategyFunc) Resolve(ctx context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error) {
	return f(ctx, flag, req)
}

type recoveryLookup interface {
	Checked(ctx context.Context, flagID int64) (models.RecoveryCheck, bool)
}

// FlagResolutionEngine validates operator decisions and emits commands. It never mutates a flag.
type FlagResolutionEngine struct {
	strategies map[models.FlagType]ResolutionStrategy
}

// NewFlagResolutionEngine wires the built-in strategy for every flag type.
func NewFlagResolutionEngine(recovery recoveryLookup) *FlagResolutionEngine {
	return NewFlagResolutionEngineWithStrategies(map[models.FlagType]ResolutionStrategy{
		models.FlagTypeLost:             ResolutionStrategyFunc(resolveLost),
		models.FlagTypeExcess:           excessStrategy{recovery: recovery},
		models.FlagTypeDamaged:          ResolutionStrategyFunc(resolveDamaged),
		models.FlagTypeBatchDiscrepancy: ResolutionStrategyFunc(resolveBatchDiscrepancy),
		models.FlagTypeWrongSKU:         ResolutionStrategyFunc(resolveWrongSKU),
	})
}

// NewFlagResolutionEngineWithStrategies builds an engine from an explicit table.
// It panics when a known flag type has no strategy.
func NewFlagResolutionEngineWithStrategies(strategies map[models.FlagType]ResolutionStrategy) *FlagResolutionEngine {
	table := make(map[models.FlagType]ResolutionStrategy, len(strategies))
	for t, s := range strategies {
		table[t] = s
	}
	for _, t := range models.AllFlagTypes {
		if table[t] == nil {
			panic(fmt.Sprintf("no resolution strategy registered for flag type %s", t))
		}
	}
	return &FlagResolutionEngine{strategies: table}
}

// Resolve validates input for a pending flag and returns the command to send.
func (e *FlagResolutionEngine) Resolve(ctx context.Context, flag models.Flag, req dto.ResolveFlagRequest) (*models.ResolutionCommand, error) {
	if err := requirePending(flag); err != nil {
		return nil, err
	}
	strategy, ok := e.strategies[flag.Type]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrIllegalState, fmt.Sprintf("unsupported flag type %q", flag.Type))
	}
	payload, err := strategy.Resolve(ctx, flag, req)
	if err != nil {
		return nil, err
	}
	return &models.ResolutionCommand{FlagID: flag.ID, Type: flag.Type, Payload: payload}, nil
}

// Reject validates the reason and returns the rejection command.
func (e *FlagResolutionEngine) Reject(flag models.Flag, reason string) (*models.RejectionCommand, error) {
	if err := requirePending(flag); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	switch n := utf8.RuneCountInString(reason); {
	case n < minRejectReasonLen:
		return nil, appErrors.Invalid("reason", fmt.Sprintf("reason must be at least %d characters, got %d", minRejectReasonLen, n))
	case n > maxRejectReasonLen:
		return nil, appErrors.Invalid("reason", fmt.Sprintf("reason must be at most %d characters, got %d", maxRejectReasonLen, n))
	}
	return &models.RejectionCommand{FlagID: flag.ID, Reason: reason}, nil
}

func requirePending(flag models.Flag) error {
	if flag.IsPending() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrIllegalState,
		fmt.Sprintf("flag %s is %s; only PENDING flags can be actioned", flag.DisplayID(), flag.Status))
}

func detailsMismatch(flag models.Flag) error {
	return appErrors.Clone(appErrors.ErrIllegalState, fmt.Sprintf("flag %s carries details of the wrong type", flag.DisplayID()))
}

func resolveLost(_ context.Context, flag models.Flag, _ dto.ResolveFlagRequest) (interface{}, error) {
	if _, ok := flag.Details.(models.LostDetails); !ok {
		return nil, detailsMismatch(flag)
	}
	return models.LostResolution{Type: models.FlagTypeLost}, nil
}

type excessStrategy struct {
	recovery recoveryLookup
}

func (s excessStrategy) Resolve(ctx context.Context, flag models.Flag, _ dto.ResolveFlagRequest) (interface{}, error) {
	details, ok := flag.Details.(models.ExcessDetails)
	if !ok {
		return nil, detailsMismatch(flag)
	}
	var check models.RecoveryCheck
	if s.recovery != nil {
		check, ok = s.recovery.Checked(ctx, flag.ID)
	}
	if s.recovery == nil || !ok {
		return nil, appErrors.Clone(appErrors.ErrIllegalState,
			fmt.Sprintf("run the recovery check for %s before resolving", flag.DisplayID()))
	}
	fresh := details.Qty - check.RecoveryQty
	if fresh < 0 {
		return nil, appErrors.Invalid("recoveryQty",
			fmt.Sprintf("recovery quantity %d exceeds excess quantity %d", check.RecoveryQty, details.Qty))
	}
	return models.ExcessResolution{
		Quantity:       details.Qty,
		RecoveryQty:    check.RecoveryQty,
		FreshInwardQty: fresh,
	}, nil
}

func resolveDamaged(_ context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error) {
	details, ok := flag.Details.(models.DamagedDetails)
	if !ok {
		return nil, detailsMismatch(flag)
	}
	total := details.Qty
	if req.TotalQty != nil {
		total = *req.TotalQty
	}

	errs := &fieldErrors{}
	if len(req.Reasons) == 0 {
		errs.add("reasons", "at least one damage reason is required")
		return nil, errs.err()
	}
	validateDamageReasons(errs, "reasons", req.Reasons, total)
	if err := errs.err(); err != nil {
		return nil, err
	}
	return models.DamagedResolution{Reasons: normaliseReasons(req.Reasons), TotalQty: total}, nil
}

func resolveBatchDiscrepancy(_ context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error) {
	details, ok := flag.Details.(models.BatchDiscrepancyDetails)
	if !ok {
		return nil, detailsMismatch(flag)
	}

	errs := &fieldErrors{}
	batchID := strings.TrimSpace(req.NewBatchID)
	switch {
	case batchID == "":
		errs.add("newBatchId", "batch id is required")
	case utf8.RuneCountInString(batchID) > maxBatchIDLen:
		errs.add("newBatchId", fmt.Sprintf("batch id must be at most %d characters", maxBatchIDLen))
	}
	mfg, mfgOK := parseDateField(errs, "mfgDate", "manufacturing date", req.MfgDate)
	exp, expOK := parseDateField(errs, "expiryDate", "expiry date", req.ExpiryDate)
	if mfgOK && expOK && !exp.After(mfg) {
		errs.add("expiryDate", fmt.Sprintf("expiry date %s must be after manufacturing date %s",
			exp.Format(models.DateLayout), mfg.Format(models.DateLayout)))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	return models.BatchDiscrepancyResolution{BatchResolution: models.BatchResolution{
		Type:       models.BatchResolutionCreate,
		NewBatchID: batchID,
		MfgDate:    mfg.Unix(),
		ExpiryDate: exp.Unix(),
		Remarks: fmt.Sprintf("New batch created due to MRP/date discrepancy. Expected: %s, Found: %s",
			details.Expected, details.Found),
	}}, nil
}

func resolveWrongSKU(_ context.Context, flag models.Flag, req dto.ResolveFlagRequest) (interface{}, error) {
	if _, ok := flag.Details.(models.WrongSKUDetails); !ok {
		return nil, detailsMismatch(flag)
	}
	sku := strings.TrimSpace(req.ProductSKU)
	if sku == "" {
		return nil, appErrors.Invalid("productSku", "corrected SKU is required")
	}
	resolution := models.WrongSKUResolution{ProductSKU: sku}
	if req.BatchID != nil {
		if batch := strings.TrimSpace(*req.BatchID); batch != "" {
			resolution.BatchID = &batch
		}
	}
	return resolution, nil
}

func parseDateField(errs *fieldErrors, field, label, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		errs.add(field, label+" is required")
		return time.Time{}, false
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		errs.add(field, label+" must be formatted YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
