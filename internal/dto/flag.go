package dto

import "github.com/noah-isme/wms-audit-api/internal/models"

// FlagListQuery mirrors the supported listing filters. crateId is accepted as an alias of identifier.
type FlagListQuery struct {
	Type       string `form:"type"`
	Status     string `form:"status"`
	Identifier string `form:"identifier"`
	CrateID    string `form:"crateId"`
	Date       string `form:"date"`
	TimeStart  *int64 `form:"timeStart"`
	TimeEnd    *int64 `form:"timeEnd"`
}

// FlagExportQuery adds the output format to the listing filters.
type FlagExportQuery struct {
	FlagListQuery
	Format string `form:"format"`
}

// FlagView is a flag row as rendered to the supervisor panel.
type FlagView struct {
	models.Flag
	DisplayID string `json:"displayId"`
	Summary   string `json:"summary"`
}

// NewFlagView decorates a flag with its presentation fields.
func NewFlagView(flag models.Flag) FlagView {
	return FlagView{Flag: flag, DisplayID: flag.DisplayID(), Summary: models.Summary(flag.Details)}
}

// FlagListResponse wraps a flag listing.
type FlagListResponse struct {
	Flags []FlagView `json:"flags"`
	Total int        `json:"total"`
}

// ResolveFlagRequest carries operator input for a resolution. Only the fields relevant
// to the flag's type are read.
type ResolveFlagRequest struct {
	// DAMAGED
	Reasons  []models.DamageReason `json:"reasons,omitempty" validate:"omitempty,dive"`
	TotalQty *int                  `json:"totalQty,omitempty" validate:"omitempty,min=0"`

	// BATCH_DISCREPANCY; dates are YYYY-MM-DD.
	NewBatchID string `json:"newBatchId,omitempty"`
	MfgDate    string `json:"mfgDate,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"`

	// WRONG_SKU
	ProductSKU string  `json:"productSku,omitempty"`
	BatchID    *string `json:"batchId,omitempty"`
}

// RejectFlagRequest dismisses a flag.
type RejectFlagRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// FlagActionResponse is returned after a resolve or reject; Flags is the refetched list.
type FlagActionResponse struct {
	Flag  FlagView   `json:"flag"`
	Flags []FlagView `json:"flags"`
}
