package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// ScanRackRequest carries a scanned rack barcode.
type ScanRackRequest struct {
	Barcode string `json:"barcode"`
}

// ScanBoxRequest carries a scanned box barcode.
type ScanBoxRequest struct {
	BoxCode string `json:"boxCode"`
}

// VerifyEANRequest carries a scanned product EAN.
type VerifyEANRequest struct {
	EANCode string `json:"eanCode"`
}

// BoxAuditRequest is the item-details form submitted for the current box.
type BoxAuditRequest struct {
	EANCode          string                `json:"eanCode"`
	PhysicalCountQty int                   `json:"physicalCountQty" validate:"min=0"`
	DamagedQty       int                   `json:"damagedQty" validate:"min=0"`
	MRP              decimal.Decimal       `json:"mrp"`
	MfgDate          string                `json:"mfgDate"`
	ExpiryDate       string                `json:"expiryDate"`
	DamageReasons    []models.DamageReason `json:"damageReasons,omitempty" validate:"omitempty,dive"`
	CrateID          *string               `json:"crateId,omitempty"`
}

// ConfirmRequest acknowledges a destructive HHD action.
type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

// HHDResponse wraps the stepper view after an action.
type HHDResponse struct {
	Session        models.StepperSnapshot    `json:"session"`
	Reconciliation *models.BoxReconciliation `json:"reconciliation,omitempty"`
	Message        string                    `json:"message,omitempty"`
}
