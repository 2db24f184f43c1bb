package models

// Damage reasons accepted on DAMAGED resolutions and box audits.
const (
	DamageReasonNearExpiry      = "NEAR_EXPIRY"
	DamageReasonPhysicalDamage  = "PHYSICAL_DAMAGE"
	DamageReasonWaterDamage     = "WATER_DAMAGE"
	DamageReasonTransportDamage = "TRANSPORT_DAMAGE"
	DamageReasonPackagingDamage = "PACKAGING_DAMAGE"
)

// DamageReasons lists the accepted damage reasons in display order.
var DamageReasons = []string{
	DamageReasonNearExpiry,
	DamageReasonPhysicalDamage,
	DamageReasonWaterDamage,
	DamageReasonTransportDamage,
	DamageReasonPackagingDamage,
}

// DamageReason attributes part of a damaged quantity to one cause.
type DamageReason struct {
	Reason   string `json:"reason" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// BatchResolutionCreate is the only batch resolution the workflow emits.
const BatchResolutionCreate = "CREATE"

// BatchResolution instructs the WMS to create a corrected batch. Dates are unix seconds.
type BatchResolution struct {
	Type       string `json:"type"`
	NewBatchID string `json:"newBatchId"`
	MfgDate    int64  `json:"mfgDate"`
	ExpiryDate int64  `json:"expiryDate"`
	Remarks    string `json:"remarks,omitempty"`
}

// LostResolution closes a LOST flag with an outward adjustment note.
type LostResolution struct {
	Type FlagType `json:"type"`
}

// ExcessResolution splits an excess quantity into recovered and freshly inwarded units.
type ExcessResolution struct {
	Quantity       int `json:"quantity"`
	RecoveryQty    int `json:"recoveryQty"`
	FreshInwardQty int `json:"freshInwardQty"`
}

// DamagedResolution attributes the damaged total to reasons.
type DamagedResolution struct {
	Reasons  []DamageReason `json:"reasons"`
	TotalQty int            `json:"totalQty"`
}

// BatchDiscrepancyResolution wraps the batch creation instruction.
type BatchDiscrepancyResolution struct {
	BatchResolution BatchResolution `json:"batchResolution"`
}

// WrongSKUResolution re-points the flagged units at the corrected product.
type WrongSKUResolution struct {
	ProductSKU string  `json:"product_sku"`
	BatchID    *string `json:"batch_id,omitempty"`
}

// ResolutionCommand is the validated decision sent to the flag source.
// Payload holds one of the *Resolution types above, matching Type.
type ResolutionCommand struct {
	FlagID  int64       `json:"flagId"`
	Type    FlagType    `json:"type"`
	Payload interface{} `json:"payload"`
}

// RejectionCommand dismisses a flag with a reason.
type RejectionCommand struct {
	FlagID int64  `json:"flagId"`
	Reason string `json:"reason"`
}

// RecoveryCheck is the memoized answer of a recovery GON lookup.
type RecoveryCheck struct {
	FlagID              int64 `json:"flagId"`
	IsRecoveryCandidate bool  `json:"isRecoveryCandidate"`
	RecoveryQty         int   `json:"recoveryQty"`
}
