package models

import "github.com/shopspring/decimal"

// WorkTaskStatus captures the lifecycle of an auditor's work task.
type WorkTaskStatus string

const (
	WorkTaskStatusAssigned   WorkTaskStatus = "ASSIGNED"
	WorkTaskStatusInProgress WorkTaskStatus = "IN_PROGRESS"
	WorkTaskStatusCompleted  WorkTaskStatus = "COMPLETED"
)

// WorkTask is the set of racks assigned to one auditor, audited in order.
type WorkTask struct {
	WorkTaskID    string         `json:"workTaskId"`
	AuditorID     string         `json:"auditorId"`
	AssignedRacks []string       `json:"assignedRacks"`
	Status        WorkTaskStatus `json:"status"`
}

// Clone returns a copy with its own rack slice.
func (t WorkTask) Clone() WorkTask {
	out := t
	out.AssignedRacks = append([]string(nil), t.AssignedRacks...)
	return out
}

// BoxDetails is the master data returned when a box barcode is scanned.
type BoxDetails struct {
	BoxCode         string          `json:"boxCode"`
	SKU             string          `json:"sku"`
	Description     string          `json:"description"`
	EANCode         string          `json:"eanCode"`
	Batch           string          `json:"batch"`
	MRP             decimal.Decimal `json:"mrp"`
	MfgDate         string          `json:"mfgDate"`
	ExpiryDate      string          `json:"expiryDate"`
	ExpectedQty     int             `json:"expectedQty"`
	EANScanRequired bool            `json:"eanScanRequired"`
	ImageURL        *string         `json:"imageUrl,omitempty"`
}

// BoxConfirmation is the per-box audit result sent to the WMS.
type BoxConfirmation struct {
	WorkTaskID    string          `json:"workTaskId"`
	WorkOrderID   string          `json:"workOrderId"`
	BoxCode       string          `json:"boxCode"`
	EANCode       string          `json:"eanCode"`
	QtyLeft       int             `json:"qtyLeft"`
	MRP           decimal.Decimal `json:"mrp"`
	MfgDate       string          `json:"mfgDate"`
	ExpiryDate    string          `json:"expiryDate"`
	DamagedQty    int             `json:"damagedQty"`
	DamageReasons []DamageReason  `json:"damageReasons,omitempty"`
	Crate         *string         `json:"crate,omitempty"`
	GoodQty       int             `json:"goodQty"`
	ExcessQty     int             `json:"excessQty"`
}

// EANStatus is the advisory outcome of comparing a scanned EAN with the box master.
type EANStatus string

const (
	EANStatusPending EANStatus = "pending"
	EANStatusSuccess EANStatus = "success"
	EANStatusFail    EANStatus = "fail"
)

// BoxReconciliation is the quantity split derived from a box count.
type BoxReconciliation struct {
	GoodQty           int  `json:"goodQty"`
	ExcessQty         int  `json:"excessQty"`
	NeedsCrateRouting bool `json:"needsCrateRouting"`
}

// AuditStep enumerates the HHD walkthrough states.
type AuditStep string

const (
	StepStartTask   AuditStep = "START_TASK"
	StepScanRack    AuditStep = "SCAN_RACK"
	StepScanBox     AuditStep = "SCAN_BOX"
	StepItemDetails AuditStep = "ITEM_DETAILS"
)

// RackOutcome records how a rack left the walkthrough.
type RackOutcome string

const (
	RackOutcomeCompleted RackOutcome = "COMPLETED"
	RackOutcomeSkipped   RackOutcome = "SKIPPED"
)

// RackSummary counts the boxes confirmed on a rack.
type RackSummary struct {
	RackID       string      `json:"rackId"`
	BoxesAudited int         `json:"boxesAudited"`
	BoxesRouted  int         `json:"boxesRouted"`
	RoutedCrates []string    `json:"routedCrates,omitempty"`
	Outcome      RackOutcome `json:"outcome,omitempty"`
	NeedsReview  bool        `json:"needsReview"`
}

// StepperSnapshot is the client-facing view of an HHD session.
type StepperSnapshot struct {
	WorkTask      WorkTask      `json:"workTask"`
	Step          AuditStep     `json:"step"`
	RackIndex     int           `json:"rackIndex"`
	CurrentRack   *string       `json:"currentRack,omitempty"`
	CurrentBox    *BoxDetails   `json:"currentBox,omitempty"`
	ScannedBox    string        `json:"scannedBox,omitempty"`
	EANStatus     EANStatus     `json:"eanStatus"`
	CrateRequired bool          `json:"crateRequired"`
	Racks         []RackSummary `json:"racks"`
	SkippedRacks  []string      `json:"skippedRacks"`
}
