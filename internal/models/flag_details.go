package models

import (
	"encoding/json"
	"fmt"
)

// FlagDetails is the type-specific payload of a flag. Only the variants in this package implement it.
type FlagDetails interface {
	Kind() FlagType
	clone() FlagDetails
}

// LostDetails describes units missing from a box.
type LostDetails struct {
	Qty   int    `json:"qty"`
	BoxID string `json:"boxId,omitempty"`
}

// ExcessDetails describes units found beyond the expected count.
type ExcessDetails struct {
	Qty                 int   `json:"qty"`
	IsRecoveryCandidate *bool `json:"isRecoveryCandidate,omitempty"`
	RecoveryQty         *int  `json:"recoveryQty,omitempty"`
}

// DamagedDetails describes units found damaged.
type DamagedDetails struct {
	Qty int `json:"qty"`
}

// BatchInfo carries batch attributes sent alongside a batch discrepancy.
type BatchInfo struct {
	BatchID    string  `json:"batchId"`
	MRP        float64 `json:"mrp"`
	MfgDate    int64   `json:"mfgDate"`
	ExpiryDate int64   `json:"expiryDate"`
}

// BatchDiscrepancyDetails describes a mismatch between the expected and the scanned batch.
type BatchDiscrepancyDetails struct {
	Expected      string     `json:"expected"`
	Found         string     `json:"found"`
	ExpectedBatch *BatchInfo `json:"expectedBatch,omitempty"`
	FoundBatch    *BatchInfo `json:"foundBatch,omitempty"`
}

// WrongSKUDetails describes a box holding a different product.
type WrongSKUDetails struct {
	FoundSKU string `json:"foundSku"`
	FoundQty int    `json:"foundQty"`
}

func (LostDetails) Kind() FlagType             { return FlagTypeLost }
func (ExcessDetails) Kind() FlagType           { return FlagTypeExcess }
func (DamagedDetails) Kind() FlagType          { return FlagTypeDamaged }
func (BatchDiscrepancyDetails) Kind() FlagType { return FlagTypeBatchDiscrepancy }
func (WrongSKUDetails) Kind() FlagType         { return FlagTypeWrongSKU }

func (d LostDetails) clone() FlagDetails    { return d }
func (d DamagedDetails) clone() FlagDetails { return d }
func (d WrongSKUDetails) clone() FlagDetails {
	return d
}

func (d ExcessDetails) clone() FlagDetails {
	if d.IsRecoveryCandidate != nil {
		v := *d.IsRecoveryCandidate
		d.IsRecoveryCandidate = &v
	}
	if d.RecoveryQty != nil {
		v := *d.RecoveryQty
		d.RecoveryQty = &v
	}
	return d
}

func (d BatchDiscrepancyDetails) clone() FlagDetails {
	if d.ExpectedBatch != nil {
		v := *d.ExpectedBatch
		d.ExpectedBatch = &v
	}
	if d.FoundBatch != nil {
		v := *d.FoundBatch
		d.FoundBatch = &v
	}
	return d
}

// DecodeFlagDetails decodes a raw details payload for the given flag type.
// Older payloads carry lostQty/damagedQty instead of qty; both are accepted.
func DecodeFlagDetails(t FlagType, raw json.RawMessage) (FlagDetails, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case FlagTypeLost:
		var d struct {
			LostDetails
			LostQty *int `json:"lostQty"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
		if d.Qty == 0 && d.LostQty != nil {
			d.Qty = *d.LostQty
		}
		return d.LostDetails, nil
	case FlagTypeExcess:
		var d ExcessDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
		return d, nil
	case FlagTypeDamaged:
		var d struct {
			DamagedDetails
			DamagedQty *int `json:"damagedQty"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
		if d.Qty == 0 && d.DamagedQty != nil {
			d.Qty = *d.DamagedQty
		}
		return d.DamagedDetails, nil
	case FlagTypeBatchDiscrepancy:
		var d BatchDiscrepancyDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
		return d, nil
	case FlagTypeWrongSKU:
		var d WrongSKUDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown flag type %q", t)
	}
}

// Summary renders the short description shown in list rows and exports.
func Summary(d FlagDetails) string {
	switch v := d.(type) {
	case LostDetails:
		return fmt.Sprintf("Qty: %d", v.Qty)
	case ExcessDetails:
		return fmt.Sprintf("Qty: %d", v.Qty)
	case DamagedDetails:
		return fmt.Sprintf("Qty: %d", v.Qty)
	case BatchDiscrepancyDetails:
		return fmt.Sprintf("Expected: %s, Found: %s", orNA(v.Expected), orNA(v.Found))
	case WrongSKUDetails:
		return fmt.Sprintf("Found Qty: %d", v.FoundQty)
	default:
		return "N/A"
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
