package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlagType enumerates the discrepancy categories raised during an audit.
type FlagType string

const (
	FlagTypeLost             FlagType = "LOST"
	FlagTypeExcess           FlagType = "EXCESS"
	FlagTypeDamaged          FlagType = "DAMAGED"
	FlagTypeBatchDiscrepancy FlagType = "BATCH_DISCREPANCY"
	FlagTypeWrongSKU         FlagType = "WRONG_SKU"
)

// FlagTypeAll is accepted by list filters and means "no type filter".
const FlagTypeAll = "ALL"

// AllFlagTypes lists every known flag type.
var AllFlagTypes = []FlagType{
	FlagTypeLost,
	FlagTypeExcess,
	FlagTypeDamaged,
	FlagTypeBatchDiscrepancy,
	FlagTypeWrongSKU,
}

// Valid reports whether the type is known.
func (t FlagType) Valid() bool {
	for _, known := range AllFlagTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DisplayPrefix returns the single letter used in display ids.
func (t FlagType) DisplayPrefix() string {
	switch t {
	case FlagTypeLost:
		return "L"
	case FlagTypeExcess:
		return "E"
	case FlagTypeDamaged:
		return "D"
	case FlagTypeBatchDiscrepancy:
		return "B"
	case FlagTypeWrongSKU:
		return "S"
	default:
		return "X"
	}
}

// FlagStatus captures the lifecycle of a flag. PENDING moves to a terminal state exactly once.
type FlagStatus string

const (
	FlagStatusPending  FlagStatus = "PENDING"
	FlagStatusResolved FlagStatus = "RESOLVED"
	FlagStatusRejected FlagStatus = "REJECTED"
)

// Valid reports whether the status is known.
func (s FlagStatus) Valid() bool {
	switch s {
	case FlagStatusPending, FlagStatusResolved, FlagStatusRejected:
		return true
	}
	return false
}

// Flag is a discrepancy record awaiting supervisor review.
type Flag struct {
	ID              int64       `json:"id"`
	Type            FlagType    `json:"type"`
	Identifier      string      `json:"identifier"`
	SKU             string      `json:"sku"`
	Details         FlagDetails `json:"details"`
	CreatedAt       int64       `json:"createdAt"`
	Status          FlagStatus  `json:"status"`
	RejectionReason *string     `json:"rejectionReason,omitempty"`
}

// DisplayID renders the presentation id, e.g. FLAG-E02. It is never used for lookup.
func (f Flag) DisplayID() string {
	return fmt.Sprintf("FLAG-%s%02d", f.Type.DisplayPrefix(), f.ID)
}

// CreatedTime returns the creation instant in UTC.
func (f Flag) CreatedTime() time.Time {
	return time.Unix(f.CreatedAt, 0).UTC()
}

// IsPending reports whether the flag still awaits a decision.
func (f Flag) IsPending() bool {
	return f.Status == FlagStatusPending
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (f Flag) Clone() Flag {
	out := f
	if f.Details != nil {
		out.Details = f.Details.clone()
	}
	if f.RejectionReason != nil {
		reason := *f.RejectionReason
		out.RejectionReason = &reason
	}
	return out
}

// UnmarshalJSON decodes details into the variant matching the flag type.
func (f *Flag) UnmarshalJSON(data []byte) error {
	type alias Flag
	var raw struct {
		alias
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	details, err := DecodeFlagDetails(raw.Type, raw.Details)
	if err != nil {
		return err
	}
	*f = Flag(raw.alias)
	f.Details = details
	return nil
}

// FlagFilter narrows a flag listing. Zero values mean "no constraint".
type FlagFilter struct {
	Type       FlagType   `json:"type,omitempty"`
	Status     FlagStatus `json:"status,omitempty"`
	Identifier string     `json:"identifier,omitempty"`
	Date       string     `json:"date,omitempty"`
	TimeStart  *int64     `json:"timeStart,omitempty"`
	TimeEnd    *int64     `json:"timeEnd,omitempty"`
}

// Matches applies the filter to a single flag.
func (ff FlagFilter) Matches(f Flag) bool {
	if ff.Type != "" && string(ff.Type) != FlagTypeAll && f.Type != ff.Type {
		return false
	}
	if ff.Status != "" && f.Status != ff.Status {
		return false
	}
	if ff.Identifier != "" && !strings.Contains(strings.ToUpper(f.Identifier), strings.ToUpper(ff.Identifier)) {
		return false
	}
	if ff.Date != "" && f.CreatedTime().Format(DateLayout) != ff.Date {
		return false
	}
	if ff.TimeStart != nil && f.CreatedAt < *ff.TimeStart {
		return false
	}
	if ff.TimeEnd != nil && f.CreatedAt > *ff.TimeEnd {
		return false
	}
	return true
}

// DateLayout is the calendar date format used by filters and forms.
const DateLayout = "2006-01-02"

// FlagPage is the result of a flag listing. Degraded is set when the data came from the local fixture.
type FlagPage struct {
	Flags    []Flag `json:"flags"`
	Degraded bool   `json:"degraded"`
}
