package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// ReconcileBox splits a physical count into good and excess units and decides crate routing.
// Damaged units above the physical count are rejected.
func ReconcileBox(physicalQty, damagedQty, expectedQty int) (models.BoxReconciliation, error) {
	if physicalQty < 0 {
		return models.BoxReconciliation{}, appErrors.Invalid("physicalCountQty", "physical count cannot be negative")
	}
	if damagedQty < 0 {
		return models.BoxReconciliation{}, appErrors.Invalid("damagedQty", "damaged quantity cannot be negative")
	}
	good := physicalQty - damagedQty
	if good < 0 {
		return models.BoxReconciliation{}, appErrors.Invalid("damagedQty",
			fmt.Sprintf("damaged quantity %d exceeds physical count %d", damagedQty, physicalQty))
	}
	excess := good - expectedQty
	return models.BoxReconciliation{
		GoodQty:           good,
		ExcessQty:         excess,
		NeedsCrateRouting: excess > 0 || damagedQty > 0,
	}, nil
}

// VerifyEAN compares a scanned EAN with the box master. An empty scan is still pending.
// The outcome is advisory and never blocks submission.
func VerifyEAN(scanned, expected string) models.EANStatus {
	scanned = strings.TrimSpace(scanned)
	if scanned == "" {
		return models.EANStatusPending
	}
	if scanned == strings.TrimSpace(expected) {
		return models.EANStatusSuccess
	}
	return models.EANStatusFail
}
