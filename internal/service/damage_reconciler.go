package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// ReconcileDamage sums the per-reason quantities and reports whether they match total.
func ReconcileDamage(reasons []models.DamageReason, total int) (int, bool) {
	sum := 0
	for _, r := range reasons {
		sum += r.Quantity
	}
	return sum, sum == total
}

// validateDamageReasons checks each reason and the sum rule, recording violations under prefix.
func validateDamageReasons(errs *fieldErrors, prefix string, reasons []models.DamageReason, total int) {
	for i, r := range reasons {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		reason := strings.TrimSpace(r.Reason)
		switch {
		case reason == "":
			errs.add(field+".reason", "reason is required")
		case !knownDamageReason(reason):
			errs.add(field+".reason", fmt.Sprintf("unknown damage reason %q", reason))
		}
		if r.Quantity < 1 {
			errs.add(field+".quantity", "quantity must be at least 1")
		}
	}
	if sum, ok := ReconcileDamage(reasons, total); !ok {
		errs.add(prefix, fmt.Sprintf("damage quantities add up to %d, expected %d", sum, total))
	}
}

func knownDamageReason(reason string) bool {
	for _, known := range models.DamageReasons {
		if reason == known {
			return true
		}
	}
	return false
}

func normaliseReasons(reasons []models.DamageReason) []models.DamageReason {
	out := make([]models.DamageReason, len(reasons))
	for i, r := range reasons {
		out[i] = models.DamageReason{Reason: strings.TrimSpace(r.Reason), Quantity: r.Quantity}
	}
	return out
}
