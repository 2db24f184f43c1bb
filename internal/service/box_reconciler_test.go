package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

func TestReconcileBox(t *testing.T) {
	cases := []struct {
		name                        string
		physical, damaged, expected int
		want                        models.BoxReconciliation
	}{
		{"exact count", 12, 0, 12, models.BoxReconciliation{GoodQty: 12}},
		{"short count", 10, 0, 12, models.BoxReconciliation{GoodQty: 10, ExcessQty: -2}},
		{"excess", 15, 0, 12, models.BoxReconciliation{GoodQty: 15, ExcessQty: 3, NeedsCrateRouting: true}},
		{"damaged", 12, 2, 12, models.BoxReconciliation{GoodQty: 10, ExcessQty: -2, NeedsCrateRouting: true}},
		{"all damaged", 4, 4, 12, models.BoxReconciliation{GoodQty: 0, ExcessQty: -12, NeedsCrateRouting: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReconcileBox(tc.physical, tc.damaged, tc.expected)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReconcileBoxRejectsDamagedAbovePhysical(t *testing.T) {
	_, err := ReconcileBox(3, 5, 12)
	require.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	msg := requireFieldError(t, err, "damagedQty")
	assert.Equal(t, "damaged quantity 5 exceeds physical count 3", msg)

	_, err = ReconcileBox(-1, 0, 12)
	requireFieldError(t, err, "physicalCountQty")
}

func TestVerifyEAN(t *testing.T) {
	assert.Equal(t, models.EANStatusPending, VerifyEAN("  ", "123"))
	assert.Equal(t, models.EANStatusSuccess, VerifyEAN(" 123 ", "123"))
	assert.Equal(t, models.EANStatusFail, VerifyEAN("124", "123"))
}
