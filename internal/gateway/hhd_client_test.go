package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

func TestHHDClientFetchWorkTask(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "auditor-1", r.Header.Get("user_id"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"workTaskId":"WT-001","assignedRacks":["R1","R3"],"status":"ASSIGNED"}}`))
	})

	task, err := NewHHDClient(client).FetchWorkTask(context.Background(), "auditor-1")
	require.NoError(t, err)
	assert.Equal(t, "WT-001", task.WorkTaskID)
	assert.Equal(t, "auditor-1", task.AuditorID)
	assert.Equal(t, []string{"R1", "R3"}, task.AssignedRacks)
}

func TestHHDClientScanBox(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R1", body["workOrderId"])
		assert.Equal(t, "B1", body["boxCode"])
		_, _ = w.Write([]byte(`{"boxDetails":{"boxCode":"B1","sku":"S1-XYZ123","eanCode":"1234567890123","mrp":150.00,"expectedQty":12,"eanScanRequired":true}}`))
	})

	box, err := NewHHDClient(client).ScanBox(context.Background(), "WT-001", "R1", "B1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(box.MRP))
	assert.Equal(t, 12, box.ExpectedQty)
}

func TestHHDClientScanBoxMissingDetails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	_, err := NewHHDClient(client).ScanBox(context.Background(), "WT-001", "R1", "B9")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestHHDClientConfirmBoxFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audit/work-order/box/confirm", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":false,"message":"box already audited"}`))
	})

	err := NewHHDClient(client).ConfirmBox(context.Background(), models.BoxConfirmation{WorkTaskID: "WT-001", WorkOrderID: "R1", BoxCode: "B1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "box already audited")
}

func TestHHDClientCompleteRackNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := NewHHDClient(client).CompleteRack(context.Background(), "WT-404", "R1")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}
