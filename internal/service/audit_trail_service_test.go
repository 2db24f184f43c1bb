package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
	"github.com/noah-isme/wms-audit-api/pkg/jobs"
)

type auditWriterStub struct {
	mu      sync.Mutex
	logs    []*models.AuditLog
	listErr error
}

func (w *auditWriterStub) Create(_ context.Context, log *models.AuditLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, log)
	return nil
}

func (w *auditWriterStub) ListByResource(_ context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	if w.listErr != nil {
		return nil, w.listErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.AuditLog
	for _, log := range w.logs {
		if log.Resource == resource && log.ResourceID != nil && *log.ResourceID == resourceID {
			out = append(out, *log)
		}
	}
	return out, nil
}

func TestAuditTrailServicePersistsEntries(t *testing.T) {
	writer := &auditWriterStub{}
	metrics := NewMetricsService()
	svc := NewAuditTrailService(writer, jobs.QueueConfig{Workers: 2, RetryDelay: time.Millisecond}, metrics, nil)
	svc.Start(context.Background())

	svc.Record(AuditEntry{
		UserID:     "supervisor-1",
		Action:     models.AuditActionFlagRejected,
		Resource:   models.AuditResourceFlag,
		ResourceID: "3",
		Payload:    models.RejectionCommand{FlagID: 3, Reason: "Counted again and it matches"},
	})
	svc.Record(AuditEntry{Action: models.AuditActionTaskExited, Resource: models.AuditResourceWorkTask, ResourceID: "WT-001"})
	svc.Stop()

	require.Len(t, writer.logs, 2)
	history, err := svc.History(context.Background(), models.AuditResourceFlag, "3")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].UserID)
	assert.Equal(t, "supervisor-1", *history[0].UserID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(history[0].NewValues, &payload))
	assert.Equal(t, float64(3), payload["flagId"])

	assert.Contains(t, scrapeMetrics(t, metrics), `audit_trail_entries_total{outcome="stored"} 2`)
}

func TestAuditTrailServiceDropsWhenStopped(t *testing.T) {
	writer := &auditWriterStub{}
	svc := NewAuditTrailService(writer, jobs.QueueConfig{}, nil, nil)

	assert.NotPanics(t, func() {
		svc.Record(AuditEntry{Action: models.AuditActionFlagResolved, Resource: models.AuditResourceFlag})
	})
	assert.Empty(t, writer.logs)
}

func TestAuditTrailServiceWithoutWriter(t *testing.T) {
	svc := NewAuditTrailService(nil, jobs.QueueConfig{}, nil, nil)
	svc.Start(context.Background())
	svc.Record(AuditEntry{Action: models.AuditActionRackSkipped, Resource: models.AuditResourceWorkTask, ResourceID: "WT-001"})
	svc.Stop()

	history, err := svc.History(context.Background(), models.AuditResourceWorkTask, "WT-001")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAuditTrailServiceHistoryError(t *testing.T) {
	svc := NewAuditTrailService(&auditWriterStub{listErr: errors.New("db down")}, jobs.QueueConfig{}, nil, nil)

	_, err := svc.History(context.Background(), models.AuditResourceFlag, "1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}
