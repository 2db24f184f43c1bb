package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
	"github.com/noah-isme/wms-audit-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// AuditEntry describes one audited action.
type AuditEntry struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Payload    interface{}
}

// AuditTrailService writes audit logs in the background.
type AuditTrailService struct {
	writer  auditWriter
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditTrailService builds the service and its queue. writer may be nil, in which case entries are only logged.
func NewAuditTrailService(writer auditWriter, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *AuditTrailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	svc := &AuditTrailService{writer: writer, metrics: metrics, logger: logger}
	cfg.OnExhausted = func(job jobs.Job, _ error) {
		svc.metrics.RecordAuditTrail("dropped")
		if log, ok := job.Payload.(*models.AuditLog); ok {
			logger.Error("audit entry lost", zap.String("action", log.Action), zap.ByteString("values", log.NewValues))
		}
	}
	svc.queue = jobs.NewQueue("audit-trail", svc.handle, cfg)
	return svc
}

// Start launches the queue workers.
func (s *AuditTrailService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes pending entries and stops the workers.
func (s *AuditTrailService) Stop() {
	s.queue.Stop()
}

// Record enqueues an entry. Failures are logged and never surface to the caller.
func (s *AuditTrailService) Record(entry AuditEntry) {
	if s == nil {
		return
	}
	log, err := buildAuditLog(entry)
	if err != nil {
		s.logger.Warn("failed to encode audit entry", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: auditJobType, Payload: log}); err != nil {
		s.logger.Warn("failed to enqueue audit entry", zap.String("action", entry.Action), zap.Error(err))
		s.metrics.RecordAuditTrail("dropped")
	}
}

// History returns the recorded trail for a resource.
func (s *AuditTrailService) History(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	reader, ok := s.writer.(auditReader)
	if !ok {
		return []models.AuditLog{}, nil
	}
	logs, err := reader.ListByResource(ctx, resource, resourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit history")
	}
	return logs, nil
}

func (s *AuditTrailService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	if s.writer == nil {
		s.logger.Info("audit trail",
			zap.String("action", log.Action),
			zap.String("resource", log.Resource),
			zap.Stringp("resource_id", log.ResourceID),
			zap.Stringp("user_id", log.UserID),
			zap.ByteString("values", log.NewValues),
		)
		s.metrics.RecordAuditTrail("logged")
		return nil
	}
	if err := s.writer.Create(ctx, log); err != nil {
		s.metrics.RecordAuditTrail("failed")
		return err
	}
	s.metrics.RecordAuditTrail("stored")
	return nil
}

func buildAuditLog(entry AuditEntry) (*models.AuditLog, error) {
	log := &models.AuditLog{Action: entry.Action, Resource: entry.Resource}
	if entry.UserID != "" {
		userID := entry.UserID
		log.UserID = &userID
	}
	if entry.ResourceID != "" {
		resourceID := entry.ResourceID
		log.ResourceID = &resourceID
	}
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			return nil, err
		}
		log.NewValues = raw
	}
	return log, nil
}
