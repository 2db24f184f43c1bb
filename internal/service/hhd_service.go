package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// WorkTaskSource is the collaborator that owns work tasks and box master data.
type WorkTaskSource interface {
	FetchWorkTask(ctx context.Context, auditorID string) (*models.WorkTask, error)
	StartTask(ctx context.Context, workTaskID string) error
	ScanBox(ctx context.Context, workTaskID, rackID, boxCode string) (*models.BoxDetails, error)
	ConfirmBox(ctx context.Context, confirmation models.BoxConfirmation) error
	CompleteRack(ctx context.Context, workTaskID, rackID string) error
}

type hhdSession struct {
	mu      sync.Mutex
	busy    bool
	stepper *HHDStepper
}

// HHDService keeps one stepper per auditor and drives the WMS as the auditor walks their racks.
// Actions on one session are serialised; a second concurrent action is refused.
type HHDService struct {
	source    WorkTaskSource
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*hhdSession
}

// NewHHDService constructs the service.
func NewHHDService(source WorkTaskSource, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *HHDService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &HHDService{
		source:    source,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		sessions:  make(map[string]*hhdSession),
	}
}

// Session returns the auditor's walkthrough, loading the work task on first use.
// An idle session at START_TASK is refreshed so newly assigned work is picked up.
func (s *HHDService) Session(ctx context.Context, auditorID string) (*dto.HHDResponse, error) {
	sess, err := s.session(ctx, auditorID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	current := sess.stepper
	idle := !sess.busy && current.Step() == models.StepStartTask
	sess.mu.Unlock()

	if idle {
		task, err := s.source.FetchWorkTask(ctx, auditorID)
		if err != nil {
			s.logger.Warn("work task refresh failed", zap.String("auditor_id", auditorID), zap.Error(err))
		}
		sess.mu.Lock()
		// the session may have moved on while the WMS was answering
		if err == nil && task != nil && !sess.busy && sess.stepper == current &&
			current.Step() == models.StepStartTask && replacesTask(current.Task(), *task) {
			sess.stepper = NewHHDStepper(*task)
		}
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &dto.HHDResponse{Session: sess.stepper.Snapshot()}, nil
}

// Start begins the walkthrough at the first rack.
func (s *HHDService) Start(ctx context.Context, auditorID string) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, HHDActionStart, func(ctx context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		var task models.WorkTask
		if err := sess.with(func(st *HHDStepper) error {
			task = st.Task()
			return st.Start()
		}); err != nil {
			return err
		}
		if err := s.source.StartTask(ctx, task.WorkTaskID); err != nil {
			return hhdSourceError(err, "failed to start work task")
		}
		_ = sess.with(func(st *HHDStepper) error {
			st.Started()
			return nil
		})
		out.Message = fmt.Sprintf("Work task %s started", task.WorkTaskID)
		return nil
	})
}

// ScanRack checks the scanned rack barcode.
func (s *HHDService) ScanRack(ctx context.Context, auditorID string, req dto.ScanRackRequest) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, HHDActionScanRack, func(_ context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		return sess.with(func(st *HHDStepper) error {
			if err := st.ScanRack(req.Barcode); err != nil {
				return err
			}
			rack, _ := st.CurrentRack()
			out.Message = fmt.Sprintf("Rack %s verified", rack)
			return nil
		})
	})
}

// ScanBox looks up the scanned box on the current rack.
func (s *HHDService) ScanBox(ctx context.Context, auditorID string, req dto.ScanBoxRequest) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, HHDActionScanBox, func(ctx context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		var (
			code, rack string
			task       models.WorkTask
		)
		if err := sess.with(func(st *HHDStepper) error {
			var err error
			code, err = st.ScanBox(req.BoxCode)
			rack, _ = st.CurrentRack()
			task = st.Task()
			return err
		}); err != nil {
			return err
		}
		details, err := s.source.ScanBox(ctx, task.WorkTaskID, rack, code)
		if err != nil {
			return hhdSourceError(err, "failed to scan box")
		}
		if details == nil {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("box %s not found", code))
		}
		_ = sess.with(func(st *HHDStepper) error {
			st.BoxScanned(code, *details)
			return nil
		})
		out.Message = fmt.Sprintf("Box %s scanned successfully", code)
		return nil
	})
}

// VerifyEAN compares a scanned EAN with the current box. A mismatch is reported, not refused.
func (s *HHDService) VerifyEAN(ctx context.Context, auditorID string, req dto.VerifyEANRequest) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, HHDActionVerifyEAN, func(_ context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		return sess.with(func(st *HHDStepper) error {
			status, err := st.VerifyEAN(req.EANCode)
			if err != nil {
				return err
			}
			switch status {
			case models.EANStatusSuccess:
				out.Message = "EAN verified"
			case models.EANStatusFail:
				out.Message = "EAN does not match the box master"
			}
			return nil
		})
	})
}

// SubmitBox confirms the current box with the WMS.
func (s *HHDService) SubmitBox(ctx context.Context, auditorID string, req dto.BoxAuditRequest) (*dto.HHDResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, structError(err, "invalid box audit payload")
	}
	return s.act(ctx, auditorID, HHDActionSubmitBox, func(ctx context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		var (
			confirmation models.BoxConfirmation
			rec          models.BoxReconciliation
		)
		err := sess.with(func(st *HHDStepper) error {
			var err error
			confirmation, rec, err = st.SubmitBox(req)
			return err
		})
		if rec != (models.BoxReconciliation{}) {
			out.Reconciliation = &rec
		}
		if err != nil {
			return err
		}
		if err := s.source.ConfirmBox(ctx, confirmation); err != nil {
			return hhdSourceError(err, "failed to submit box audit")
		}
		_ = sess.with(func(st *HHDStepper) error {
			st.BoxConfirmed(confirmation, rec)
			return nil
		})
		out.Message = "Box audit completed successfully"
		return nil
	})
}

// CompleteRack submits the current rack's work order and advances.
func (s *HHDService) CompleteRack(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error) {
	return s.leaveRack(ctx, auditorID, HHDActionCompleteRack, req.Confirm)
}

// SkipRack advances past the current rack, leaving it for supervisor review.
func (s *HHDService) SkipRack(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error) {
	return s.leaveRack(ctx, auditorID, HHDActionSkipRack, req.Confirm)
}

func (s *HHDService) leaveRack(ctx context.Context, auditorID, action string, confirm bool) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, action, func(ctx context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		var (
			rack string
			task models.WorkTask
		)
		if err := sess.with(func(st *HHDStepper) error {
			var err error
			rack, err = st.LeaveRack(action, confirm)
			task = st.Task()
			return err
		}); err != nil {
			return err
		}

		outcome := models.RackOutcomeSkipped
		auditAction := models.AuditActionRackSkipped
		if action == HHDActionCompleteRack {
			if err := s.source.CompleteRack(ctx, task.WorkTaskID, rack); err != nil {
				return hhdSourceError(err, "failed to complete rack")
			}
			outcome = models.RackOutcomeCompleted
			auditAction = models.AuditActionRackCompleted
		}

		var (
			done    bool
			summary models.RackSummary
		)
		_ = sess.with(func(st *HHDStepper) error {
			done = st.RackLeft(outcome)
			snap := st.Snapshot()
			summary = snap.Racks[snap.RackIndex-1]
			return nil
		})
		s.record(AuditEntry{
			UserID:     auditorID,
			Action:     auditAction,
			Resource:   models.AuditResourceWorkTask,
			ResourceID: task.WorkTaskID,
			Payload:    summary,
		})

		if outcome == models.RackOutcomeSkipped {
			out.Message = fmt.Sprintf("Rack %s skipped", rack)
		} else {
			out.Message = fmt.Sprintf("Rack %s audit completed", rack)
		}
		if done {
			out.Message += ". All racks completed! Work task finished."
		}
		return nil
	})
}

// Exit abandons the walkthrough and returns to the start screen.
func (s *HHDService) Exit(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error) {
	return s.act(ctx, auditorID, HHDActionExit, func(_ context.Context, sess *hhdSession, out *dto.HHDResponse) error {
		var snap models.StepperSnapshot
		if err := sess.with(func(st *HHDStepper) error {
			snap = st.Snapshot()
			return st.Exit(req.Confirm)
		}); err != nil {
			return err
		}
		s.record(AuditEntry{
			UserID:     auditorID,
			Action:     models.AuditActionTaskExited,
			Resource:   models.AuditResourceWorkTask,
			ResourceID: snap.WorkTask.WorkTaskID,
			Payload:    map[string]interface{}{"step": snap.Step, "rackIndex": snap.RackIndex},
		})
		out.Message = "Returned to start screen"
		return nil
	})
}

// act runs one action exclusively on the auditor's session. The response always carries the
// session snapshot, also on failure, so clients can fall back to a safe step.
func (s *HHDService) act(ctx context.Context, auditorID, action string, fn func(context.Context, *hhdSession, *dto.HHDResponse) error) (*dto.HHDResponse, error) {
	sess, err := s.session(ctx, auditorID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.busy {
		sess.mu.Unlock()
		s.metrics.RecordHHDTransition(action, "", OutcomeConflict)
		return nil, appErrors.Clone(appErrors.ErrInFlight, "another action for this work task is already in progress")
	}
	sess.busy = true
	from := sess.stepper.Step()
	sess.mu.Unlock()

	out := &dto.HHDResponse{}
	err = fn(ctx, sess, out)

	sess.mu.Lock()
	sess.busy = false
	out.Session = sess.stepper.Snapshot()
	sess.mu.Unlock()

	s.metrics.RecordHHDTransition(action, from, outcomeOf(err))
	if err != nil {
		s.logger.Debug("hhd action refused",
			zap.String("auditor_id", auditorID),
			zap.String("action", action),
			zap.String("step", string(from)),
			zap.Error(err),
		)
		out.Message = ""
		return out, err
	}
	s.logger.Info("hhd transition",
		zap.String("auditor_id", auditorID),
		zap.String("action", action),
		zap.String("from", string(from)),
		zap.String("to", string(out.Session.Step)),
	)
	return out, nil
}

func (s *HHDService) session(ctx context.Context, auditorID string) (*hhdSession, error) {
	auditorID = strings.TrimSpace(auditorID)
	if auditorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "auditor identity is required")
	}

	s.mu.Lock()
	sess, ok := s.sessions[auditorID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	task, err := s.source.FetchWorkTask(ctx, auditorID)
	if err != nil {
		return nil, hhdSourceError(err, "failed to fetch work task")
	}
	if task == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no work task assigned")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[auditorID]; ok {
		return existing, nil
	}
	sess = &hhdSession{stepper: NewHHDStepper(*task)}
	s.sessions[auditorID] = sess
	return sess, nil
}

func (s *HHDService) record(entry AuditEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(entry)
}

// replacesTask reports whether a refreshed task supersedes the local one. A locally completed
// task only gives way to a different task, since skipped racks never reach the WMS.
func replacesTask(current, fetched models.WorkTask) bool {
	if fetched.WorkTaskID != current.WorkTaskID {
		return true
	}
	return current.Status != models.WorkTaskStatusCompleted && fetched.Status != current.Status
}

func (sess *hhdSession) with(fn func(*HHDStepper) error) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.stepper)
}

func hhdSourceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "work task or box not found")
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
}
