package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// FixtureWorkTaskRepository serves work tasks and box master data from memory.
type FixtureWorkTaskRepository struct {
	mu            sync.Mutex
	tasks         map[string]*models.WorkTask
	template      *models.WorkTask
	boxes         map[string]models.BoxDetails
	boxTemplate   *models.BoxDetails
	confirmations map[string][]models.BoxConfirmation
	completed     map[string][]string
}

// FixtureWorkTaskOption customises the fixture dataset.
type FixtureWorkTaskOption func(*FixtureWorkTaskRepository)

// WithTaskTemplate assigns a copy of the template to any auditor without a task.
func WithTaskTemplate(task models.WorkTask) FixtureWorkTaskOption {
	return func(r *FixtureWorkTaskRepository) {
		clone := task.Clone()
		r.template = &clone
	}
}

// WithBoxTemplate answers scans of unknown box codes with the template relabelled to the scanned code.
func WithBoxTemplate(box models.BoxDetails) FixtureWorkTaskOption {
	return func(r *FixtureWorkTaskRepository) {
		clone := box
		r.boxTemplate = &clone
	}
}

// NewFixtureWorkTaskRepository builds the repository from explicit tasks and boxes.
func NewFixtureWorkTaskRepository(tasks []models.WorkTask, boxes []models.BoxDetails, opts ...FixtureWorkTaskOption) *FixtureWorkTaskRepository {
	r := &FixtureWorkTaskRepository{
		tasks:         make(map[string]*models.WorkTask, len(tasks)),
		boxes:         make(map[string]models.BoxDetails, len(boxes)),
		confirmations: make(map[string][]models.BoxConfirmation),
		completed:     make(map[string][]string),
	}
	for _, task := range tasks {
		clone := task.Clone()
		r.tasks[clone.AuditorID] = &clone
	}
	for _, box := range boxes {
		r.boxes[strings.ToUpper(box.BoxCode)] = box
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultFixtureWorkTaskRepository serves the demo task and box to every auditor.
func NewDefaultFixtureWorkTaskRepository() *FixtureWorkTaskRepository {
	box := DefaultBoxFixture()
	return NewFixtureWorkTaskRepository(nil, []models.BoxDetails{box},
		WithTaskTemplate(DefaultWorkTaskFixture()),
		WithBoxTemplate(box),
	)
}

// FetchWorkTask returns the auditor's current task.
func (r *FixtureWorkTaskRepository) FetchWorkTask(_ context.Context, auditorID string) (*models.WorkTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[auditorID]
	if !ok {
		if r.template == nil {
			return nil, sql.ErrNoRows
		}
		clone := r.template.Clone()
		clone.AuditorID = auditorID
		task = &clone
		r.tasks[auditorID] = task
	}
	out := task.Clone()
	return &out, nil
}

// StartTask moves an assigned task to in progress.
func (r *FixtureWorkTaskRepository) StartTask(_ context.Context, workTaskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.findTask(workTaskID)
	if task == nil {
		return sql.ErrNoRows
	}
	if task.Status == models.WorkTaskStatusCompleted {
		return fmt.Errorf("work task %s already completed", workTaskID)
	}
	task.Status = models.WorkTaskStatusInProgress
	return nil
}

// ScanBox returns the master data of a box on the given rack.
func (r *FixtureWorkTaskRepository) ScanBox(_ context.Context, workTaskID, rackID, boxCode string) (*models.BoxDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findTask(workTaskID) == nil {
		return nil, sql.ErrNoRows
	}
	if box, ok := r.boxes[strings.ToUpper(boxCode)]; ok {
		return &box, nil
	}
	if r.boxTemplate == nil {
		return nil, sql.ErrNoRows
	}
	box := *r.boxTemplate
	box.BoxCode = boxCode
	return &box, nil
}

// ConfirmBox records a box audit.
func (r *FixtureWorkTaskRepository) ConfirmBox(_ context.Context, confirmation models.BoxConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findTask(confirmation.WorkTaskID) == nil {
		return sql.ErrNoRows
	}
	r.confirmations[confirmation.WorkTaskID] = append(r.confirmations[confirmation.WorkTaskID], confirmation)
	return nil
}

// CompleteRack submits a rack's work order. The task completes once every rack is submitted.
func (r *FixtureWorkTaskRepository) CompleteRack(_ context.Context, workTaskID, rackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.findTask(workTaskID)
	if task == nil {
		return sql.ErrNoRows
	}
	if !containsRack(r.completed[workTaskID], rackID) {
		r.completed[workTaskID] = append(r.completed[workTaskID], rackID)
	}
	if len(r.completed[workTaskID]) >= len(task.AssignedRacks) {
		task.Status = models.WorkTaskStatusCompleted
	}
	return nil
}

// Confirmations returns the boxes confirmed for a task.
func (r *FixtureWorkTaskRepository) Confirmations(workTaskID string) []models.BoxConfirmation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BoxConfirmation(nil), r.confirmations[workTaskID]...)
}

// CompletedRacks returns the racks submitted for a task.
func (r *FixtureWorkTaskRepository) CompletedRacks(workTaskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed[workTaskID]...)
}

func (r *FixtureWorkTaskRepository) findTask(workTaskID string) *models.WorkTask {
	for _, task := range r.tasks {
		if task.WorkTaskID == workTaskID {
			return task
		}
	}
	return nil
}

// DefaultWorkTaskFixture is the demo task used when no WMS is configured.
func DefaultWorkTaskFixture() models.WorkTask {
	return models.WorkTask{
		WorkTaskID:    "WT-001",
		AuditorID:     "Alex (A-1138)",
		AssignedRacks: []string{"R1", "R3"},
		Status:        models.WorkTaskStatusAssigned,
	}
}

// DefaultBoxFixture is the demo box returned for scans.
func DefaultBoxFixture() models.BoxDetails {
	return models.BoxDetails{
		BoxCode:         "B1",
		SKU:             "S1-XYZ123",
		Description:     "Paracetamol 500mg Film-Coated Tablets, 15 per strip",
		EANCode:         "1234567890123",
		Batch:           "BATCH-X",
		MRP:             decimal.RequireFromString("150.00"),
		MfgDate:         "2024-01-15",
		ExpiryDate:      "2026-01-31",
		ExpectedQty:     12,
		EANScanRequired: true,
	}
}

func containsRack(racks []string, rackID string) bool {
	for _, r := range racks {
		if strings.EqualFold(r, rackID) {
			return true
		}
	}
	return false
}
