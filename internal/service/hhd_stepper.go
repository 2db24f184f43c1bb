package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// HHD actions, used in errors, metrics and the audit trail.
const (
	HHDActionStart        = "start"
	HHDActionScanRack     = "scan_rack"
	HHDActionScanBox      = "scan_box"
	HHDActionVerifyEAN    = "verify_ean"
	HHDActionSubmitBox    = "submit_box"
	HHDActionCompleteRack = "complete_rack"
	HHDActionSkipRack     = "skip_rack"
	HHDActionExit         = "exit"
)

// HHDStepper is the state machine behind one auditor's walkthrough of a work task.
// It performs no I/O: callers validate a transition, talk to the WMS, then commit it.
// It is not safe for concurrent use.
type HHDStepper struct {
	task          models.WorkTask
	step          models.AuditStep
	rackIndex     int
	box           *models.BoxDetails
	scannedBox    string
	eanStatus     models.EANStatus
	crateRequired bool
	racks         []models.RackSummary
	skipped       []string
}

// NewHHDStepper starts a walkthrough for task at START_TASK.
func NewHHDStepper(task models.WorkTask) *HHDStepper {
	s := &HHDStepper{task: task.Clone()}
	s.reset()
	return s
}

// Step returns the current step.
func (s *HHDStepper) Step() models.AuditStep {
	return s.step
}

// Task returns a copy of the work task.
func (s *HHDStepper) Task() models.WorkTask {
	return s.task.Clone()
}

// CurrentRack returns the rack being audited, if any.
func (s *HHDStepper) CurrentRack() (string, bool) {
	if s.step == models.StepStartTask || s.rackIndex >= len(s.task.AssignedRacks) {
		return "", false
	}
	return s.task.AssignedRacks[s.rackIndex], true
}

// Snapshot returns the client view of the session.
func (s *HHDStepper) Snapshot() models.StepperSnapshot {
	snap := models.StepperSnapshot{
		WorkTask:      s.task.Clone(),
		Step:          s.step,
		RackIndex:     s.rackIndex,
		ScannedBox:    s.scannedBox,
		EANStatus:     s.eanStatus,
		CrateRequired: s.crateRequired,
		Racks:         make([]models.RackSummary, len(s.racks)),
		SkippedRacks:  append([]string{}, s.skipped...),
	}
	for i, r := range s.racks {
		r.RoutedCrates = append([]string(nil), r.RoutedCrates...)
		snap.Racks[i] = r
	}
	if rack, ok := s.CurrentRack(); ok {
		snap.CurrentRack = &rack
	}
	if s.box != nil {
		box := *s.box
		snap.CurrentBox = &box
	}
	return snap
}

// Start validates the start transition. Completed tasks cannot be restarted.
func (s *HHDStepper) Start() error {
	if s.task.Status == models.WorkTaskStatusCompleted {
		return appErrors.Clone(appErrors.ErrIllegalState,
			fmt.Sprintf("work task %s is already completed", s.task.WorkTaskID))
	}
	if err := s.require(HHDActionStart, models.StepStartTask); err != nil {
		return err
	}
	if len(s.task.AssignedRacks) == 0 {
		return appErrors.Clone(appErrors.ErrIllegalState,
			fmt.Sprintf("work task %s has no assigned racks", s.task.WorkTaskID))
	}
	return nil
}

// Started commits the start transition.
func (s *HHDStepper) Started() {
	s.task.Status = models.WorkTaskStatusInProgress
	s.step = models.StepScanRack
}

// ScanRack checks a scanned barcode against the expected rack, ignoring case.
func (s *HHDStepper) ScanRack(barcode string) error {
	if err := s.require(HHDActionScanRack, models.StepScanRack); err != nil {
		return err
	}
	expected, _ := s.CurrentRack()
	scanned := strings.TrimSpace(barcode)
	if scanned == "" {
		return appErrors.Invalid("barcode", "rack barcode is required")
	}
	if !strings.EqualFold(scanned, expected) {
		return appErrors.Invalid("barcode", fmt.Sprintf("Wrong rack! Expected %s, scanned %s", expected, scanned))
	}
	s.step = models.StepScanBox
	return nil
}

// ScanBox validates a box scan and returns the normalised box code.
func (s *HHDStepper) ScanBox(boxCode string) (string, error) {
	if err := s.require(HHDActionScanBox, models.StepScanBox); err != nil {
		return "", err
	}
	code := strings.TrimSpace(boxCode)
	if code == "" {
		return "", appErrors.Invalid("boxCode", "box code is required")
	}
	return code, nil
}

// BoxScanned commits a box scan with the master data returned by the WMS.
func (s *HHDStepper) BoxScanned(boxCode string, details models.BoxDetails) {
	s.box = &details
	s.scannedBox = boxCode
	s.eanStatus = models.EANStatusPending
	s.crateRequired = false
	s.step = models.StepItemDetails
}

// VerifyEAN records the advisory EAN comparison for the current box.
func (s *HHDStepper) VerifyEAN(ean string) (models.EANStatus, error) {
	if err := s.require(HHDActionVerifyEAN, models.StepItemDetails); err != nil {
		return "", err
	}
	s.eanStatus = VerifyEAN(ean, s.box.EANCode)
	return s.eanStatus, nil
}

// SubmitBox validates the item-details form and builds the confirmation for the WMS.
// When routing is needed and no crate was given the stepper stays on ITEM_DETAILS with a crate demanded.
func (s *HHDStepper) SubmitBox(req dto.BoxAuditRequest) (models.BoxConfirmation, models.BoxReconciliation, error) {
	if err := s.require(HHDActionSubmitBox, models.StepItemDetails); err != nil {
		return models.BoxConfirmation{}, models.BoxReconciliation{}, err
	}
	rec, err := ReconcileBox(req.PhysicalCountQty, req.DamagedQty, s.box.ExpectedQty)
	if err != nil {
		return models.BoxConfirmation{}, models.BoxReconciliation{}, err
	}

	errs := &fieldErrors{}
	ean := strings.TrimSpace(req.EANCode)
	if ean == "" {
		errs.add("eanCode", "EAN code is required")
	}
	if len(req.DamageReasons) > 0 {
		validateDamageReasons(errs, "damageReasons", req.DamageReasons, req.DamagedQty)
	}
	mfg, mfgOK := optionalDate(errs, "mfgDate", req.MfgDate)
	exp, expOK := optionalDate(errs, "expiryDate", req.ExpiryDate)
	if mfgOK && expOK && !exp.After(mfg) {
		errs.add("expiryDate", fmt.Sprintf("expiry date %s must be after manufacturing date %s",
			exp.Format(models.DateLayout), mfg.Format(models.DateLayout)))
	}
	if err := errs.err(); err != nil {
		return models.BoxConfirmation{}, rec, err
	}

	var crate *string
	if req.CrateID != nil {
		if id := strings.TrimSpace(*req.CrateID); id != "" {
			crate = &id
		}
	}
	if rec.NeedsCrateRouting && crate == nil {
		s.crateRequired = true
		return models.BoxConfirmation{}, rec, appErrors.Invalid("crateId",
			fmt.Sprintf("a crate is required to route %d excess and %d damaged units", max(rec.ExcessQty, 0), req.DamagedQty))
	}

	rack, _ := s.CurrentRack()
	confirmation := models.BoxConfirmation{
		WorkTaskID:    s.task.WorkTaskID,
		WorkOrderID:   rack,
		BoxCode:       s.scannedBox,
		EANCode:       ean,
		QtyLeft:       req.PhysicalCountQty,
		MRP:           req.MRP,
		MfgDate:       strings.TrimSpace(req.MfgDate),
		ExpiryDate:    strings.TrimSpace(req.ExpiryDate),
		DamagedQty:    req.DamagedQty,
		DamageReasons: normaliseReasons(req.DamageReasons),
		Crate:         crate,
		GoodQty:       rec.GoodQty,
		ExcessQty:     rec.ExcessQty,
	}
	if confirmation.MRP.IsZero() {
		confirmation.MRP = s.box.MRP
	}
	if len(confirmation.DamageReasons) == 0 {
		confirmation.DamageReasons = nil
	}
	return confirmation, rec, nil
}

// BoxConfirmed commits a box submission and returns to SCAN_BOX.
func (s *HHDStepper) BoxConfirmed(confirmation models.BoxConfirmation, rec models.BoxReconciliation) {
	summary := &s.racks[s.rackIndex]
	summary.BoxesAudited++
	if rec.NeedsCrateRouting && confirmation.Crate != nil {
		summary.BoxesRouted++
		summary.RoutedCrates = appendUnique(summary.RoutedCrates, *confirmation.Crate)
	}
	s.clearBox()
	s.step = models.StepScanBox
}

// LeaveRack validates completing or skipping the current rack and returns its id.
func (s *HHDStepper) LeaveRack(action string, confirm bool) (string, error) {
	if err := s.require(action, models.StepScanRack, models.StepScanBox); err != nil {
		return "", err
	}
	if !confirm {
		return "", appErrors.Invalid("confirm", fmt.Sprintf("%s must be confirmed", strings.ReplaceAll(action, "_", " ")))
	}
	rack, _ := s.CurrentRack()
	return rack, nil
}

// RackLeft commits a rack completion or skip. It reports whether the task is now completed.
func (s *HHDStepper) RackLeft(outcome models.RackOutcome) bool {
	summary := &s.racks[s.rackIndex]
	summary.Outcome = outcome
	if outcome == models.RackOutcomeSkipped {
		summary.NeedsReview = true
		s.skipped = append(s.skipped, summary.RackID)
	}
	s.clearBox()
	s.rackIndex++
	if s.rackIndex < len(s.task.AssignedRacks) {
		s.step = models.StepScanRack
		return false
	}
	s.step = models.StepStartTask
	s.task.Status = models.WorkTaskStatusCompleted
	return true
}

// Exit abandons the walkthrough. Per-box progress is discarded and an in-progress task returns to ASSIGNED.
func (s *HHDStepper) Exit(confirm bool) error {
	if !confirm {
		return appErrors.Invalid("confirm", "exit must be confirmed")
	}
	if s.task.Status == models.WorkTaskStatusInProgress {
		s.task.Status = models.WorkTaskStatusAssigned
	}
	s.reset()
	return nil
}

func (s *HHDStepper) reset() {
	s.step = models.StepStartTask
	s.rackIndex = 0
	s.clearBox()
	s.skipped = nil
	s.racks = make([]models.RackSummary, len(s.task.AssignedRacks))
	for i, rack := range s.task.AssignedRacks {
		s.racks[i] = models.RackSummary{RackID: rack}
	}
}

func (s *HHDStepper) clearBox() {
	s.box = nil
	s.scannedBox = ""
	s.eanStatus = models.EANStatusPending
	s.crateRequired = false
}

func (s *HHDStepper) require(action string, steps ...models.AuditStep) error {
	for _, step := range steps {
		if s.step == step {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrIllegalState,
		fmt.Sprintf("cannot %s at step %s", strings.ReplaceAll(action, "_", " "), s.step))
}

func optionalDate(errs *fieldErrors, field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		errs.add(field, "date must be formatted YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
