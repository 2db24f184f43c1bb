package models

import "time"

// AuditAction constants represent actions recorded in the audit trail.
const (
	AuditActionFlagResolved  = "FLAG_RESOLVED"
	AuditActionFlagRejected  = "FLAG_REJECTED"
	AuditActionRackCompleted = "RACK_COMPLETED"
	AuditActionRackSkipped   = "RACK_SKIPPED"
	AuditActionTaskExited    = "TASK_EXITED"
)

// Audit resources.
const (
	AuditResourceFlag     = "audit_flag"
	AuditResourceWorkTask = "work_task"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
