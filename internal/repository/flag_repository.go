package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// FlagRepository persists audit flags in PostgreSQL.
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository constructs the repository.
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

type flagRow struct {
	ID              int64          `db:"id"`
	Type            string         `db:"type"`
	Identifier      string         `db:"identifier"`
	SKU             string         `db:"sku"`
	Details         []byte         `db:"details"`
	CreatedAt       int64          `db:"created_at"`
	Status          string         `db:"status"`
	RejectionReason sql.NullString `db:"rejection_reason"`
}

func (r flagRow) toModel() (models.Flag, error) {
	flagType := models.FlagType(r.Type)
	details, err := models.DecodeFlagDetails(flagType, r.Details)
	if err != nil {
		return models.Flag{}, fmt.Errorf("flag %d: %w", r.ID, err)
	}
	flag := models.Flag{
		ID:         r.ID,
		Type:       flagType,
		Identifier: r.Identifier,
		SKU:        r.SKU,
		Details:    details,
		CreatedAt:  r.CreatedAt,
		Status:     models.FlagStatus(r.Status),
	}
	if r.RejectionReason.Valid {
		reason := r.RejectionReason.String
		flag.RejectionReason = &reason
	}
	return flag, nil
}

const flagColumns = `id, type, identifier, sku, details, created_at, status, rejection_reason`

// FetchFlags lists flags matching the filter, newest first. Postgres is authoritative so the page is never degraded.
func (r *FlagRepository) FetchFlags(ctx context.Context, filter models.FlagFilter) (models.FlagPage, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString("SELECT " + flagColumns + " FROM audit_flags")

	conditions := make([]string, 0, 6)
	if filter.Type != "" && string(filter.Type) != models.FlagTypeAll {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Identifier != "" {
		args = append(args, "%"+filter.Identifier+"%")
		conditions = append(conditions, fmt.Sprintf("identifier ILIKE $%d", len(args)))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		conditions = append(conditions, fmt.Sprintf("to_char(to_timestamp(created_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $%d", len(args)))
	}
	if filter.TimeStart != nil {
		args = append(args, *filter.TimeStart)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.TimeEnd != nil {
		args = append(args, *filter.TimeEnd)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id ASC")

	var rows []flagRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return models.FlagPage{}, fmt.Errorf("list audit flags: %w", err)
	}
	flags := make([]models.Flag, 0, len(rows))
	for _, row := range rows {
		flag, err := row.toModel()
		if err != nil {
			return models.FlagPage{}, fmt.Errorf("decode audit flag: %w", err)
		}
		flags = append(flags, flag)
	}
	return models.FlagPage{Flags: flags}, nil
}

// GetByID fetches a single flag.
func (r *FlagRepository) GetByID(ctx context.Context, id int64) (*models.Flag, error) {
	query := "SELECT " + flagColumns + " FROM audit_flags WHERE id = $1"
	var row flagRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	flag, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

// RejectFlag marks a pending flag as rejected. Returns sql.ErrNoRows when the flag is missing or already closed.
func (r *FlagRepository) RejectFlag(ctx context.Context, cmd models.RejectionCommand) error {
	query := fmt.Sprintf(`UPDATE audit_flags SET status = '%s', rejection_reason = :reason, closed_at = :closed_at
	WHERE id = :id AND status = '%s'`, models.FlagStatusRejected, models.FlagStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":        cmd.FlagID,
		"reason":    cmd.Reason,
		"closed_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("reject audit flag: %w", err)
	}
	return requireOneRow(result, "reject audit flag")
}

// ResolveFlag marks a pending flag as resolved and stores the resolution payload.
func (r *FlagRepository) ResolveFlag(ctx context.Context, cmd models.ResolutionCommand) error {
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	query := fmt.Sprintf(`UPDATE audit_flags SET status = '%s', resolution = :resolution, closed_at = :closed_at
	WHERE id = :id AND type = :type AND status = '%s'`, models.FlagStatusResolved, models.FlagStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         cmd.FlagID,
		"type":       cmd.Type,
		"resolution": payload,
		"closed_at":  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("resolve audit flag: %w", err)
	}
	return requireOneRow(result, "resolve audit flag")
}

// CheckRecoveryGon returns how many units of an excess flag can be matched against resolved LOST
// flags of the same SKU. The result never exceeds the excess quantity.
func (r *FlagRepository) CheckRecoveryGon(ctx context.Context, flagID int64) (int, error) {
	flag, err := r.GetByID(ctx, flagID)
	if err != nil {
		return 0, fmt.Errorf("load excess flag: %w", err)
	}
	excess, ok := flag.Details.(models.ExcessDetails)
	if !ok {
		return 0, nil
	}

	const query = `SELECT COALESCE(SUM((details->>'qty')::int), 0) FROM audit_flags
	WHERE type = $1 AND status = $2 AND sku = $3`
	var lost int
	if err := r.db.GetContext(ctx, &lost, query, models.FlagTypeLost, models.FlagStatusResolved, flag.SKU); err != nil {
		return 0, fmt.Errorf("sum lost quantity: %w", err)
	}
	if lost > excess.Qty {
		lost = excess.Qty
	}
	if lost < 0 {
		lost = 0
	}
	return lost, nil
}

// Insert stores a new flag, assigning its id.
func (r *FlagRepository) Insert(ctx context.Context, flag *models.Flag) error {
	details, err := json.Marshal(flag.Details)
	if err != nil {
		return fmt.Errorf("marshal flag details: %w", err)
	}
	if flag.Status == "" {
		flag.Status = models.FlagStatusPending
	}
	if flag.CreatedAt == 0 {
		flag.CreatedAt = time.Now().UTC().Unix()
	}
	const query = `INSERT INTO audit_flags (type, identifier, sku, details, created_at, status, rejection_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.GetContext(ctx, &flag.ID, query,
		flag.Type, flag.Identifier, flag.SKU, details, flag.CreatedAt, flag.Status, flag.RejectionReason,
	); err != nil {
		return fmt.Errorf("insert audit flag: %w", err)
	}
	return nil
}

func requireOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SeedIfEmpty inserts the provided flags when the table holds no rows. It returns the number inserted.
func (r *FlagRepository) SeedIfEmpty(ctx context.Context, flags []models.Flag) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM audit_flags"); err != nil {
		return 0, fmt.Errorf("count audit flags: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for i := range flags {
		flag := flags[i].Clone()
		if err := r.Insert(ctx, &flag); err != nil {
			return i, err
		}
	}
	return len(flags), nil
}
