package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

var flagRowColumns = []string{"id", "type", "identifier", "sku", "details", "created_at", "status", "rejection_reason"}

func newFlagRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFlagRepositoryFetchFlagsAppliesFilters(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	rows := sqlmock.NewRows(flagRowColumns).
		AddRow(2, "EXCESS", "CRATE-E-01", "S9-DEF789", `{"qty":10,"isRecoveryCandidate":true,"recoveryQty":7}`, 1757116800, "PENDING", nil).
		AddRow(7, "EXCESS", "CRATE-E-03", "S12-FINAL", `{"qty":1}`, 1757548800, "REJECTED", "Auditor error. Recounted and found correct.")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, identifier, sku, details, created_at, status, rejection_reason FROM audit_flags WHERE type = $1 AND identifier ILIKE $2")).
		WithArgs(models.FlagTypeExcess, "%crate-e%").
		WillReturnRows(rows)

	page, err := repo.FetchFlags(context.Background(), models.FlagFilter{Type: models.FlagTypeExcess, Identifier: "crate-e"})
	require.NoError(t, err)
	require.False(t, page.Degraded)
	require.Len(t, page.Flags, 2)

	excess, ok := page.Flags[0].Details.(models.ExcessDetails)
	require.True(t, ok)
	assert.Equal(t, 10, excess.Qty)
	require.NotNil(t, excess.RecoveryQty)
	assert.Equal(t, 7, *excess.RecoveryQty)

	require.NotNil(t, page.Flags[1].RejectionReason)
	assert.Equal(t, models.FlagStatusRejected, page.Flags[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryFetchFlagsTypeAllIsNoFilter(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectQuery(`FROM audit_flags ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(flagRowColumns))

	page, err := repo.FetchFlags(context.Background(), models.FlagFilter{Type: models.FlagTypeAll})
	require.NoError(t, err)
	assert.Empty(t, page.Flags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryFetchFlagsRejectsUnknownType(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectQuery(`FROM audit_flags`).
		WillReturnRows(sqlmock.NewRows(flagRowColumns).AddRow(9, "MISPLACED", "X", "Y", `{}`, 1, "PENDING", nil))

	_, err := repo.FetchFlags(context.Background(), models.FlagFilter{})
	require.Error(t, err)
}

func TestFlagRepositoryRejectFlag(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_flags SET status = 'REJECTED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RejectFlag(context.Background(), models.RejectionCommand{FlagID: 3, Reason: "Recounted, no excess"}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_flags SET status = 'REJECTED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.RejectFlag(context.Background(), models.RejectionCommand{FlagID: 3, Reason: "Recounted, no excess"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryResolveFlag(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_flags SET status = 'RESOLVED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResolveFlag(context.Background(), models.ResolutionCommand{
		FlagID:  1,
		Type:    models.FlagTypeLost,
		Payload: models.LostResolution{Type: models.FlagTypeLost},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositoryCheckRecoveryGonCapsAtExcess(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_flags WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(flagRowColumns).AddRow(3, "EXCESS", "CRATE-E-02", "S10-GHI456", `{"qty":5}`, 1757203200, "PENDING", nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM((details->>'qty')::int), 0) FROM audit_flags")).
		WithArgs(models.FlagTypeLost, models.FlagStatusResolved, "S10-GHI456").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(8))

	qty, err := repo.CheckRecoveryGon(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositorySeedIfEmptySkipsPopulatedTable(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_flags")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	inserted, err := repo.SeedIfEmpty(context.Background(), DefaultFlagFixtures())
	require.NoError(t, err)
	assert.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagRepositorySeedIfEmptyInserts(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	fixtures := DefaultFlagFixtures()[:2]
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_flags")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for i := range fixtures {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_flags")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(i + 1))
	}

	inserted, err := repo.SeedIfEmpty(context.Background(), fixtures)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}
