package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/dispatch-api/internal/models"
)

func TestBackupRepositoryCreatePending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backup_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	request := &models.BackupRequest{OfficerID: "off-1", Reason: "suspect fleeing", Lat: 52.52, Lng: 13.4}
	err := repo.CreatePending(context.Background(), request)
	require.NoError(t, err)
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.BackupStatusPending, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryCreatePendingGuardRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backup_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreatePending(context.Background(), &models.BackupRequest{OfficerID: "off-1", Reason: "again"})
	require.ErrorIs(t, err, ErrPendingExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryCreatePendingUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backup_requests")).
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pqUniqueViolation)})

	err := repo.CreatePending(context.Background(), &models.BackupRequest{OfficerID: "off-1", Reason: "race"})
	require.ErrorIs(t, err, ErrPendingExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryFindPendingByOfficer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	rows := sqlmock.NewRows([]string{"id", "officer_id", "assignment_id", "reason", "lat", "lng", "status", "alerted_officers", "created_at", "responded_at"}).
		AddRow("bkp-1", "off-1", nil, "need backup", 52.52, 13.4, models.BackupStatusPending, "{off-2,off-3}", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE officer_id = $1 AND status = 'PENDING'")).
		WithArgs("off-1").
		WillReturnRows(rows)

	request, err := repo.FindPendingByOfficer(context.Background(), "off-1")
	require.NoError(t, err)
	require.Equal(t, "bkp-1", request.ID)
	require.Equal(t, []string{"off-2", "off-3"}, []string(request.AlertedOfficers))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositorySetAlertedOfficers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE backup_requests SET alerted_officers = $2 WHERE id = $1")).
		WithArgs("bkp-1", pq.StringArray{"off-2", "off-3"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetAlertedOfficers(context.Background(), "bkp-1", []string{"off-2", "off-3"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryCancelPendingByOfficerNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'CANCELLED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cancelled, err := repo.CancelPendingByOfficer(context.Background(), "off-1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	respondedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE backup_requests SET status = $3, responded_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("bkp-1", models.BackupStatusPending, models.BackupStatusAcknowledged, respondedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStatus(context.Background(), "bkp-1", models.BackupStatusPending, models.BackupStatusAcknowledged, &respondedAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backup_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
