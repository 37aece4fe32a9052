package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/dispatch-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryCreateActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment := &models.Assignment{ReportID: "rep-1", OfficerID: "off-1", AssignedBy: "adm-1"}
	err := repo.CreateActive(context.Background(), assignment)
	require.NoError(t, err)
	require.NotEmpty(t, assignment.ID)
	require.Equal(t, models.AssignmentStatusAssigned, assignment.Status)
	require.False(t, assignment.AssignedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreateActiveConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	// zero rows means the NOT EXISTS guard rejected the insert
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateActive(context.Background(), &models.Assignment{ReportID: "rep-1", OfficerID: "off-1", AssignedBy: "adm-1"})
	require.ErrorIs(t, err, ErrActiveExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindActiveByReport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "report_id", "officer_id", "assigned_by", "status", "notes", "assigned_at", "completed_at"}).
		AddRow("asg-1", "rep-1", "off-1", "adm-1", models.AssignmentStatusAssigned, "", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE report_id = $1 AND status IN ('ASSIGNED', 'IN_PROGRESS')")).
		WithArgs("rep-1").
		WillReturnRows(rows)

	assignment, err := repo.FindActiveByReport(context.Background(), "rep-1")
	require.NoError(t, err)
	require.Equal(t, "asg-1", assignment.ID)
	require.True(t, assignment.Status.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindActiveByReportNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE report_id = $1 AND status IN ('ASSIGNED', 'IN_PROGRESS')")).
		WithArgs("rep-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByReport(context.Background(), "rep-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	completedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET status = $3, completed_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("asg-1", models.AssignmentStatusInProgress, models.AssignmentStatusCompleted, completedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStatus(context.Background(), "asg-1", models.AssignmentStatusInProgress, models.AssignmentStatusCompleted, &completedAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryTransitionStatusLost(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET status = $3, completed_at = $4 WHERE id = $1 AND status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TransitionStatus(context.Background(), "asg-1", models.AssignmentStatusAssigned, models.AssignmentStatusCancelled, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "report_id", "officer_id", "assigned_by", "status", "notes", "assigned_at", "completed_at",
		"officer_name", "officer_badge", "report_title", "report_status", "report_priority",
	}).AddRow("asg-2", "rep-2", "off-1", "adm-1", models.AssignmentStatusInProgress, "", time.Now(), nil,
		"Jamie Reyes", "PD-00042", "Burglary on 5th", models.ReportStatusInProgress, models.PriorityHigh)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.assigned_at DESC, a.id ASC")).
		WithArgs("off-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("off-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	assignments, total, err := repo.List(context.Background(), models.AssignmentFilter{OfficerID: "off-1"})
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "Jamie Reyes", assignments[0].OfficerName)
	require.NoError(t, mock.ExpectationsWereMet())
}
