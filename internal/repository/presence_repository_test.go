package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/dispatch-api/internal/models"
)

func TestPresenceRepositoryUpsertLocationApplied(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO officer_presence")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.UpsertLocation(context.Background(), "off-1", 52.52, 13.4, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepositoryUpsertLocationStaleIgnored(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresenceRepository(db)

	// the guarded ON CONFLICT update touches no rows for an older ping
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO officer_presence")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.UpsertLocation(context.Background(), "off-1", 52.52, 13.4, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepositorySetDutyStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (officer_id) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetDutyStatus(context.Background(), "off-1", models.DutyStatusOffDuty)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresenceRepository(db)

	lat, lng := 52.52, 13.4
	now := time.Now()
	rows := sqlmock.NewRows([]string{"officer_id", "duty_status", "lat", "lng", "location_updated_at", "backup_requested", "updated_at"}).
		AddRow("off-1", models.DutyStatusOnDuty, lat, lng, now, false, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM officer_presence WHERE officer_id = $1")).
		WithArgs("off-1").
		WillReturnRows(rows)

	presence, err := repo.Get(context.Background(), "off-1")
	require.NoError(t, err)
	require.True(t, presence.AvailableForBackup())
	require.True(t, presence.HasLocation())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepositoryListOnDuty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresenceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"officer_id", "duty_status", "lat", "lng", "location_updated_at", "backup_requested", "updated_at"}).
		AddRow("off-1", models.DutyStatusOnDuty, 52.52, 13.4, now, false, now).
		AddRow("off-2", models.DutyStatusOnDuty, 52.53, 13.41, now, true, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE duty_status = 'ON_DUTY'")).
		WillReturnRows(rows)

	presences, err := repo.ListOnDuty(context.Background())
	require.NoError(t, err)
	require.Len(t, presences, 2)
	require.False(t, presences[1].AvailableForBackup())
	require.NoError(t, mock.ExpectationsWereMet())
}
