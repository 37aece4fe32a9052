package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/dispatch-api/internal/models"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
)

// lwwPresenceRepo applies the same last-write-wins rule the real store
// enforces, so service tests exercise the drop-stale path.
type lwwPresenceRepo struct {
	mu       sync.Mutex
	officers map[string]models.OfficerPresence
}

func newLWWPresenceRepo() *lwwPresenceRepo {
	return &lwwPresenceRepo{officers: make(map[string]models.OfficerPresence)}
}

func (m *lwwPresenceRepo) Get(ctx context.Context, officerID string) (*models.OfficerPresence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.officers[officerID]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *lwwPresenceRepo) UpsertLocation(ctx context.Context, officerID string, lat, lng float64, observedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.officers[officerID]
	p.OfficerID = officerID
	if p.LocationUpdatedAt != nil && p.LocationUpdatedAt.After(observedAt) {
		return false, nil
	}
	p.Lat = &lat
	p.Lng = &lng
	p.LocationUpdatedAt = &observedAt
	m.officers[officerID] = p
	return true, nil
}

func (m *lwwPresenceRepo) SetDutyStatus(ctx context.Context, officerID string, status models.DutyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.officers[officerID]
	p.OfficerID = officerID
	p.DutyStatus = status
	if status == models.DutyStatusOffDuty {
		p.BackupRequested = false
	}
	m.officers[officerID] = p
	return nil
}

func (m *lwwPresenceRepo) SetBackupRequested(ctx context.Context, officerID string, requested bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.officers[officerID]
	p.OfficerID = officerID
	p.BackupRequested = requested
	m.officers[officerID] = p
	return nil
}

func (m *lwwPresenceRepo) ListOnDuty(ctx context.Context) ([]models.OfficerPresence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OfficerPresence
	for _, p := range m.officers {
		if p.DutyStatus == models.DutyStatusOnDuty {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestUpdateLocationAppliesNewerPing(t *testing.T) {
	repo := newLWWPresenceRepo()
	svc := NewPresenceService(repo, nil, nil)

	base := time.Now().UTC()
	require.NoError(t, svc.UpdateLocation(context.Background(), "officer-1", 40.0, -74.0, base))
	require.NoError(t, svc.UpdateLocation(context.Background(), "officer-1", 41.0, -75.0, base.Add(time.Minute)))

	p, err := svc.Get(context.Background(), "officer-1")
	require.NoError(t, err)
	assert.Equal(t, 41.0, *p.Lat)
	assert.Equal(t, -75.0, *p.Lng)
}

func TestUpdateLocationDropsStalePing(t *testing.T) {
	repo := newLWWPresenceRepo()
	svc := NewPresenceService(repo, nil, nil)

	base := time.Now().UTC()
	require.NoError(t, svc.UpdateLocation(context.Background(), "officer-1", 40.0, -74.0, base))
	// delivered out of order; must not regress the stored position
	require.NoError(t, svc.UpdateLocation(context.Background(), "officer-1", 10.0, 10.0, base.Add(-time.Hour)))

	p, err := svc.Get(context.Background(), "officer-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, *p.Lat)
	assert.Equal(t, -74.0, *p.Lng)
}

func TestUpdateLocationRejectsInvalidCoordinates(t *testing.T) {
	svc := NewPresenceService(newLWWPresenceRepo(), nil, nil)

	err := svc.UpdateLocation(context.Background(), "officer-1", 120.0, 0.0, time.Now())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUpdateDutyStatusOffDutyClearsBackupFlag(t *testing.T) {
	repo := newLWWPresenceRepo()
	publisher := &mockPublisher{}
	svc := NewPresenceService(repo, publisher, nil)

	require.NoError(t, svc.UpdateDutyStatus(context.Background(), "officer-1", models.DutyStatusOnDuty))
	require.NoError(t, svc.SetBackupRequested(context.Background(), "officer-1", true))
	require.NoError(t, svc.UpdateDutyStatus(context.Background(), "officer-1", models.DutyStatusOffDuty))

	p, err := svc.Get(context.Background(), "officer-1")
	require.NoError(t, err)
	assert.False(t, p.BackupRequested)
	assert.Contains(t, publisher.publishedKinds(), "duty_status_changed")
}

func TestUpdateDutyStatusRejectsUnknownStatus(t *testing.T) {
	svc := NewPresenceService(newLWWPresenceRepo(), nil, nil)

	err := svc.UpdateDutyStatus(context.Background(), "officer-1", models.DutyStatus("NAPPING"))
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAvailableForBackupWithoutPresenceRecord(t *testing.T) {
	svc := NewPresenceService(newLWWPresenceRepo(), nil, nil)

	available, err := svc.AvailableForBackup(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, available)
}
