package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/geo"
)

type presenceRepository interface {
	Get(ctx context.Context, officerID string) (*models.OfficerPresence, error)
	UpsertLocation(ctx context.Context, officerID string, lat, lng float64, observedAt time.Time) (bool, error)
	SetDutyStatus(ctx context.Context, officerID string, status models.DutyStatus) error
	SetBackupRequested(ctx context.Context, officerID string, requested bool) error
	ListOnDuty(ctx context.Context) ([]models.OfficerPresence, error)
}

// PresenceService is the officer presence registry: duty status and
// last-known location, applied last-write-wins per officer.
type PresenceService struct {
	repo      presenceRepository
	publisher Publisher
	logger    *zap.Logger
}

// NewPresenceService constructs the registry.
func NewPresenceService(repo presenceRepository, publisher Publisher, logger *zap.Logger) *PresenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceService{repo: repo, publisher: publisher, logger: logger}
}

// UpdateLocation applies a location ping. Pings older than the stored
// observation are dropped silently; out-of-order network delivery must
// never regress presence state.
func (s *PresenceService) UpdateLocation(ctx context.Context, officerID string, lat, lng float64, observedAt time.Time) error {
	if officerID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "officer id is required")
	}
	if !geo.ValidCoordinates(lat, lng) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid coordinates")
	}
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	applied, err := s.repo.UpsertLocation(ctx, officerID, lat, lng, observedAt.UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update location")
	}
	if !applied {
		s.logger.Debug("stale location ping dropped",
			zap.String("officer_id", officerID), zap.Time("observed_at", observedAt))
	}
	return nil
}

// UpdateDutyStatus records a duty transition. Going OFF_DUTY clears the
// backup flag so a stale request can never block future eligibility.
func (s *PresenceService) UpdateDutyStatus(ctx context.Context, officerID string, status models.DutyStatus) error {
	if officerID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "officer id is required")
	}
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown duty status")
	}

	if err := s.repo.SetDutyStatus(ctx, officerID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update duty status")
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, TopicDispatchPresence, "duty_status_changed", map[string]interface{}{
			"officer_id":  officerID,
			"duty_status": status,
		})
	}
	return nil
}

// Get returns the presence row for one officer.
func (s *PresenceService) Get(ctx context.Context, officerID string) (*models.OfficerPresence, error) {
	presence, err := s.repo.Get(ctx, officerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "officer presence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presence")
	}
	return presence, nil
}

// AvailableForBackup reports whether the officer is on duty and not
// already flagged for backup.
func (s *PresenceService) AvailableForBackup(ctx context.Context, officerID string) (bool, error) {
	presence, err := s.repo.Get(ctx, officerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presence")
	}
	return presence.AvailableForBackup(), nil
}

// ListOnDuty returns all on-duty officers for dashboards and backup
// eligibility scans.
func (s *PresenceService) ListOnDuty(ctx context.Context) ([]models.OfficerPresence, error) {
	presences, err := s.repo.ListOnDuty(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list on-duty officers")
	}
	return presences, nil
}

// SetBackupRequested flips the backup flag; owned by the backup workflow.
func (s *PresenceService) SetBackupRequested(ctx context.Context, officerID string, requested bool) error {
	if err := s.repo.SetBackupRequested(ctx, officerID, requested); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update backup flag")
	}
	return nil
}
