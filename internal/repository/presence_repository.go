package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/citywatch/dispatch-api/internal/models"
)

const presenceColumns = `officer_id, duty_status, lat, lng, location_updated_at, backup_requested, updated_at`

// PresenceRepository owns the officer_presence table.
type PresenceRepository struct {
	db *sqlx.DB
}

// NewPresenceRepository constructs the repository.
func NewPresenceRepository(db *sqlx.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Get returns the presence row for an officer.
func (r *PresenceRepository) Get(ctx context.Context, officerID string) (*models.OfficerPresence, error) {
	query := fmt.Sprintf(`SELECT %s FROM officer_presence WHERE officer_id = $1`, presenceColumns)
	var presence models.OfficerPresence
	if err := r.db.GetContext(ctx, &presence, query, officerID); err != nil {
		return nil, err
	}
	return &presence, nil
}

// UpsertLocation applies a location ping last-write-wins by observation
// time. A ping older than the stored one leaves the row untouched and
// returns false; out-of-order network delivery must never regress state.
func (r *PresenceRepository) UpsertLocation(ctx context.Context, officerID string, lat, lng float64, observedAt time.Time) (bool, error) {
	const query = `INSERT INTO officer_presence (officer_id, duty_status, lat, lng, location_updated_at, updated_at)
        VALUES ($1, 'OFF_DUTY', $2, $3, $4, $5)
        ON CONFLICT (officer_id) DO UPDATE
        SET lat = EXCLUDED.lat, lng = EXCLUDED.lng,
            location_updated_at = EXCLUDED.location_updated_at, updated_at = EXCLUDED.updated_at
        WHERE officer_presence.location_updated_at IS NULL
           OR officer_presence.location_updated_at <= EXCLUDED.location_updated_at`
	result, err := r.db.ExecContext(ctx, query, officerID, lat, lng, observedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("upsert presence location: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert presence location rows: %w", err)
	}
	return affected > 0, nil
}

// SetDutyStatus updates the duty status; going OFF_DUTY also clears the
// backup flag so stale requests never block future eligibility.
func (r *PresenceRepository) SetDutyStatus(ctx context.Context, officerID string, status models.DutyStatus) error {
	const query = `INSERT INTO officer_presence (officer_id, duty_status, backup_requested, updated_at)
        VALUES ($1, $2, FALSE, $3)
        ON CONFLICT (officer_id) DO UPDATE
        SET duty_status = EXCLUDED.duty_status,
            backup_requested = CASE WHEN EXCLUDED.duty_status = 'OFF_DUTY' THEN FALSE ELSE officer_presence.backup_requested END,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, officerID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set duty status: %w", err)
	}
	return nil
}

// SetBackupRequested flips the backup flag for an officer.
func (r *PresenceRepository) SetBackupRequested(ctx context.Context, officerID string, requested bool) error {
	const query = `UPDATE officer_presence SET backup_requested = $2, updated_at = $3 WHERE officer_id = $1`
	if _, err := r.db.ExecContext(ctx, query, officerID, requested, time.Now().UTC()); err != nil {
		return fmt.Errorf("set backup requested: %w", err)
	}
	return nil
}

// ListOnDuty returns all officers currently ON_DUTY with their last
// known location.
func (r *PresenceRepository) ListOnDuty(ctx context.Context) ([]models.OfficerPresence, error) {
	query := fmt.Sprintf(`SELECT %s FROM officer_presence WHERE duty_status = 'ON_DUTY' ORDER BY officer_id ASC`, presenceColumns)
	var presences []models.OfficerPresence
	if err := r.db.SelectContext(ctx, &presences, query); err != nil {
		return nil, fmt.Errorf("list on-duty presence: %w", err)
	}
	return presences, nil
}
