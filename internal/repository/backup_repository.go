package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/citywatch/dispatch-api/internal/models"
)

// ErrPendingExists signals that the officer already has a PENDING backup
// request. Callers re-read the winning row and surface it as a conflict.
var ErrPendingExists = errors.New("pending backup request already exists for officer")

const backupColumns = `id, officer_id, assignment_id, reason, lat, lng, status, alerted_officers, created_at, responded_at`

// BackupRepository handles persistence of backup requests.
type BackupRepository struct {
	db *sqlx.DB
}

// NewBackupRepository constructs the repository.
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// CreatePending inserts a PENDING request if and only if the officer has
// no open one. The conditional insert plus the partial unique index on
// (officer_id) WHERE status = 'PENDING' enforces the invariant across
// concurrent submissions and service instances.
func (r *BackupRepository) CreatePending(ctx context.Context, request *models.BackupRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.Status = models.BackupStatusPending

	if request.AlertedOfficers == nil {
		request.AlertedOfficers = pq.StringArray{}
	}

	const query = `INSERT INTO backup_requests (id, officer_id, assignment_id, reason, lat, lng, status, alerted_officers, created_at)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
        WHERE NOT EXISTS (
            SELECT 1 FROM backup_requests WHERE officer_id = $2 AND status = 'PENDING'
        )`
	result, err := r.db.ExecContext(ctx, query,
		request.ID, request.OfficerID, request.AssignmentID, request.Reason,
		request.Lat, request.Lng, request.Status, request.AlertedOfficers, request.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrPendingExists
		}
		return fmt.Errorf("create backup request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create backup request rows: %w", err)
	}
	if affected == 0 {
		return ErrPendingExists
	}
	return nil
}

// FindByID returns a backup request by its ID.
func (r *BackupRepository) FindByID(ctx context.Context, id string) (*models.BackupRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM backup_requests WHERE id = $1`, backupColumns)
	var request models.BackupRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPendingByOfficer returns the officer's PENDING request, or
// sql.ErrNoRows when none exists.
func (r *BackupRepository) FindPendingByOfficer(ctx context.Context, officerID string) (*models.BackupRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM backup_requests WHERE officer_id = $1 AND status = 'PENDING'`, backupColumns)
	var request models.BackupRequest
	if err := r.db.GetContext(ctx, &request, query, officerID); err != nil {
		return nil, err
	}
	return &request, nil
}

// SetAlertedOfficers records which officers were flagged for a request.
func (r *BackupRepository) SetAlertedOfficers(ctx context.Context, id string, officerIDs []string) error {
	const query = `UPDATE backup_requests SET alerted_officers = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, pq.StringArray(officerIDs)); err != nil {
		return fmt.Errorf("set alerted officers: %w", err)
	}
	return nil
}

// TransitionStatus moves a request between statuses with
// compare-and-swap semantics, returning false when the row was not in
// the expected status.
func (r *BackupRepository) TransitionStatus(ctx context.Context, id string, from, to models.BackupStatus, respondedAt *time.Time) (bool, error) {
	const query = `UPDATE backup_requests SET status = $3, responded_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, respondedAt)
	if err != nil {
		return false, fmt.Errorf("transition backup request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition backup request rows: %w", err)
	}
	return affected > 0, nil
}

// CancelPendingByOfficer transitions an officer's PENDING request to
// CANCELLED. It returns false when there was nothing to cancel.
func (r *BackupRepository) CancelPendingByOfficer(ctx context.Context, officerID string, at time.Time) (bool, error) {
	const query = `UPDATE backup_requests SET status = 'CANCELLED', responded_at = $2
        WHERE officer_id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, officerID, at)
	if err != nil {
		return false, fmt.Errorf("cancel backup request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel backup request rows: %w", err)
	}
	return affected > 0, nil
}
