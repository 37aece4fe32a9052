package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/citywatch/dispatch-api/internal/models"
)

// ReportRepository handles persistence of crime reports. Report status
// is only written through the assignment workflow.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// FindByID returns a report by its ID.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	const query = `SELECT id, reporter_id, title, description, status, priority, lat, lng, created_at, updated_at
        FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateStatus sets the report status, mirroring assignment transitions.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	const query = `UPDATE reports SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return nil
}
