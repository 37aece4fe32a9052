package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/citywatch/dispatch-api/internal/models"
)

// ErrActiveExists signals that a report already has an ASSIGNED or
// IN_PROGRESS assignment. Callers re-read the winning row and surface it
// as a conflict.
var ErrActiveExists = errors.New("active assignment already exists for report")

const pqUniqueViolation = "23505"

const assignmentColumns = `id, report_id, officer_id, assigned_by, status, notes, assigned_at, completed_at`

// AssignmentRepository handles persistence of report assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// CreateActive inserts a new ASSIGNED assignment if and only if the
// report has no active one. The conditional insert plus the partial
// unique index on (report_id) WHERE status IN ('ASSIGNED','IN_PROGRESS')
// makes the single-active invariant hold across service instances.
func (r *AssignmentRepository) CreateActive(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	assignment.Status = models.AssignmentStatusAssigned

	const query = `INSERT INTO assignments (id, report_id, officer_id, assigned_by, status, notes, assigned_at)
        SELECT $1, $2, $3, $4, $5, $6, $7
        WHERE NOT EXISTS (
            SELECT 1 FROM assignments WHERE report_id = $2 AND status IN ('ASSIGNED', 'IN_PROGRESS')
        )`
	result, err := r.db.ExecContext(ctx, query,
		assignment.ID, assignment.ReportID, assignment.OfficerID, assignment.AssignedBy,
		assignment.Status, assignment.Notes, assignment.AssignedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrActiveExists
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create assignment rows: %w", err)
	}
	if affected == 0 {
		return ErrActiveExists
	}
	return nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindActiveByReport returns the ASSIGNED or IN_PROGRESS assignment for
// a report, or sql.ErrNoRows when none exists.
func (r *AssignmentRepository) FindActiveByReport(ctx context.Context, reportID string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments
        WHERE report_id = $1 AND status IN ('ASSIGNED', 'IN_PROGRESS')`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, reportID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindLatestByReport returns the most recent assignment for a report
// regardless of status.
func (r *AssignmentRepository) FindLatestByReport(ctx context.Context, reportID string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments
        WHERE report_id = $1 ORDER BY assigned_at DESC, id ASC LIMIT 1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, reportID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// TransitionStatus moves an assignment from one status to another using
// compare-and-swap semantics. It returns false when the row was not in
// the expected status, which means a concurrent transition won.
func (r *AssignmentRepository) TransitionStatus(ctx context.Context, id string, from, to models.AssignmentStatus, completedAt *time.Time) (bool, error) {
	const query = `UPDATE assignments SET status = $3, completed_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, completedAt)
	if err != nil {
		return false, fmt.Errorf("transition assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition assignment rows: %w", err)
	}
	return affected > 0, nil
}

// List returns assignment details filtered by officer, status and
// priority, newest first with id as a deterministic tie-break.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	base := `FROM assignments a
JOIN users u ON u.id = a.officer_id
JOIN reports rp ON rp.id = a.report_id`
	var conditions []string
	var args []interface{}

	if filter.OfficerID != "" {
		conditions = append(conditions, fmt.Sprintf("a.officer_id = $%d", len(args)+1))
		args = append(args, filter.OfficerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("rp.priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.report_id, a.officer_id, a.assigned_by, a.status, a.notes, a.assigned_at, a.completed_at,
        u.full_name AS officer_name, u.badge_number AS officer_badge,
        rp.title AS report_title, rp.status AS report_status, rp.priority AS report_priority
        %s ORDER BY a.assigned_at DESC, a.id ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// FindDetailByID returns an assignment with officer and report context.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.report_id, a.officer_id, a.assigned_by, a.status, a.notes, a.assigned_at, a.completed_at,
        u.full_name AS officer_name, u.badge_number AS officer_badge,
        rp.title AS report_title, rp.status AS report_status, rp.priority AS report_priority
        FROM assignments a
        JOIN users u ON u.id = a.officer_id
        JOIN reports rp ON rp.id = a.report_id
        WHERE a.id = $1`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CountActiveByReport returns how many active assignments a report has.
// Used by invariants checks in tests and health tooling.
func (r *AssignmentRepository) CountActiveByReport(ctx context.Context, reportID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignments WHERE report_id = $1 AND status IN ('ASSIGNED', 'IN_PROGRESS')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, reportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count active assignments: %w", err)
	}
	return count, nil
}
