package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/repository"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
)

type assignmentRepository interface {
	CreateActive(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindActiveByReport(ctx context.Context, reportID string) (*models.Assignment, error)
	FindLatestByReport(ctx context.Context, reportID string) (*models.Assignment, error)
	TransitionStatus(ctx context.Context, id string, from, to models.AssignmentStatus, completedAt *time.Time) (bool, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
}

type reportRepository interface {
	FindByID(ctx context.Context, id string) (*models.Report, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
}

type notifier interface {
	Notify(ctx context.Context, input NotifyInput) (*models.NotificationEvent, error)
}

// AssignRequest describes assignment creation.
type AssignRequest struct {
	ReportID  string `json:"report_id" validate:"required"`
	OfficerID string `json:"officer_id" validate:"required"`
	Notes     string `json:"notes"`
}

// AssignmentService coordinates the report-to-officer assignment
// lifecycle. It is the only writer of assignments and report status.
type AssignmentService struct {
	repo      assignmentRepository
	reports   reportRepository
	users     recipientReader
	notify    notifier
	publisher Publisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the coordinator.
func NewAssignmentService(repo assignmentRepository, reports reportRepository, users recipientReader, notify notifier, publisher Publisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repo:      repo,
		reports:   reports,
		users:     users,
		notify:    notify,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Assign binds an officer to a report. A report that already has an
// active assignment yields a conflict carrying the winning row; the
// caller must unassign explicitly before re-assigning.
func (s *AssignmentService) Assign(ctx context.Context, req AssignRequest, actor models.Actor) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	report, err := s.reports.FindByID(ctx, req.ReportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load report")
	}
	if report.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("report is already %s", report.Status))
	}

	officer, err := s.users.FindByID(ctx, req.OfficerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "officer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load officer")
	}
	if !officer.IsOfficer() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee is not an officer")
	}

	assignment := &models.Assignment{
		ReportID:   req.ReportID,
		OfficerID:  req.OfficerID,
		AssignedBy: actor.ID,
		Notes:      req.Notes,
	}
	if err := s.repo.CreateActive(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrActiveExists) {
			s.observeAssignment("conflict")
			winner, findErr := s.repo.FindActiveByReport(ctx, req.ReportID)
			if findErr != nil {
				return nil, appErrors.Clone(appErrors.ErrConflict, "report already has an active assignment")
			}
			return nil, appErrors.Conflict("report already has an active assignment", winner)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	if err := s.reports.UpdateStatus(ctx, report.ID, models.ReportStatusAssigned); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
	}

	s.observeAssignment("created")
	s.emitAssignmentEvents(ctx, assignment, report, "assignment_created",
		"New assignment", fmt.Sprintf("You were assigned to report %q", report.Title),
		"Report assigned", fmt.Sprintf("An officer was assigned to your report %q", report.Title))

	return s.detail(ctx, assignment.ID)
}

// UpdateStatus moves an assignment along the fixed state machine and
// mirrors the transition onto the report.
func (s *AssignmentService) UpdateStatus(ctx context.Context, assignmentID string, newStatus models.AssignmentStatus, actor models.Actor) (*models.AssignmentDetail, error) {
	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load assignment")
	}

	if !assignment.Status.CanTransition(newStatus) {
		return nil, appErrors.IllegalTransition(string(assignment.Status), string(newStatus))
	}
	if err := s.authorizeTransition(assignment, newStatus, actor); err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if newStatus == models.AssignmentStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	ok, err := s.repo.TransitionStatus(ctx, assignmentID, assignment.Status, newStatus, completedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition assignment")
	}
	if !ok {
		// lost the compare-and-swap to a concurrent transition
		current, findErr := s.repo.FindByID(ctx, assignmentID)
		if findErr != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment was concurrently updated")
		}
		return nil, appErrors.Conflict("assignment was concurrently updated", current)
	}

	report, err := s.reports.FindByID(ctx, assignment.ReportID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if err := s.reports.UpdateStatus(ctx, report.ID, newStatus.ReportStatusFor()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
	}

	s.observeAssignment(statusOutcome(newStatus))
	updated := *assignment
	updated.Status = newStatus
	updated.CompletedAt = completedAt
	s.emitAssignmentEvents(ctx, &updated, report, "assignment_status_changed",
		"Assignment updated", fmt.Sprintf("Assignment for report %q is now %s", report.Title, newStatus),
		"Report update", fmt.Sprintf("Your report %q is now %s", report.Title, newStatus.ReportStatusFor()))

	return s.detail(ctx, assignmentID)
}

// Unassign cancels the active assignment of a report if one exists.
// It is idempotent: with no active assignment it returns the latest
// terminal one (or nil) without error.
func (s *AssignmentService) Unassign(ctx context.Context, reportID string, actor models.Actor) (*models.AssignmentDetail, error) {
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load report")
	}

	active, err := s.repo.FindActiveByReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.latestOrNil(ctx, reportID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load assignment")
	}

	if actor.ID != active.AssignedBy && !actor.IsAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigner or an admin may unassign")
	}

	ok, err := s.repo.TransitionStatus(ctx, active.ID, active.Status, models.AssignmentStatusCancelled, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel assignment")
	}
	if !ok {
		// someone else transitioned it first; treat like the no-op path
		return s.latestOrNil(ctx, reportID)
	}

	if err := s.reports.UpdateStatus(ctx, reportID, models.ReportStatusSubmitted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
	}

	s.observeAssignment("cancelled")
	cancelled := *active
	cancelled.Status = models.AssignmentStatusCancelled
	s.emitAssignmentEvents(ctx, &cancelled, report, "assignment_cancelled",
		"Assignment cancelled", fmt.Sprintf("Your assignment for report %q was cancelled", report.Title),
		"Report update", fmt.Sprintf("Your report %q is back in the queue", report.Title))

	return s.detail(ctx, active.ID)
}

// List returns assignments filtered by officer, status and priority.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *AssignmentService) authorizeTransition(assignment *models.Assignment, newStatus models.AssignmentStatus, actor models.Actor) error {
	if actor.IsAdmin {
		return nil
	}
	if newStatus == models.AssignmentStatusCancelled {
		if actor.ID != assignment.AssignedBy {
			return appErrors.Clone(appErrors.ErrForbidden, "only the assigner or an admin may cancel")
		}
		return nil
	}
	if actor.ID != assignment.OfficerID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the assigned officer may advance the assignment")
	}
	return nil
}

func (s *AssignmentService) latestOrNil(ctx context.Context, reportID string) (*models.AssignmentDetail, error) {
	latest, err := s.repo.FindLatestByReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment history")
	}
	return s.detail(ctx, latest.ID)
}

func (s *AssignmentService) detail(ctx context.Context, assignmentID string) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment detail")
	}
	return detail, nil
}

// emitAssignmentEvents notifies the officer and the reporter and pushes
// the change to live subscribers. Runs strictly after the transition is
// committed; notification failures never surface here.
func (s *AssignmentService) emitAssignmentEvents(ctx context.Context, assignment *models.Assignment, report *models.Report, kind, officerTitle, officerMsg, reporterTitle, reporterMsg string) {
	if s.notify != nil {
		if _, err := s.notify.Notify(ctx, NotifyInput{
			RecipientID:       assignment.OfficerID,
			Type:              models.NotificationTypeAssignment,
			Title:             officerTitle,
			Message:           officerMsg,
			Priority:          report.Priority,
			RelatedEntityType: "assignment",
			RelatedEntityID:   assignment.ID,
		}); err != nil {
			s.logger.Warn("officer notification failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
		}
		if _, err := s.notify.Notify(ctx, NotifyInput{
			RecipientID:       report.ReporterID,
			Type:              models.NotificationTypeStatus,
			Title:             reporterTitle,
			Message:           reporterMsg,
			Priority:          report.Priority,
			RelatedEntityType: "report",
			RelatedEntityID:   report.ID,
		}); err != nil {
			s.logger.Warn("reporter notification failed", zap.String("report_id", report.ID), zap.Error(err))
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, TopicDispatchAssignments, kind, assignment)
		s.publisher.Publish(ctx, OfficerTopic(assignment.OfficerID), kind, assignment)
	}
}

func (s *AssignmentService) observeAssignment(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAssignment(outcome)
	}
}

func statusOutcome(status models.AssignmentStatus) string {
	switch status {
	case models.AssignmentStatusCompleted:
		return "completed"
	case models.AssignmentStatusCancelled:
		return "cancelled"
	default:
		return "advanced"
	}
}
