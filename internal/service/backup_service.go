package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/repository"
	"github.com/citywatch/dispatch-api/pkg/config"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/geo"
)

type backupRepository interface {
	CreatePending(ctx context.Context, request *models.BackupRequest) error
	FindByID(ctx context.Context, id string) (*models.BackupRequest, error)
	FindPendingByOfficer(ctx context.Context, officerID string) (*models.BackupRequest, error)
	SetAlertedOfficers(ctx context.Context, id string, officerIDs []string) error
	TransitionStatus(ctx context.Context, id string, from, to models.BackupStatus, respondedAt *time.Time) (bool, error)
	CancelPendingByOfficer(ctx context.Context, officerID string, at time.Time) (bool, error)
}

// RequestBackupInput carries the parameters of a new backup request.
// AssignmentID optionally links the request to the assignment the
// officer was working when they called for help.
type RequestBackupInput struct {
	Lat          float64
	Lng          float64
	Reason       string
	AssignmentID *string
}

type presenceReader interface {
	Get(ctx context.Context, officerID string) (*models.OfficerPresence, error)
	ListOnDuty(ctx context.Context) ([]models.OfficerPresence, error)
	SetBackupRequested(ctx context.Context, officerID string, requested bool) error
}

// BackupService dispatches backup requests to nearby on-duty officers.
type BackupService struct {
	repo      backupRepository
	presence  presenceReader
	notify    notifier
	publisher Publisher
	metrics   *MetricsService
	cfg       config.DispatchConfig
	logger    *zap.Logger
}

// NewBackupService constructs the dispatcher.
func NewBackupService(repo backupRepository, presence presenceReader, notify notifier, publisher Publisher, metrics *MetricsService, cfg config.DispatchConfig, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BackupRadiusKM <= 0 {
		cfg.BackupRadiusKM = 5
	}
	if cfg.BackupMaxFanout <= 0 {
		cfg.BackupMaxFanout = 10
	}
	return &BackupService{
		repo:      repo,
		presence:  presence,
		notify:    notify,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// RequestBackup opens a backup request for the calling officer and
// alerts every eligible officer within the configured radius. An
// officer can hold at most one open request at a time.
func (s *BackupService) RequestBackup(ctx context.Context, officerID string, input RequestBackupInput) (*models.BackupDispatch, error) {
	if !geo.ValidCoordinates(input.Lat, input.Lng) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid coordinates")
	}

	requester, err := s.presence.Get(ctx, officerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "officer has no presence record")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load presence")
	}
	if requester.DutyStatus != models.DutyStatusOnDuty {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("officer is %s, only ON_DUTY officers can request backup", requester.DutyStatus))
	}

	request := &models.BackupRequest{
		OfficerID:    officerID,
		AssignmentID: input.AssignmentID,
		Lat:          input.Lat,
		Lng:          input.Lng,
		Reason:       input.Reason,
	}
	if err := s.repo.CreatePending(ctx, request); err != nil {
		if errors.Is(err, repository.ErrPendingExists) {
			winner, findErr := s.repo.FindPendingByOfficer(ctx, officerID)
			if findErr != nil {
				return nil, appErrors.Clone(appErrors.ErrConflict, "officer already has an open backup request")
			}
			return nil, appErrors.Conflict("officer already has an open backup request", winner)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create backup request")
	}

	// The requester holds the flag for the lifetime of the request so
	// other scans skip them.
	if err := s.presence.SetBackupRequested(ctx, officerID, true); err != nil {
		s.logger.Warn("failed to flag requester", zap.String("officer_id", officerID), zap.Error(err))
	}

	eligible, err := s.eligibleOfficers(ctx, officerID, input.Lat, input.Lng)
	if err != nil {
		// the request row is committed; alerting is best-effort
		s.logger.Error("backup eligibility scan failed", zap.String("request_id", request.ID), zap.Error(err))
		eligible = nil
	}

	alerted := make([]string, 0, len(eligible))
	for _, officer := range eligible {
		if err := s.presence.SetBackupRequested(ctx, officer.OfficerID, true); err != nil {
			s.logger.Warn("failed to flag officer for backup", zap.String("officer_id", officer.OfficerID), zap.Error(err))
			continue
		}
		alerted = append(alerted, officer.OfficerID)
		s.alertOfficer(ctx, officer, request)
	}
	request.AlertedOfficers = alerted
	if len(alerted) > 0 {
		if err := s.repo.SetAlertedOfficers(ctx, request.ID, alerted); err != nil {
			s.logger.Error("failed to record alerted officers", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveBackupFanout(len(eligible))
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, TopicDispatchBackup, "backup_requested", request)
	}
	s.logger.Info("backup requested",
		zap.String("request_id", request.ID),
		zap.String("officer_id", officerID),
		zap.Int("eligible", len(eligible)))

	return &models.BackupDispatch{Request: *request, EligibleCount: len(eligible)}, nil
}

// CancelBackup withdraws the caller's pending request and releases the
// alert flags it set. Cancelling when nothing is pending is a no-op.
func (s *BackupService) CancelBackup(ctx context.Context, officerID string) (bool, error) {
	pending, err := s.repo.FindPendingByOfficer(ctx, officerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load backup request")
	}

	cancelled, err := s.repo.CancelPendingByOfficer(ctx, officerID, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel backup request")
	}
	if cancelled {
		s.clearAlertFlags(ctx, pending)
		if s.publisher != nil {
			s.publisher.Publish(ctx, TopicDispatchBackup, "backup_cancelled", map[string]string{"officer_id": officerID})
		}
	}
	return cancelled, nil
}

// AcknowledgeBackup marks a pending request as answered by a responder.
func (s *BackupService) AcknowledgeBackup(ctx context.Context, requestID, responderID string) (*models.BackupRequest, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.OfficerID == responderID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot acknowledge your own backup request")
	}

	now := time.Now().UTC()
	ok, err := s.repo.TransitionStatus(ctx, requestID, models.BackupStatusPending, models.BackupStatusAcknowledged, &now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge backup request")
	}
	if !ok {
		current, findErr := s.repo.FindByID(ctx, requestID)
		if findErr != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "backup request is no longer pending")
		}
		return nil, appErrors.Conflict("backup request is no longer pending", current)
	}

	if s.notify != nil {
		if _, err := s.notify.Notify(ctx, NotifyInput{
			RecipientID:       request.OfficerID,
			Type:              models.NotificationTypeBackup,
			Title:             "Backup acknowledged",
			Message:           "An officer is responding to your backup request",
			Priority:          models.PriorityCritical,
			RelatedEntityType: "backup_request",
			RelatedEntityID:   request.ID,
		}); err != nil {
			s.logger.Warn("acknowledge notification failed", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, TopicDispatchBackup, "backup_acknowledged", map[string]string{
			"request_id":   request.ID,
			"responder_id": responderID,
		})
	}
	return s.loadRequest(ctx, requestID)
}

// ResolveBackup closes an open request and clears the alert flag on
// every officer that was asked to respond.
func (s *BackupService) ResolveBackup(ctx context.Context, requestID, actorID string, isAdmin bool) (*models.BackupRequest, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.OfficerID != actorID && !isAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester or an admin may resolve")
	}
	if !request.Status.Open() {
		return nil, appErrors.IllegalTransition(string(request.Status), string(models.BackupStatusResolved))
	}

	now := time.Now().UTC()
	ok, err := s.repo.TransitionStatus(ctx, requestID, request.Status, models.BackupStatusResolved, &now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve backup request")
	}
	if !ok {
		current, findErr := s.repo.FindByID(ctx, requestID)
		if findErr != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "backup request was concurrently updated")
		}
		return nil, appErrors.Conflict("backup request was concurrently updated", current)
	}

	s.clearAlertFlags(ctx, request)

	if s.publisher != nil {
		s.publisher.Publish(ctx, TopicDispatchBackup, "backup_resolved", map[string]string{"request_id": request.ID})
	}
	return s.loadRequest(ctx, requestID)
}

// eligibleOfficers finds on-duty officers with a known location within
// the dispatch radius, closest first, capped at the fanout limit. The
// requester and officers already flagged for another backup are
// excluded.
func (s *BackupService) eligibleOfficers(ctx context.Context, requesterID string, lat, lng float64) ([]models.EligibleOfficer, error) {
	onDuty, err := s.presence.ListOnDuty(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.EligibleOfficer, 0, len(onDuty))
	for _, p := range onDuty {
		if p.OfficerID == requesterID || !p.AvailableForBackup() || !p.HasLocation() {
			continue
		}
		distance := geo.DistanceKM(lat, lng, *p.Lat, *p.Lng)
		if distance > s.cfg.BackupRadiusKM {
			continue
		}
		eligible = append(eligible, models.EligibleOfficer{OfficerID: p.OfficerID, DistanceKM: distance})
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].DistanceKM != eligible[j].DistanceKM {
			return eligible[i].DistanceKM < eligible[j].DistanceKM
		}
		return eligible[i].OfficerID < eligible[j].OfficerID
	})
	if len(eligible) > s.cfg.BackupMaxFanout {
		eligible = eligible[:s.cfg.BackupMaxFanout]
	}
	return eligible, nil
}

func (s *BackupService) alertOfficer(ctx context.Context, officer models.EligibleOfficer, request *models.BackupRequest) {
	if s.notify != nil {
		if _, err := s.notify.Notify(ctx, NotifyInput{
			RecipientID:       officer.OfficerID,
			Type:              models.NotificationTypeBackup,
			Title:             "Backup requested nearby",
			Message:           fmt.Sprintf("An officer %.1f km away needs backup", officer.DistanceKM),
			Priority:          models.PriorityCritical,
			RelatedEntityType: "backup_request",
			RelatedEntityID:   request.ID,
		}); err != nil {
			s.logger.Warn("backup notification failed", zap.String("officer_id", officer.OfficerID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, OfficerTopic(officer.OfficerID), "backup_requested", request)
	}
}

// clearAlertFlags resets backup_requested for the requester and for the
// officers recorded as alerted on this request. Officers flagged by a
// different open request keep their flag.
func (s *BackupService) clearAlertFlags(ctx context.Context, request *models.BackupRequest) {
	targets := append([]string{request.OfficerID}, request.AlertedOfficers...)
	for _, officerID := range targets {
		if err := s.presence.SetBackupRequested(ctx, officerID, false); err != nil {
			s.logger.Warn("failed to clear backup flag",
				zap.String("request_id", request.ID),
				zap.String("officer_id", officerID),
				zap.Error(err))
		}
	}
}

func (s *BackupService) loadRequest(ctx context.Context, requestID string) (*models.BackupRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "backup request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load backup request")
	}
	return request, nil
}
