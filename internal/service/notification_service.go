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
	"github.com/citywatch/dispatch-api/pkg/config"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/jobs"
)

// Mailer delivers a notification over email. Implementations are
// external providers treated as black boxes.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a notification over SMS.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// Publisher pushes fire-and-forget events to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic, kind string, payload interface{})
}

type notificationRepository interface {
	Create(ctx context.Context, event *models.NotificationEvent) error
	FindByID(ctx context.Context, id string) (*models.NotificationEvent, error)
	SetChannelStatus(ctx context.Context, id string, channel models.NotificationChannel, status models.DeliveryStatus) error
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (bool, error)
	MarkManyRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)
	ListUnread(ctx context.Context, recipientID string, page, pageSize int) ([]models.NotificationEvent, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type recipientReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type unreadCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NotifyInput describes one logical notification to fan out.
type NotifyInput struct {
	RecipientID       string                  `validate:"required"`
	Type              models.NotificationType `validate:"required"`
	Title             string                  `validate:"required"`
	Message           string                  `validate:"required"`
	Priority          models.ReportPriority   `validate:"required"`
	RelatedEntityType string
	RelatedEntityID   string
}

// deliveryJob is the payload queued per outbound channel attempt.
type deliveryJob struct {
	EventID string
	Channel models.NotificationChannel
	To      string
	Title   string
	Message string
}

// NotificationService fans one logical event out across channels. The
// in-app record is authoritative: the call succeeds once it is written,
// and email/SMS outcomes are recorded per channel without ever failing
// the caller.
type NotificationService struct {
	repo      notificationRepository
	users     recipientReader
	cache     unreadCache
	mailer    Mailer
	sms       SMSSender
	publisher Publisher
	queue     *jobs.Queue
	cfg       config.NotifyConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNotificationService constructs the fanout service.
func NewNotificationService(repo notificationRepository, users recipientReader, cache unreadCache, mailer Mailer, sms SMSSender, publisher Publisher, cfg config.NotifyConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 5 * time.Second
	}
	if cfg.UnreadCacheTTL <= 0 {
		cfg.UnreadCacheTTL = time.Minute
	}

	s := &NotificationService{
		repo:      repo,
		users:     users,
		cache:     cache,
		mailer:    mailer,
		sms:       sms,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("notification-channels", s.deliver, jobs.QueueConfig{
		Workers:    cfg.WorkerCount,
		BufferSize: cfg.QueueSize,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the channel delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify persists the in-app event and schedules best-effort email and
// SMS deliveries. Channel failures are recorded on the event and never
// returned to the caller.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) (*models.NotificationEvent, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	recipient, err := s.users.FindByID(ctx, input.RecipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load recipient")
	}

	channels := models.ChannelStatuses{models.ChannelInApp: models.DeliveryDelivered}
	if s.cfg.EmailEnabled && s.mailer != nil && recipient.Email != "" {
		channels[models.ChannelEmail] = models.DeliveryPending
	} else {
		channels[models.ChannelEmail] = models.DeliverySkipped
	}
	if s.cfg.SMSEnabled && s.sms != nil && recipient.Phone != "" {
		channels[models.ChannelSMS] = models.DeliveryPending
	} else {
		channels[models.ChannelSMS] = models.DeliverySkipped
	}

	event := &models.NotificationEvent{
		RecipientID: input.RecipientID,
		Type:        input.Type,
		Title:       input.Title,
		Message:     input.Message,
		Priority:    input.Priority,
		Channels:    channels,
	}
	if input.RelatedEntityType != "" {
		event.RelatedEntityType = &input.RelatedEntityType
	}
	if input.RelatedEntityID != "" {
		event.RelatedEntityID = &input.RelatedEntityID
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notification")
	}

	// outbound channels only after the in-app record is durable
	if channels[models.ChannelEmail] == models.DeliveryPending {
		s.schedule(event.ID, models.ChannelEmail, recipient.Email, input.Title, input.Message)
	}
	if channels[models.ChannelSMS] == models.DeliveryPending {
		s.schedule(event.ID, models.ChannelSMS, recipient.Phone, input.Title, input.Message)
	}

	s.invalidateUnread(ctx, input.RecipientID)

	return event, nil
}

func (s *NotificationService) schedule(eventID string, channel models.NotificationChannel, to, title, message string) {
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", eventID, channel),
		Type:    string(channel),
		Payload: deliveryJob{EventID: eventID, Channel: channel, To: to, Title: title, Message: message},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("channel delivery enqueue failed",
			zap.String("event_id", eventID), zap.String("channel", string(channel)), zap.Error(err))
		s.recordOutcome(context.Background(), eventID, channel, models.DeliveryFailed)
	}
}

// deliver performs one bounded channel attempt. It always returns nil:
// a failed provider degrades to a recorded status, never a retried send
// that could reach the recipient twice.
func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(deliveryJob)
	if !ok {
		s.logger.Error("unexpected delivery payload", zap.String("job_id", job.ID))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	defer cancel()

	var err error
	switch payload.Channel {
	case models.ChannelEmail:
		err = s.mailer.Send(callCtx, payload.To, payload.Title, payload.Message)
	case models.ChannelSMS:
		err = s.sms.Send(callCtx, payload.To, payload.Message)
	default:
		s.logger.Error("unknown delivery channel", zap.String("channel", string(payload.Channel)))
		return nil
	}

	status := models.DeliveryDelivered
	if err != nil {
		status = models.DeliveryFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = models.DeliveryTimeout
		}
		s.logger.Warn("channel delivery failed",
			zap.String("event_id", payload.EventID), zap.String("channel", string(payload.Channel)), zap.Error(err))
	}
	s.recordOutcome(ctx, payload.EventID, payload.Channel, status)
	return nil
}

func (s *NotificationService) recordOutcome(ctx context.Context, eventID string, channel models.NotificationChannel, status models.DeliveryStatus) {
	if status != models.DeliveryDelivered && s.metrics != nil {
		s.metrics.RecordChannelFailure(string(channel))
	}
	if err := s.repo.SetChannelStatus(ctx, eventID, channel, status); err != nil {
		s.logger.Error("failed to record delivery status",
			zap.String("event_id", eventID), zap.String("channel", string(channel)), zap.Error(err))
	}
}

// Broadcast pushes a fire-and-forget event to a live topic. Nothing is
// persisted and delivery is at-most-once.
func (s *NotificationService) Broadcast(ctx context.Context, topic, kind string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, topic, kind, payload)
}

// MarkRead records the read timestamp once; repeated calls are no-ops.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	changed, err := s.repo.MarkRead(ctx, recipientID, notificationID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if changed {
		s.invalidateUnread(ctx, recipientID)
		return nil
	}
	// distinguish "already read" (no-op) from "not yours / missing"
	event, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if event.RecipientID != recipientID {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkManyRead marks a batch read, skipping already-read entries.
func (s *NotificationService) MarkManyRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	affected, err := s.repo.MarkManyRead(ctx, recipientID, ids, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	if affected > 0 {
		s.invalidateUnread(ctx, recipientID)
	}
	return affected, nil
}

// ListUnread returns unread notifications with pagination metadata.
func (s *NotificationService) ListUnread(ctx context.Context, recipientID string, page, pageSize int) ([]models.NotificationEvent, *models.Pagination, error) {
	events, total, err := s.repo.ListUnread(ctx, recipientID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return events, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// CountUnread returns the unread badge count, cached briefly.
func (s *NotificationService) CountUnread(ctx context.Context, recipientID string) (int, error) {
	key := unreadCountKey(recipientID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.cfg.UnreadCacheTTL); err != nil {
			s.logger.Debug("unread count cache set failed", zap.Error(err))
		}
	}
	return count, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, recipientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadCountKey(recipientID)); err != nil {
		s.logger.Debug("unread count cache invalidation failed", zap.Error(err))
	}
}

func unreadCountKey(recipientID string) string {
	return "notifications:unread:" + recipientID
}
