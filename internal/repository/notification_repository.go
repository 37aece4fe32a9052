package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/citywatch/dispatch-api/internal/models"
)

const notificationColumns = `id, recipient_id, type, title, message, priority, related_entity_type, related_entity_id, channels, created_at, read_at`

// NotificationRepository handles persistence of notification events.
// Rows are append-only apart from read state and channel statuses.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a new notification event.
func (r *NotificationRepository) Create(ctx context.Context, event *models.NotificationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Channels == nil {
		event.Channels = models.ChannelStatuses{}
	}
	const query = `INSERT INTO notification_events (id, recipient_id, type, title, message, priority, related_entity_type, related_entity_id, channels, created_at)
        VALUES (:id, :recipient_id, :type, :title, :message, :priority, :related_entity_type, :related_entity_id, :channels, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// FindByID returns a notification event by its ID.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_events WHERE id = $1`, notificationColumns)
	var event models.NotificationEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// SetChannelStatus records a delivery outcome for one channel.
func (r *NotificationRepository) SetChannelStatus(ctx context.Context, id string, channel models.NotificationChannel, status models.DeliveryStatus) error {
	const query = `UPDATE notification_events
        SET channels = jsonb_set(COALESCE(channels, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text))
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(channel), string(status)); err != nil {
		return fmt.Errorf("set channel status: %w", err)
	}
	return nil
}

// MarkRead records the read timestamp once. Marking an already-read
// notification is a no-op and returns false.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (bool, error) {
	const query = `UPDATE notification_events SET read_at = $3
        WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, recipientID, at)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

// MarkManyRead marks a batch of notifications read, skipping ones
// already read. Returns how many rows changed.
func (r *NotificationRepository) MarkManyRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := []interface{}{recipientID, at}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE notification_events SET read_at = $2
        WHERE recipient_id = $1 AND read_at IS NULL AND id IN (%s)`, strings.Join(placeholders, ","))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows: %w", err)
	}
	return affected, nil
}

// ListUnread returns unread notifications for a recipient, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, recipientID string, page, pageSize int) ([]models.NotificationEvent, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM notification_events
        WHERE recipient_id = $1 AND read_at IS NULL
        ORDER BY created_at DESC, id ASC LIMIT %d OFFSET %d`, notificationColumns, pageSize, offset)
	var events []models.NotificationEvent
	if err := r.db.SelectContext(ctx, &events, query, recipientID); err != nil {
		return nil, 0, fmt.Errorf("list unread notifications: %w", err)
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM notification_events WHERE recipient_id = $1 AND read_at IS NULL`
	if err := r.db.GetContext(ctx, &total, countQuery, recipientID); err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return events, total, nil
}

// CountUnread returns the number of unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notification_events WHERE recipient_id = $1 AND read_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
