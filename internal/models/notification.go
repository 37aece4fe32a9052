package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType classifies what a notification is about.
type NotificationType string

// Possible notification types.
const (
	NotificationTypeAssignment NotificationType = "ASSIGNMENT"
	NotificationTypeStatus     NotificationType = "STATUS_CHANGE"
	NotificationTypeBackup     NotificationType = "BACKUP_REQUEST"
	NotificationTypeSystem     NotificationType = "SYSTEM"
)

// NotificationChannel identifies a delivery channel.
type NotificationChannel string

// Delivery channels.
const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// DeliveryStatus records the outcome of one channel attempt.
type DeliveryStatus string

// Possible delivery outcomes.
const (
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryFailed    DeliveryStatus = "FAILED"
	DeliveryTimeout   DeliveryStatus = "TIMEOUT"
	DeliverySkipped   DeliveryStatus = "SKIPPED"
)

// ChannelStatuses maps each channel to its delivery outcome. Stored as a
// JSONB column.
type ChannelStatuses map[NotificationChannel]DeliveryStatus

// Value implements driver.Valuer.
func (c ChannelStatuses) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *ChannelStatuses) Scan(src interface{}) error {
	if src == nil {
		*c = ChannelStatuses{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported channel statuses type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// NotificationEvent is the durable in-app record of one logical
// notification. Rows are append-only apart from read state and the
// per-channel delivery statuses.
type NotificationEvent struct {
	ID                string              `db:"id" json:"id"`
	RecipientID       string              `db:"recipient_id" json:"recipient_id"`
	Type              NotificationType    `db:"type" json:"type"`
	Title             string              `db:"title" json:"title"`
	Message           string              `db:"message" json:"message"`
	Priority          ReportPriority      `db:"priority" json:"priority"`
	RelatedEntityType *string             `db:"related_entity_type" json:"related_entity_type,omitempty"`
	RelatedEntityID   *string             `db:"related_entity_id" json:"related_entity_id,omitempty"`
	Channels          ChannelStatuses     `db:"channels" json:"channels"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	ReadAt            *time.Time          `db:"read_at" json:"read_at,omitempty"`
}

// BroadcastMessage is the envelope published to live subscribers. It is
// fire-and-forget and never persisted.
type BroadcastMessage struct {
	Topic     string      `json:"topic"`
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}
