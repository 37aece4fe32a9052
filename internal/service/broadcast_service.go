package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
)

// Broadcast topics consumed by live dashboards and officer clients.
const (
	TopicDispatchAssignments = "dispatch.assignments"
	TopicDispatchBackup      = "dispatch.backup"
	TopicDispatchPresence    = "dispatch.presence"
)

// OfficerTopic returns the per-officer unicast channel name.
func OfficerTopic(officerID string) string {
	return "officer." + officerID
}

// BroadcastService publishes state-change events to live subscribers
// over Redis pub/sub. Delivery is at-most-once with no persistence or
// retry; publish failures are logged and swallowed so a broken broker
// never blocks the write path that triggered the event.
type BroadcastService struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBroadcastService constructs a broadcast service.
func NewBroadcastService(client *redis.Client, logger *zap.Logger) *BroadcastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BroadcastService{client: client, logger: logger}
}

// Publish sends one event to a topic, fire-and-forget. Callers must
// invoke it only after the triggering state change has been committed.
func (s *BroadcastService) Publish(ctx context.Context, topic, kind string, payload interface{}) {
	if s == nil || s.client == nil {
		return
	}

	msg := models.BroadcastMessage{
		Topic:     topic,
		Kind:      kind,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("broadcast marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	if err := s.client.Publish(ctx, topic, raw).Err(); err != nil {
		s.logger.Warn("broadcast publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Subscribe opens a subscription on the given topics for the realtime hub.
func (s *BroadcastService) Subscribe(ctx context.Context, topics ...string) *redis.PubSub {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, topics...)
}
