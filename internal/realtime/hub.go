package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/service"
	"github.com/citywatch/dispatch-api/pkg/config"
)

// Client is one websocket subscriber. Messages are fanned out through a
// buffered channel; a client that cannot keep up is dropped rather than
// allowed to stall the hub.
type Client struct {
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
}

// Hub relays published dispatch events to connected websocket clients.
// It consumes the same pub/sub stream every API instance publishes to,
// so clients see events regardless of which instance handled the write.
type Hub struct {
	cfg    config.RealtimeConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub constructs an empty hub.
func NewHub(cfg config.RealtimeConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 16
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*Client]struct{})}
}

// Run consumes the pub/sub stream until the context is cancelled.
func (h *Hub) Run(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg, ok := <-ch:
			if !ok {
				h.closeAll()
				return
			}
			h.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Register attaches a connection and starts its read/write pumps. The
// officer topic is always included so personal alerts reach the user.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	topics := make(map[string]struct{}, len(h.cfg.DispatchTopics)+1)
	for _, t := range h.cfg.DispatchTopics {
		topics[t] = struct{}{}
	}
	topics[service.OfficerTopic(userID)] = struct{}{}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, h.cfg.ClientBuffer),
		topics: topics,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
	return client
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) dispatch(topic string, payload []byte) {
	var envelope models.BroadcastMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn("malformed broadcast payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("user_id", client.UserID))
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)) //nolint:errcheck
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unregister(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)) //nolint:errcheck
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}

// readPump drains inbound frames so control messages are processed and
// closes the client when the peer goes away. Clients do not send data;
// the stream is one-way.
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	pongWait := h.cfg.PingInterval + h.cfg.WriteTimeout
	client.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
