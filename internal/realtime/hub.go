// Package realtime pushes tenant incidents to connected admin consoles over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	Publish(ctx context.Context, event string, payload []byte) error
}

// RedisSubscriber subscribes to the incident channel and invokes handler for incoming events.
type RedisSubscriber interface {
	Subscribe(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the connected feed clients and broadcasts incidents to them.
// A client scoped to a city only receives that city's incidents; an unscoped
// client receives everything.
type Hub struct {
	clients  map[string]*Client
	cancel   func() // Redis subscription, held while at least one client is connected
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client. Starts the Redis subscription for the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if len(h.clients) == 0 && h.redisSub != nil {
		cancel, err := h.redisSub.Subscribe(func(event string, payload []byte) {
			h.Broadcast(event, payload)
		})
		if err != nil {
			h.logger.Warn("incident feed subscribe failed", zap.Error(err))
		} else {
			h.cancel = cancel
		}
	}
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("feed client connected", zap.String("client_id", c.ID), zap.Stringer("user_id", c.UserID))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	if len(h.clients) == 0 && h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.logger.Debug("feed client disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends an event to the local clients allowed to see it.
func (h *Hub) Broadcast(event string, payload []byte) {
	var target struct {
		CityID *uuid.UUID `json:"city_id"`
	}
	_ = json.Unmarshal(payload, &target)
	msg := WSMessage{Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.allows(target.CityID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishIncident implements incidents.Publisher. With Redis configured the event is
// only published, and the subscription performs the broadcast once for every instance
// including this one; otherwise it is broadcast locally.
func (h *Hub) PublishIncident(ctx context.Context, inc *models.TenantIncident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	if h.redis != nil {
		return h.redis.Publish(ctx, EventIncident, data)
	}
	h.Broadcast(EventIncident, data)
	return nil
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
