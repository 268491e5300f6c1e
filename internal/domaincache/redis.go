package domaincache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidationChannel carries directory change notices between instances.
const InvalidationChannel = "tenancy:directory:invalidate"

const publishTimeout = 5 * time.Second

type invalidation struct {
	Origin string `json:"origin"`
	Reason string `json:"reason,omitempty"`
	At     int64  `json:"at"`
}

// RedisInvalidator invalidates the local cache and tells every other instance to do the same.
type RedisInvalidator struct {
	client *redis.Client
	cache  *Cache
	origin string
	logger *zap.Logger
}

// NewRedisInvalidator creates an invalidator for cache. Each instance gets a random
// origin id so it can skip its own notices.
func NewRedisInvalidator(client *redis.Client, cache *Cache, logger *zap.Logger) *RedisInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisInvalidator{client: client, cache: cache, origin: uuid.NewString(), logger: logger}
}

// Invalidate drops the local snapshot and publishes a notice. Publish failures are
// logged; peers then converge on their next miss rebuild.
func (r *RedisInvalidator) Invalidate(ctx context.Context) {
	if r.cache != nil {
		r.cache.Invalidate(ctx)
	}
	if err := r.Broadcast(ctx); err != nil {
		r.logger.Warn("publish cache invalidation failed", zap.Error(err))
	}
}

// Broadcast publishes an invalidation notice without touching the local cache.
func (r *RedisInvalidator) Broadcast(ctx context.Context) error {
	body, err := json.Marshal(invalidation{Origin: r.origin, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return r.client.Publish(pubCtx, InvalidationChannel, body).Err()
}

// Listen applies notices from other instances until ctx is done.
func (r *RedisInvalidator) Listen(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				r.logger.Debug("malformed invalidation notice", zap.String("payload", msg.Payload))
				continue
			}
			if n.Origin == r.origin || r.cache == nil {
				continue
			}
			r.cache.Invalidate(ctx)
		}
	}
}
