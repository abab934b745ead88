package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbusdns/nimbus/internal/core/domain"
	"github.com/nimbusdns/nimbus/internal/dns/cache"
	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the pub/sub channel a fleet of server instances
// uses to tell each other a name's cached records are stale, e.g. after a
// DDNS UPDATE applies on one node and the others' resolver caches need to
// drop what they had.
const InvalidationChannel = "dns:invalidation"

// RedisCache is a distributed tier sitting behind the in-process
// cache.Cache: positive/negative responses can be shared across server
// instances, and UPDATE-driven invalidations are broadcast over pub/sub so
// every node's local cache stays consistent.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, "dns:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	r.client.Set(ctx, "dns:"+key, data, ttl)
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Invalidate implements ports.CacheInvalidator for the management API:
// changing a record through the HTTP API publishes an invalidation so every
// server node's resolver cache drops the stale entry.
func (r *RedisCache) Invalidate(ctx context.Context, name string, qType domain.RecordType) error {
	return r.publish(ctx, name, string(qType))
}

// InvalidateQuery is the DNS-engine-side counterpart of Invalidate, used
// when a DDNS UPDATE applies directly against a zone.Store rather than
// through the management API.
func (r *RedisCache) InvalidateQuery(ctx context.Context, name string, qtype packet.QueryType) error {
	return r.publish(ctx, name, qtype.String())
}

func (r *RedisCache) publish(ctx context.Context, name, qtype string) error {
	msg := fmt.Sprintf("%s:%s", name, qtype)
	return r.client.Publish(ctx, InvalidationChannel, msg).Err()
}

// Subscribe returns a channel that receives raw invalidation messages.
func (r *RedisCache) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	return pubsub.Channel()
}

// WatchInvalidations subscribes to InvalidationChannel and evicts the named
// entry from local on every message received, until ctx is cancelled. The
// qtype suffix published by Invalidate is informational only: Cache.Evict
// drops every type cached under a name, so it is stripped before eviction.
func (r *RedisCache) WatchInvalidations(ctx context.Context, local *cache.Cache, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ch := r.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			name := msg.Payload
			for i := len(name) - 1; i >= 0; i-- {
				if name[i] == ':' {
					name = name[:i]
					break
				}
			}
			logger.Debug("cache invalidation received", "name", name)
			local.Evict(name)
		}
	}
}
