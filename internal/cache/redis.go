package cache

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis instance. Entries carry the same short
// TTLs as the in-memory store; Redis is a shared cache tier, not a store of
// record.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr ("host:port" or a redis:// URL) and pings the
// server. Returns nil with a logged warning on failure so callers can fall
// back to the in-memory store.
func NewRedis(ctx context.Context, addr string) *Redis {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			log.Printf("cache: invalid redis URL %q: %v", addr, err)
			return nil
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("cache: redis unreachable at %s: %v", addr, err)
		return nil
	}
	log.Printf("cache: connected to redis at %s", addr)
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("cache: redis read error: %v", err)
		return nil, false
	}
	return data, true
}

func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		log.Printf("cache: redis write error: %v", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		log.Printf("cache: redis delete error: %v", err)
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
