package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// keyPrefix namespaces ledger keys in a shared Redis.
const keyPrefix = "cap-alerts:seen:"

// Redis is a ledger shared by every replica of the service.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis at url (redis://[user:pass@]host:port/db).
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opt), ttl: ttl}, nil
}

// Seen reports whether key was marked within the TTL.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	return n > 0, nil
}

// Mark records key for the TTL.
func (r *Redis) Mark(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), r.ttl).Err(); err != nil {
		return fmt.Errorf("ledger mark %s: %w", key, err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (r *Redis) CheckReadiness(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
