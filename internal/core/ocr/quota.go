package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/temiloluwa-oss/arkiva/internal/core"
)

// RedisQuota is the shared OCR page counter for the current free-tier window.
// All concurrently processing items consume from the same key; INCRBY makes
// the read-then-increment a single atomic operation.
type RedisQuota struct {
	client *redis.Client
	window string
	limit  int64
}

var _ core.QuotaStore = (*RedisQuota)(nil)

func NewRedisQuota(client *redis.Client, window string, limit int64) *RedisQuota {
	return &RedisQuota{client: client, window: window, limit: limit}
}

// key scopes the counter to the active billing window so a new window starts
// from zero without any reset job.
func (q *RedisQuota) key() string {
	now := time.Now().UTC()
	switch q.window {
	case "daily":
		return fmt.Sprintf("ocr:pages:%s", now.Format("2006-01-02"))
	default: // monthly
		return fmt.Sprintf("ocr:pages:%s", now.Format("2006-01"))
	}
}

// Consume atomically adds pages and returns the new total for the window.
func (q *RedisQuota) Consume(ctx context.Context, pages int) (int64, error) {
	used, err := q.client.IncrBy(ctx, q.key(), int64(pages)).Result()
	if err != nil {
		return 0, fmt.Errorf("quota incr: %w", err)
	}
	return used, nil
}

func (q *RedisQuota) Used(ctx context.Context) (int64, error) {
	v, err := q.client.Get(ctx, q.key()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return v, nil
}

func (q *RedisQuota) Limit() int64 {
	return q.limit
}
