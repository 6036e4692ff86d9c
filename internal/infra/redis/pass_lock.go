package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PassLock is a best-effort scheduler lease: SET NX with a TTL so a crashed
// holder cannot wedge the pass chain forever. The TTL must comfortably exceed
// one pass duration.
type PassLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewPassLock(client *redis.Client, key string, ttl time.Duration) *PassLock {
	if key == "" {
		key = "scheduler:pass:lock"
	}
	return &PassLock{client: client, key: key, ttl: ttl}
}

func (l *PassLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
}

func (l *PassLock) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
