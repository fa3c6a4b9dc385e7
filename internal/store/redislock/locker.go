// Package redislock holds short-lived slot reservations in Redis so replicas
// contend for a slot before touching the database.
package redislock

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"consultd/internal/store"
)

// The token check keeps a holder whose lease expired from deleting the next
// holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func New(rdb *redis.Client, ttl time.Duration, prefix string) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "consultd:lock"
	}
	return &Locker{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Acquire takes the lock for key or fails with store.ErrSlotLocked. The
// returned func releases it.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	fullKey := l.prefix + ":" + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrSlotLocked
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err()
	}, nil
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
