package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/planline/internal/idgen"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	redisKeyPrefix = "planline:lock:"
	minBackoff     = 20 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
)

// Redis is a lock shared by every replica using the same Redis database.
// A held lock expires after ttl if its owner dies.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// Compile-time check that Redis implements Locker.
var _ Locker = (*Redis)(nil)

// NewRedisClient creates a go-redis client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedis returns a Redis lock using rdb.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Lock polls SET NX with exponential backoff until the key is acquired or
// ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := redisKeyPrefix + key
	token, err := idgen.New(idgen.LockToken)
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	backoff := minBackoff
	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.rdb, []string{k}, token).Err(); err != nil {
				slog.Warn("failed to release lock", "key", key, "err", err)
			}
		})
	}, nil
}
