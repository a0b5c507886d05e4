package slotlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRedisTTL   = 10 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// Redis is a lock shared by every server instance pointing at the same Redis. The TTL bounds
// how long a crashed holder can block a slot.
type Redis struct {
	rdb        *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	prefix     string
}

// Only the holder's token may delete the key.
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(rdb *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "slotlock"
	}
	return &Redis{rdb: rdb, ttl: ttl, retryDelay: defaultRetryDelay, prefix: prefix}
}

// Lock polls SET NX PX until it wins the key or ctx is done.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + ":" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire redis lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := redisReleaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Warn().Err(err).Str("lock_key", redisKey).Msg("Failed to release slot lock")
		}
	}, nil
}
