package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/modgraph/pkg/observability"
)

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a distributed modules.Locker built on SET NX with an expiry. The
// TTL bounds how long a crashed holder can block other writers.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *observability.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl, retry: 25 * time.Millisecond, logger: observability.NopLogger()}
}

// WithLogger sets the logger that reports failed releases
func (l *Locker) WithLogger(logger *observability.Logger) *Locker {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func lockKey(name string) string {
	return keyPrefix + "lock:" + name
}

// Lock implements modules.Locker
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	key := lockKey(name)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s failed: %w", name, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Use a fresh context so a cancelled caller still releases the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		released, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int()
		switch {
		case err != nil:
			l.logger.WithError(err).WithFields(map[string]interface{}{
				"lock": name,
				"ttl":  l.ttl.String(),
			}).Error("failed to release graph lock; held until expiry")
		case released == 0:
			l.logger.WithField("lock", name).Warn("graph lock expired before release")
		}
	}, nil
}
