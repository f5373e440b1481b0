// Package lock provides a Redis-backed single-writer lock per recurring
// series, so several planner processes never advance one series at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crm-planner/internal/recurrence"
)

// ErrNotAcquired is returned when the lock stays taken until the context
// is done.
var ErrNotAcquired = errors.New("series lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds lock configuration.
type Config struct {
	Prefix string
	// TTL bounds how long a crashed holder keeps the series locked.
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

// DefaultConfig returns the default lock configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:        "crm-planner:series-lock:",
		TTL:           10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RedisLocker implements recurrence.SeriesLocker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	cfg    Config
}

var _ recurrence.SeriesLocker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker; zero config fields take defaults.
func NewRedisLocker(client *redis.Client, cfg Config) *RedisLocker {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func (l *RedisLocker) key(seriesID uint) string {
	return l.cfg.Prefix + strconv.FormatUint(uint64(seriesID), 10)
}

// LockSeries blocks until the series lock is held or ctx is done.
func (l *RedisLocker) LockSeries(ctx context.Context, seriesID uint) (func(), error) {
	key := l.key(seriesID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire series lock %d: %w", seriesID, err)
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: series %d: %w", ErrNotAcquired, seriesID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release anyway.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				log.Printf("[warn] release %s: %v", key, err)
			}
		})
	}
}

// Ping checks if the Redis connection is healthy.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
