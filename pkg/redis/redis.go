package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goRedis "github.com/redis/go-redis/v9"
)

// Config holds the Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Client embeds the go-redis client and adds the run lock helpers.
type Client struct {
	*goRedis.Client
}

// ErrLockNotHeld is returned when releasing a lock owned by someone else (or already expired).
var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = goRedis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(cfg Config) (*Client, error) {
	rdb := goRedis.NewClient(&goRedis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Client{Client: rdb}, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(rdb *goRedis.Client) *Client {
	return &Client{Client: rdb}
}

// AcquireLock sets key to token only if it does not exist yet. It reports whether the lock was taken.
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock deletes key only when it still holds token.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, c.Client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
