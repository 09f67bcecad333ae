package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/pkg/common"
	"golang-fundamental-scryper/pkg/redis"

	goRedis "github.com/redis/go-redis/v9"
)

// RunLockRepository guarantees a single pipeline run at a time.
type RunLockRepository interface {
	TryLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, token string) error
}

// RunEventRepository publishes run lifecycle events.
type RunEventRepository interface {
	PublishRunCompleted(ctx context.Context, summary dto.RunSummary) error
}

// NewRedisRunLockRepository shares the lock between every instance connected to the same Redis.
func NewRedisRunLockRepository(client *redis.Client) RunLockRepository {
	return &redisRunLockRepository{client: client}
}

type redisRunLockRepository struct {
	client *redis.Client
}

func (r *redisRunLockRepository) TryLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return r.client.AcquireLock(ctx, common.RedisKeyCrawlRunLock, token, ttl)
}

func (r *redisRunLockRepository) Unlock(ctx context.Context, token string) error {
	return r.client.ReleaseLock(ctx, common.RedisKeyCrawlRunLock, token)
}

// NewLocalRunLockRepository is the in-process lock used when Redis is not configured.
func NewLocalRunLockRepository() RunLockRepository {
	return &localRunLockRepository{}
}

type localRunLockRepository struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func (r *localRunLockRepository) TryLock(_ context.Context, token string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != "" && time.Now().Before(r.expires) {
		return false, nil
	}
	r.token = token
	r.expires = time.Now().Add(ttl)
	return true, nil
}

func (r *localRunLockRepository) Unlock(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != token {
		return redis.ErrLockNotHeld
	}
	r.token = ""
	return nil
}

// NewRunEventRepository publishes to the crawler.run.completed stream.
func NewRunEventRepository(client *redis.Client, maxLen int64) RunEventRepository {
	return &runEventRepository{client: client, maxLen: maxLen}
}

type runEventRepository struct {
	client *redis.Client
	maxLen int64
}

func (r *runEventRepository) PublishRunCompleted(ctx context.Context, summary dto.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := r.client.XAdd(ctx, &goRedis.XAddArgs{
		Stream: common.RedisStreamCrawlRunCompleted,
		Values: map[string]interface{}{"run_id": summary.RunID, "payload": payload},
		MaxLen: r.maxLen,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish run %s: %w", summary.RunID, err)
	}
	return nil
}
