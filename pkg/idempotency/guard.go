// Package idempotency tracks which side effects already happened, so a stage
// redelivered under at-least-once semantics does not repeat an irreversible
// external call.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Guard records completed effects keyed by run and stage. Completed must be
// checked before the external call and MarkCompleted written only after the
// call succeeded: a crash in between re-runs the effect, which is the safe
// direction for a transfer (never silently dropped).
type Guard interface {
	Completed(ctx context.Context, key string) (bool, error)
	MarkCompleted(ctx context.Context, key string) error
}

// EffectKey builds the guard key for one stage of one run.
func EffectKey(runID string, stageIndex int) string {
	return fmt.Sprintf("flowbox:effect:%s:%d", runID, stageIndex)
}

const defaultEffectTTL = 7 * 24 * time.Hour

// RedisGuard stores effect markers in redis so every worker instance in the
// consumer group shares them.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGuard(redisURL string) (*RedisGuard, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &RedisGuard{
		client: redis.NewClient(options),
		ttl:    defaultEffectTTL,
	}, nil
}

func (g *RedisGuard) Completed(ctx context.Context, key string) (bool, error) {
	count, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check effect marker: %w", err)
	}

	return count > 0, nil
}

func (g *RedisGuard) MarkCompleted(ctx context.Context, key string) error {
	err := g.client.Set(ctx, key, "1", g.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to write effect marker: %w", err)
	}

	return nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard is a process-local guard for tests and single-instance runs.
type MemoryGuard struct {
	mu        sync.Mutex
	completed map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{completed: make(map[string]struct{})}
}

func (g *MemoryGuard) Completed(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.completed[key]

	return ok, nil
}

func (g *MemoryGuard) MarkCompleted(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.completed[key] = struct{}{}

	return nil
}
