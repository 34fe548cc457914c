// README: Dispatch queue backed by a Redis list plus a sorted set of delayed retries.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fitdash/internal/types"
)

// Queue carries order ids that need a dispatch attempt.
type Queue interface {
	Push(ctx context.Context, ids ...types.ID) error
	// Pop blocks up to timeout; ok is false when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (id types.ID, ok bool, err error)
	// IncrAttempts counts one more failed attempt and returns the total.
	IncrAttempts(ctx context.Context, id types.ID) (int, error)
	Schedule(ctx context.Context, id types.ID, at time.Time) error
	// PromoteDue moves retries due at or before now onto the queue.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Forget(ctx context.Context, id types.ID) error
	RetryLen(ctx context.Context) (int64, error)
}

type RedisQueue struct {
	redis *redis.Client
}

func NewRedisQueue(redis *redis.Client) *RedisQueue {
	return &RedisQueue{redis: redis}
}

func (q *RedisQueue) Push(ctx context.Context, ids ...types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	return q.redis.LPush(ctx, queueKey, members...).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (types.ID, bool, error) {
	res, err := q.redis.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// res is [key, value].
	return types.ID(res[1]), true, nil
}

func (q *RedisQueue) IncrAttempts(ctx context.Context, id types.ID) (int, error) {
	n, err := q.redis.HIncrBy(ctx, attemptsKey, string(id), 1).Result()
	return int(n), err
}

func (q *RedisQueue) Schedule(ctx context.Context, id types.ID, at time.Time) error {
	return q.redis.ZAdd(ctx, retryKey, redis.Z{Score: float64(at.UnixMilli()), Member: string(id)}).Err()
}

// promoteDueScript moves due members from the retry set to the queue in one
// step, so no member is lost or pushed twice.
// KEYS[1] = retry set, KEYS[2] = queue list, ARGV[1] = now in unix millis.
var promoteDueScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local moved = 0
for _, member in ipairs(due) do
    if redis.call("ZREM", KEYS[1], member) == 1 then
        redis.call("LPUSH", KEYS[2], member)
        moved = moved + 1
    end
end
return moved
`)

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	moved, err := promoteDueScript.Run(ctx, q.redis, []string{retryKey, queueKey}, strconv.FormatInt(now.UnixMilli(), 10)).Int()
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func (q *RedisQueue) Forget(ctx context.Context, id types.ID) error {
	pipe := q.redis.TxPipeline()
	pipe.HDel(ctx, attemptsKey, string(id))
	pipe.ZRem(ctx, retryKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) RetryLen(ctx context.Context) (int64, error) {
	return q.redis.ZCard(ctx, retryKey).Result()
}
