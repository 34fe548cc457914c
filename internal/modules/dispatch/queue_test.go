// README: RedisQueue tests against a live Redis (run with -race).
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitdash/internal/testutil"
	"fitdash/internal/types"
)

func TestRedisQueue_PromoteDueConcurrentPromotersMoveEachOnce(t *testing.T) {
	client := testutil.SetupRedis(t)
	q := NewRedisQueue(client)
	ctx := context.Background()
	now := time.Now()

	const due = 20
	for i := 0; i < due; i++ {
		require.NoError(t, q.Schedule(ctx, types.ID(fmt.Sprintf("o-%d", i)), now.Add(-time.Second)))
	}
	require.NoError(t, q.Schedule(ctx, "o-later", now.Add(time.Hour)))

	const promoters = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < promoters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := q.PromoteDue(ctx, now)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, due, total)
	queued, err := client.LRange(ctx, queueKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, queued, due)
	seen := make(map[string]bool, len(queued))
	for _, id := range queued {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	left, err := q.RetryLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestRedisQueue_PromoteDueEmpty(t *testing.T) {
	client := testutil.SetupRedis(t)
	q := NewRedisQueue(client)

	n, err := q.PromoteDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
