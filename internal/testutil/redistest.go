// README: Redis fixture for queue tests. Tests skip unless FITDASH_TEST_REDIS_ADDR is set.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// SetupRedis connects to FITDASH_TEST_REDIS_ADDR and flushes the selected db.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("FITDASH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FITDASH_TEST_REDIS_ADDR not set; skipping Redis-backed tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err(), "ping redis")
	require.NoError(t, client.FlushDB(ctx).Err(), "flush redis")
	return client
}
