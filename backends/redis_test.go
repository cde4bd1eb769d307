package backends

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set BUILDCACHE_TEST_REDIS_ADDR (e.g. localhost:6379) to run these tests
// against a real server. Each test uses its own key prefix.
func newTestRedis(t *testing.T, ttl time.Duration) *Redis {
	t.Helper()

	addr := os.Getenv("BUILDCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BUILDCACHE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "buildcache-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewRedisFromClient(client, prefix, ttl)
}

func TestRedisBackend(t *testing.T) {
	testBackend(t, func(t *testing.T) Backend {
		return newTestRedis(t, 0)
	})
}

func TestRedisBackendPrunesExpiredIndex(t *testing.T) {
	r := newTestRedis(t, time.Hour)
	now := time.Now()
	r.now = func() time.Time { return now.Add(-2 * time.Hour) }
	put(t, r, "buildcache-old", "x")
	r.now = func() time.Time { return now }
	put(t, r, "buildcache-new", "y")

	entries, err := r.List(context.Background(), "buildcache")
	require.NoError(t, err)
	assert.Equal(t, []string{"buildcache-new"}, keysOf(entries))
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisConfig{})
	assert.Error(t, err)
}
