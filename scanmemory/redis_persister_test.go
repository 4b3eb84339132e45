package scanmemory_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"attendance/scanmemory"
)

func redisAddr(t *testing.T) string {
	t.Helper()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}

	ctx := context.Background()
	container, err := redisContainer.RunContainer(ctx, testcontainers.WithImage("docker.io/redis:7"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	return strings.Replace(uri, "redis://", "", 1)
}

func TestRedisPersister(t *testing.T) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: redisAddr(t)})
	defer client.Close()

	persister := scanmemory.NewRedisPersister(client, scanmemory.DefaultKey, uuid.NewString())

	store, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)

	for _, id := range []string{"purchase-1", "purchase-2", "purchase-1"} {
		_, err := store.Record(ctx, id)
		require.NoError(t, err)
	}

	reloaded, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)
	assert.True(t, reloaded.Has("purchase-1"))
	assert.True(t, reloaded.Has("purchase-2"))
	assert.Equal(t, 2, reloaded.Len())

	require.NoError(t, reloaded.Invalidate(ctx))

	ids, err := persister.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
