package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/testhelpers"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
			Labels:       map[string]string{"test": "digitlotto-cache", "cleanup": "auto"},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := ConnectRedis(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestReceiptDeduper(t *testing.T) {
	client := setupRedis(t)
	deduper := NewReceiptDeduper(client, time.Minute)
	ctx := context.Background()

	fresh, err := deduper.MarkSeen(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = deduper.MarkSeen(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, deduper.Forget(ctx, "tx-1"))

	fresh, err = deduper.MarkSeen(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	ttl, err := client.TTL(ctx, receiptKey("tx-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestIdentityCache(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	resolver := new(testhelpers.MockIdentityResolver)
	resolver.On("ResolveIdentity", mock.Anything, "@alice").Return("02alice", nil).Once()
	resolver.On("ResolveIdentity", mock.Anything, "@ghost").
		Return("", entities.NewNotFoundError("identity @ghost not found")).Twice()

	cache := NewIdentityCache(client, resolver, time.Minute)

	for i := 0; i < 3; i++ {
		key, err := cache.ResolveIdentity(ctx, "@alice")
		require.NoError(t, err)
		assert.Equal(t, "02alice", key)
	}

	// Misses are not cached
	for i := 0; i < 2; i++ {
		_, err := cache.ResolveIdentity(ctx, "@ghost")
		require.Error(t, err)
		assert.True(t, entities.IsCode(err, entities.ErrCodeNotFound))
	}

	resolver.AssertExpectations(t)
}
