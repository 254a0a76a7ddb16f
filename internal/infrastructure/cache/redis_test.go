package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRedis_NilClientBypasses(t *testing.T) {
	r := NewRedis(nil, nil)
	ctx := context.Background()

	var out payload
	hit, err := r.GetJSON(ctx, "k", &out)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, r.SetJSON(ctx, "k", payload{}, time.Minute))
	assert.NoError(t, r.Delete(ctx, "k"))
	assert.NoError(t, r.DeleteByPattern(ctx, "k*"))
	assert.ErrorIs(t, r.Ping(ctx), ErrUnavailable)
}

func TestRedis_JSONRoundTripAndPatternDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedis(client, zap.NewNop())
	require.NoError(t, r.Ping(ctx))

	require.NoError(t, r.SetJSON(ctx, "matches:ranked:a", payload{Name: "a", Count: 2}, time.Minute))
	require.NoError(t, r.SetJSON(ctx, "matches:ranked:b", payload{Name: "b"}, 0))

	var out payload
	hit, err := r.GetJSON(ctx, "matches:ranked:a", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, payload{Name: "a", Count: 2}, out)

	ttl, err := client.TTL(ctx, "matches:ranked:b").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, client.Set(ctx, "matches:ranked:bad", "{", time.Minute).Err())
	hit, err = r.GetJSON(ctx, "matches:ranked:bad", &out)
	assert.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, r.DeleteByPattern(ctx, "matches:ranked:*"))
	n, err := client.Exists(ctx, "matches:ranked:a", "matches:ranked:b").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
