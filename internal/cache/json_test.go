package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONRoundTripAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()
	key := cache.Key("product", "names")
	require.Equal(t, "product:names", key)

	var got payload
	ok, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, key, payload{Name: "tea", Count: 2}))
	require.Equal(t, time.Minute, mr.TTL(key))

	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Name: "tea", Count: 2}, got)

	require.NoError(t, c.Delete(ctx, key))
	require.False(t, mr.Exists(key))
}

func TestNilJSONIsAMiss(t *testing.T) {
	var c *cache.JSON
	var got payload
	ok, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Set(context.Background(), "k", got))
	require.NoError(t, c.Delete(context.Background(), "k"))
}
