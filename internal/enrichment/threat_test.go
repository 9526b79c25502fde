package enrichment

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrierlabs/harrier/internal/logging"
)

func TestStaticThreatSet(t *testing.T) {
	set := NewStaticThreatSet([]string{"203.0.113.7", "198.51.100.9"})

	assert.True(t, set.Contains("203.0.113.7"))
	assert.True(t, set.Contains("198.51.100.9"))
	assert.False(t, set.Contains("192.0.2.1"))
	assert.False(t, set.Contains(""))
}

func TestRedisThreatFeed_Refresh(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.SAdd("threat:ips", "203.0.113.7", "198.51.100.9")

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	feed := NewRedisThreatFeed(client, "threat:ips", logging.New("error", "text"))
	assert.False(t, feed.Contains("203.0.113.7"), "empty before first refresh")

	require.NoError(t, feed.Refresh(context.Background()))
	assert.True(t, feed.Contains("203.0.113.7"))
	assert.True(t, feed.Contains("198.51.100.9"))
	assert.False(t, feed.Contains("192.0.2.1"))
}

func TestRedisThreatFeed_RefreshReplacesSet(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.SAdd("threat:ips", "203.0.113.7")

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	feed := NewRedisThreatFeed(client, "threat:ips", logging.New("error", "text"))
	require.NoError(t, feed.Refresh(context.Background()))
	require.True(t, feed.Contains("203.0.113.7"))

	srv.SRem("threat:ips", "203.0.113.7")
	srv.SAdd("threat:ips", "198.51.100.9")

	require.NoError(t, feed.Refresh(context.Background()))
	assert.False(t, feed.Contains("203.0.113.7"))
	assert.True(t, feed.Contains("198.51.100.9"))
}

func TestRedisThreatFeed_RefreshFailureKeepsOldCopy(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.SAdd("threat:ips", "203.0.113.7")

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	feed := NewRedisThreatFeed(client, "threat:ips", logging.New("error", "text"))
	require.NoError(t, feed.Refresh(context.Background()))

	srv.SetError("LOADING redis is loading")
	assert.Error(t, feed.Refresh(context.Background()))
	assert.True(t, feed.Contains("203.0.113.7"), "previous copy stays in effect")
}
