package feed

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisFeed(t *testing.T) (*RedisFeed, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f, err := NewRedisFeed(context.Background(), client, "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, client
}

func TestRedisFeed_PublishAndReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, _ := setupRedisFeed(t)
	ch, unsub := f.Subscribe("cart:s1")
	defer unsub()
	go f.Run(ctx)

	require.NoError(t, f.Publish(ctx, Change{Key: "cart:s1", Source: "store-a"}))

	assert.Equal(t, Change{Key: "cart:s1", Source: "store-a"}, receive(t, ch))
}

func TestRedisFeed_SkipsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, client := setupRedisFeed(t)
	ch, unsub := f.Subscribe("cart:s1")
	defer unsub()
	go f.Run(ctx)

	require.NoError(t, client.Publish(ctx, DefaultRedisChannel, "not json").Err())
	require.NoError(t, f.Publish(ctx, Change{Key: "cart:s1", Source: "store-b"}))

	assert.Equal(t, "store-b", receive(t, ch).Source)
}

func TestRedisFeed_ClosedRejectsPublish(t *testing.T) {
	f, _ := setupRedisFeed(t)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, f.Publish(context.Background(), Change{Key: "k"}), ErrClosed)
}
