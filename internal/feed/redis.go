package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultRedisChannel = "cart-changes"

// RedisFeed relays changes over a Redis pub/sub channel.
type RedisFeed struct {
	*hub
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	log     zerolog.Logger
}

// NewRedisFeed subscribes to channel and waits for the server to confirm, so
// changes published after it returns are not missed.
func NewRedisFeed(ctx context.Context, client *redis.Client, channel string, log zerolog.Logger) (*RedisFeed, error) {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}
	return &RedisFeed{
		hub:     newHub(),
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		log:     log,
	}, nil
}

func (f *RedisFeed) Publish(ctx context.Context, c Change) error {
	if f.isClosed() {
		return ErrClosed
	}
	data, err := encodeChange(c)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Run delivers received changes until ctx is done or the feed is closed.
func (f *RedisFeed) Run(ctx context.Context) {
	ch := f.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				f.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
				continue
			}
			f.dispatch(c)
		}
	}
}

func (f *RedisFeed) Close() error {
	f.close()
	return f.pubsub.Close()
}
