package feed

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/rs/zerolog"
)

const defaultBridgeTimeout = 5 * time.Second

// Bridge keeps stores in step with writes made to the same key by other
// stores. Local mutations are announced on the feed; changes announced by
// anyone else make the store reload. Reloads are never re-announced.
type Bridge struct {
	feed    Feed
	log     zerolog.Logger
	timeout time.Duration
}

func NewBridge(f Feed, log zerolog.Logger) *Bridge {
	return &Bridge{feed: f, log: log, timeout: defaultBridgeTimeout}
}

// Attach connects store to the feed. It matches cart.AttachFunc.
func (b *Bridge) Attach(store *cart.Store) (detach func()) {
	changes, unsubscribeFeed := b.feed.Subscribe(store.Key())

	// one pending announcement is enough: receivers reload the whole key
	pending := make(chan struct{}, 1)
	unsubscribeStore := store.Subscribe(func(e cart.Event) {
		if e.Kind != cart.EventMutated {
			return
		}
		select {
		case pending <- struct{}{}:
		default:
		}
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-pending:
				b.announce(store)
			}
		}
	}()

	go func() {
		defer wg.Done()
		for c := range changes {
			if c.Source == store.ID() {
				continue
			}
			b.log.Debug().Str("key", c.Key).Str("source", c.Source).Msg("reloading cart after external change")
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			store.Reload(ctx)
			cancel()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribeStore()
			unsubscribeFeed()
			close(stop)
			wg.Wait()
		})
	}
}

func (b *Bridge) announce(store *cart.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.feed.Publish(ctx, Change{Key: store.Key(), Source: store.ID()}); err != nil {
		b.log.Warn().Err(err).Str("key", store.Key()).Msg("failed to announce cart change")
	}
}
