package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestMemoryFeed_RoutesByKey(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	defer f.Close()

	alice, unsubAlice := f.Subscribe("cart:alice")
	bob, unsubBob := f.Subscribe("cart:bob")
	defer unsubBob()

	require.NoError(t, f.Publish(ctx, Change{Key: "cart:alice", Source: "store-1"}))

	assert.Equal(t, Change{Key: "cart:alice", Source: "store-1"}, receive(t, alice))
	assert.Empty(t, bob)

	unsubAlice()
	unsubAlice()
	_, ok := <-alice
	assert.False(t, ok)
}

func TestMemoryFeed_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	defer f.Close()

	ch, unsub := f.Subscribe("k")
	defer unsub()

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, f.Publish(ctx, Change{Key: "k", Source: "s"}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestMemoryFeed_Close(t *testing.T) {
	f := NewMemoryFeed()
	ch, _ := f.Subscribe("k")

	require.NoError(t, f.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, f.Publish(context.Background(), Change{Key: "k"}), ErrClosed)

	late, _ := f.Subscribe("k")
	_, ok = <-late
	assert.False(t, ok)
}

func TestDecodeChange(t *testing.T) {
	c, err := decodeChange([]byte(`{"key":"cart:s1","source":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, Change{Key: "cart:s1", Source: "abc"}, c)

	_, err = decodeChange([]byte(`{"source":"abc"}`))
	assert.Error(t, err)

	_, err = decodeChange([]byte(`junk`))
	assert.Error(t, err)
}

// countingFeed records how many changes were announced.
type countingFeed struct {
	Feed
	published atomic.Int32
}

func (f *countingFeed) Publish(ctx context.Context, c Change) error {
	f.published.Add(1)
	return f.Feed.Publish(ctx, c)
}

type eventLog struct {
	mu    sync.Mutex
	kinds []cart.EventKind
}

func (l *eventLog) record(e cart.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, e.Kind)
}

func (l *eventLog) get() []cart.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]cart.EventKind(nil), l.kinds...)
}

func TestBridge_PropagatesBetweenStores(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	f := &countingFeed{Feed: NewMemoryFeed()}
	defer f.Close()
	b := NewBridge(f, zerolog.Nop())

	first := cart.NewStore(ctx, st, "cart:s1")
	second := cart.NewStore(ctx, st, "cart:s1")
	defer b.Attach(first)()
	defer b.Attach(second)()

	var firstEvents eventLog
	first.Subscribe(firstEvents.record)

	first.AddItem(ctx, domain.LineItem{ProductID: 1, Name: "Apple", UnitPrice: "10", Quantity: 2})

	require.Eventually(t, func() bool { return second.Count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, first.Items(), second.Items())

	// the reload in second is not announced again
	assert.Never(t, func() bool { return f.published.Load() > 1 }, 200*time.Millisecond, 10*time.Millisecond)
	// first ignored its own announcement
	assert.Equal(t, []cart.EventKind{cart.EventMutated}, firstEvents.get())

	second.RemoveItem(ctx, 1)
	require.Eventually(t, func() bool { return first.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		kinds := firstEvents.get()
		return len(kinds) == 2 && kinds[1] == cart.EventReloaded
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridge_DetachStopsPropagation(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	f := NewMemoryFeed()
	defer f.Close()
	b := NewBridge(f, zerolog.Nop())

	first := cart.NewStore(ctx, st, "cart:s1")
	second := cart.NewStore(ctx, st, "cart:s1")
	defer b.Attach(first)()
	detach := b.Attach(second)
	detach()
	detach()

	first.AddItem(ctx, domain.LineItem{ProductID: 1, UnitPrice: "10", Quantity: 1})

	assert.Never(t, func() bool { return second.Count() != 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestBridge_WithSessions(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	f := NewMemoryFeed()
	defer f.Close()
	b := NewBridge(f, zerolog.Nop())

	// two registries over one backend, as two server instances would be
	one := cart.NewSessions(st, 10, 0, cart.WithAttach(b.Attach))
	two := cart.NewSessions(st, 10, 0, cart.WithAttach(b.Attach))
	defer one.Close()
	defer two.Close()

	viewer := two.Store(ctx, "alice")
	one.Store(ctx, "alice").AddItem(ctx, domain.LineItem{ProductID: 5, UnitPrice: "3", Quantity: 4})

	require.Eventually(t, func() bool { return viewer.Count() == 4 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, two.Store(ctx, "bob").Count())
}
