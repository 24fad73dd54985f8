package cart

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/grocery-cart/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AttachFunc runs once for every store Sessions creates. The returned detach
// func, if any, runs when the session is evicted.
type AttachFunc func(*Store) (detach func())

const loadTimeout = 5 * time.Second

type session struct {
	store  *Store
	detach []func()
}

// Sessions hands out one Store per origin. Idle sessions are evicted after
// idleTTL; their carts stay in storage and are rehydrated on the next request.
type Sessions struct {
	storage storage.Storage
	log     zerolog.Logger
	opts    []Option
	attach  []AttachFunc

	sf        singleflight.Group
	cache     *expirable.LRU[string, *session]
	detaching sync.WaitGroup
}

type SessionsOption func(*Sessions)

func WithStoreOptions(opts ...Option) SessionsOption {
	return func(s *Sessions) { s.opts = append(s.opts, opts...) }
}

func WithAttach(fn AttachFunc) SessionsOption {
	return func(s *Sessions) { s.attach = append(s.attach, fn) }
}

func WithSessionsLogger(l zerolog.Logger) SessionsOption {
	return func(s *Sessions) { s.log = l }
}

// NewSessions creates the registry. size 0 means unbounded and idleTTL 0
// means sessions never expire.
func NewSessions(st storage.Storage, size int, idleTTL time.Duration, opts ...SessionsOption) *Sessions {
	s := &Sessions{storage: st, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = expirable.NewLRU[string, *session](size, s.evicted, idleTTL)
	return s
}

// Store returns the live store for origin, creating and rehydrating it on
// first use. Concurrent first requests for one origin share a single load,
// which is not tied to the lifetime of the request that started it. A store
// whose storage read failed is returned but not kept, so the next request
// tries again.
func (s *Sessions) Store(ctx context.Context, origin string) *Store {
	if sess, ok := s.cache.Get(origin); ok {
		s.cache.Add(origin, sess) // refresh idle deadline
		return sess.store
	}

	v, _, _ := s.sf.Do(origin, func() (any, error) {
		if sess, ok := s.cache.Get(origin); ok {
			return sess, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		store, err := openStore(loadCtx, s.storage, storage.Key(storage.CartKey, origin), s.opts...)
		sess := &session{store: store}
		if err != nil {
			s.log.Warn().Err(err).Str("origin", origin).Msg("cart session not cached after failed load")
			return sess, nil
		}
		for _, fn := range s.attach {
			if detach := fn(store); detach != nil {
				sess.detach = append(sess.detach, detach)
			}
		}
		s.cache.Add(origin, sess)
		s.log.Debug().Str("origin", origin).Str("store_id", store.ID()).Msg("cart session opened")
		return sess, nil
	})
	return v.(*session).store
}

// End drops the live store for origin and waits for it to be detached. Its
// persisted cart is untouched.
func (s *Sessions) End(origin string) {
	s.cache.Remove(origin)
	s.detaching.Wait()
}

func (s *Sessions) Len() int {
	return s.cache.Len()
}

// Close ends every live session and waits for all detaches to finish.
func (s *Sessions) Close() {
	s.cache.Purge()
	s.detaching.Wait()
}

// evicted runs under the cache lock, so detaching happens on its own goroutine.
func (s *Sessions) evicted(origin string, sess *session) {
	if len(sess.detach) == 0 {
		s.log.Debug().Str("origin", origin).Msg("cart session closed")
		return
	}
	s.detaching.Add(1)
	go func() {
		defer s.detaching.Done()
		for _, detach := range sess.detach {
			detach()
		}
		s.log.Debug().Str("origin", origin).Msg("cart session closed")
	}()
}
