package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the single source of truth for one session's cart. Mutations are
// serialised and persisted synchronously; none of them report errors.
type Store struct {
	id            string
	key           string
	storage       storage.Storage
	log           zerolog.Logger
	persistFailed PersistErrorHandler

	mu       sync.Mutex
	items    []domain.LineItem
	version  uint64
	subtotal subtotalMemo

	lmu       sync.Mutex
	listeners []listener
	nextID    uint64
}

type subtotalMemo struct {
	version uint64
	value   decimal.Decimal
	valid   bool
}

type listener struct {
	id uint64
	fn Listener
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithPersistErrorHandler replaces the default LogPersistError policy.
func WithPersistErrorHandler(h PersistErrorHandler) Option {
	return func(s *Store) { s.persistFailed = h }
}

// NewStore rehydrates the cart stored under key. A missing or unreadable value
// gives an empty cart.
func NewStore(ctx context.Context, st storage.Storage, key string, opts ...Option) *Store {
	s, _ := openStore(ctx, st, key, opts...)
	return s
}

// openStore is NewStore that also reports a failed read. The store is usable
// either way; on error it starts empty.
func openStore(ctx context.Context, st storage.Storage, key string, opts ...Option) (*Store, error) {
	s := &Store{
		id:      uuid.NewString(),
		key:     key,
		storage: st,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persistFailed == nil {
		s.persistFailed = LogPersistError(s.log)
	}
	items, err := s.load(ctx)
	switch {
	case errors.Is(err, errCorrupt):
		s.log.Warn().Err(err).Str("key", s.key).Msg("stored cart is corrupt, starting empty")
		err = nil
	case err != nil:
		s.log.Warn().Err(err).Str("key", s.key).Msg("failed to read cart, starting empty")
	}
	s.items = items
	return s, err
}

// ID identifies this store instance as the source of its writes.
func (s *Store) ID() string { return s.id }

func (s *Store) Key() string { return s.key }

// AddItem inserts item, or adds item.Quantity to the line already holding the
// same product. A quantity below 1 counts as 1. On re-add only the quantity
// changes: name, price and discount keep their first stored values.
func (s *Store) AddItem(ctx context.Context, item domain.LineItem) {
	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}
	s.mutate(ctx, func(items []domain.LineItem) []domain.LineItem {
		for i := range items {
			if items[i].ProductID == item.ProductID {
				items[i].Quantity += qty
				return items
			}
		}
		added := item.Clone()
		added.Quantity = qty
		return append(items, added)
	})
}

func (s *Store) RemoveItem(ctx context.Context, productID int64) {
	s.mutate(ctx, func(items []domain.LineItem) []domain.LineItem {
		kept := items[:0]
		for _, it := range items {
			if it.ProductID != productID {
				kept = append(kept, it)
			}
		}
		return kept
	})
}

// UpdateQuantity sets the quantity of an existing line, clamped to at least 1.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	s.mutate(ctx, func(items []domain.LineItem) []domain.LineItem {
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity = quantity
				break
			}
		}
		return items
	})
}

func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, func([]domain.LineItem) []domain.LineItem {
		return nil
	})
}

// Reload replaces the in-memory cart with what storage currently holds. It
// never writes back. If storage cannot be read the in-memory cart is kept.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	items, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("key", s.key).Msg("failed to reload cart, keeping in-memory state")
		return
	}
	s.items = items
	s.version++
	ev := Event{Kind: EventReloaded, Key: s.key, Version: s.version, Items: cloneItems(s.items)}
	s.mu.Unlock()

	s.notify(ev)
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// Count is the total number of units in the cart.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the discounted total, cached until the cart changes.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subtotal.valid && s.subtotal.version == s.version {
		return s.subtotal.value
	}
	v := Subtotal(s.items)
	s.subtotal = subtotalMemo{version: s.version, value: v, valid: true}
	return v
}

// Subtotal sums discounted price times quantity. Lines whose price does not
// parse contribute nothing.
func Subtotal(items []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		p, ok := it.DiscountedPrice()
		if !ok {
			continue
		}
		sum = sum.Add(p.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func (s *Store) mutate(ctx context.Context, fn func([]domain.LineItem) []domain.LineItem) {
	s.mu.Lock()
	s.items = fn(s.items)
	s.version++
	snapshot := cloneItems(s.items)
	if err := s.persist(ctx, snapshot); err != nil {
		s.persistFailed(s.key, err)
	}
	ev := Event{Kind: EventMutated, Key: s.key, Version: s.version, Items: snapshot}
	s.mu.Unlock()

	s.notify(ev)
}

func cloneItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
