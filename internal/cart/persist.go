package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/storage"
	"github.com/rs/zerolog"
)

// PersistErrorHandler is called when a mutation could not be written to
// storage. The in-memory change has already been applied and stays applied.
type PersistErrorHandler func(key string, err error)

// LogPersistError is the default policy: log and carry on with in-memory state.
func LogPersistError(l zerolog.Logger) PersistErrorHandler {
	return func(key string, err error) {
		l.Warn().Err(err).Str("key", key).Msg("failed to persist cart, keeping in-memory state")
	}
}

func (s *Store) persist(ctx context.Context, items []domain.LineItem) error {
	data, err := EncodeItems(items)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, s.key, data)
}

// errCorrupt marks a stored value that is not a cart.
var errCorrupt = errors.New("stored cart is corrupt")

// load reads the stored cart. A missing key is an empty cart.
func (s *Store) load(ctx context.Context) ([]domain.LineItem, error) {
	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := DecodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	return items, nil
}

// EncodeItems serialises a cart as a JSON array. An empty cart is "[]".
func EncodeItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	return json.Marshal(items)
}

// DecodeItems parses a stored cart. Lines sharing a product id are merged
// into the first one and quantities below 1 are raised to 1, so whatever was
// stored, the result holds one line per product.
func DecodeItems(data []byte) ([]domain.LineItem, error) {
	var raw []domain.LineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := make([]domain.LineItem, 0, len(raw))
	index := make(map[int64]int, len(raw))
	for _, it := range raw {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if i, ok := index[it.ProductID]; ok {
			items[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(items)
		items = append(items, it)
	}
	return items, nil
}
