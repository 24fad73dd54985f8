package storage

import (
	"context"
	"errors"
	"fmt"
)

// Storage is an origin-scoped key-value store holding serialized session state.
// Consumers define this interface, not the backend implementations.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrKeyNotFound = errors.New("storage key not found")

const (
	CartKey    = "cart"
	ProfileKey = "user"
)

// Key scopes a well-known key name to one origin (session).
func Key(name, origin string) string {
	return fmt.Sprintf("%s:%s", name, origin)
}
