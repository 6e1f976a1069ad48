package offline

import (
	"context"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
)

// ErrInvalidEntry is returned when an entry cannot be stored.
var ErrInvalidEntry = errors.NewStd("invalid cache entry")

// Storage is a set of named stores, one per deployed cache version.
type Storage interface {
	// Open returns the named store, creating it if needed.
	Open(ctx context.Context, name string) (Store, error)
	// Keys lists store names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a store and its entries. It reports whether the store existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Match looks the key up in every store, oldest first.
	Match(ctx context.Context, key string) (*Entry, bool, error)
	Close() error
}

// Store is one named bucket of cached pairs.
type Store interface {
	Name() string
	Match(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries []*Entry) error
}

// NewStorage builds the backend selected in the cache settings.
func NewStorage(c conf.CacheSettings) (Storage, error) {
	switch c.Backend {
	case conf.BackendMemory, "":
		return NewMemoryStorage(), nil
	case conf.BackendSQLite:
		s, err := NewSQLiteStorage(c.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Newf("unknown cache backend %q", c.Backend).
			Component("offline").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func checkEntry(e *Entry) error {
	if e == nil || e.Key == "" {
		return errors.Newf("entry without key: %w", ErrInvalidEntry).
			Component("offline").
			Category(errors.CategoryCache).
			Build()
	}
	return nil
}
