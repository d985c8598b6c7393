// Package store provides durable key-value storage organized into named
// collections. Collections are created lazily on first write.
package store

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned when a key does not exist in a collection.
	ErrKeyNotFound = errors.New("store: key not found")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// Store defines the interface for a durable collection-oriented KV store.
// Values are opaque byte slices; callers own serialization.
type Store interface {
	// Get retrieves the value stored under key in collection.
	// Returns ErrKeyNotFound if the key (or the collection) does not exist.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put stores value under key in collection, creating the collection
	// if needed. An existing value is overwritten.
	Put(ctx context.Context, collection, key string, value []byte) error

	// Delete removes key from collection. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, collection, key string) error

	// GetAll returns every key/value pair in collection. A missing
	// collection yields an empty map.
	GetAll(ctx context.Context, collection string) (map[string][]byte, error)

	// Keys returns every key in collection.
	Keys(ctx context.Context, collection string) ([]string, error)

	// Clear removes all entries from collection.
	Clear(ctx context.Context, collection string) error

	// Close releases underlying resources.
	Close() error
}
