package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore is a Store backed by an embedded bbolt database. Each
// collection maps to a bucket; buckets are created on first write.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get retrieves the value stored under key in collection.
func (s *BoltStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrKeyNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		// Copy out: bbolt memory is only valid inside the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores value under key in collection, creating the bucket if needed.
func (s *BoltStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bolt put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes key from collection.
func (s *BoltStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// GetAll returns every key/value pair in collection.
func (s *BoltStore) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt scan %s: %w", collection, err)
	}
	return out, nil
}

// Keys returns every key in collection.
func (s *BoltStore) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt keys %s: %w", collection, err)
	}
	return keys, nil
}

// Clear removes all entries from collection by dropping the bucket.
func (s *BoltStore) Clear(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(collection)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(collection))
	})
	if err != nil {
		return fmt.Errorf("bolt clear %s: %w", collection, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
