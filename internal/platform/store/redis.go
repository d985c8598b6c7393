package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Collections are mapped onto the
// flat key space with a "collection:key" prefix, scanned with MATCH.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(collection, key string) string {
	return collection + ":" + key
}

// Get retrieves the value stored under key in collection.
func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, redisKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

// Put stores value under key in collection. No expiry is set; lifetime
// bookkeeping lives inside stored values, not in Redis TTLs.
func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(collection, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes key from collection.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.Del(ctx, redisKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// GetAll returns every key/value pair in collection.
func (s *RedisStore) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	prefix := collection + ":"

	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		val, err := s.client.Get(ctx, full).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between SCAN and GET
			}
			return nil, fmt.Errorf("redis get error: %w", err)
		}
		out[strings.TrimPrefix(full, prefix)] = val
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan error: %w", err)
	}
	return out, nil
}

// Keys returns every key in collection.
func (s *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	prefix := collection + ":"
	var keys []string

	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan error: %w", err)
	}
	return keys, nil
}

// Clear removes all entries from collection.
func (s *RedisStore) Clear(ctx context.Context, collection string) error {
	iter := s.client.Scan(ctx, 0, collection+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete error: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan error: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
