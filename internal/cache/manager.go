// Package cache implements a two-tier TTL cache: a volatile in-process tier
// in front of a durable store tier, with namespace isolation and lazy
// read-side expiry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/platform/store"
)

const (
	// DefaultTTL is the validity window applied when a Set carries no TTL.
	DefaultTTL = 5 * time.Minute

	// DefaultNamespace partitions callers that do not pick their own.
	DefaultNamespace = "app"

	defaultCollection    = "cache"
	defaultSweepInterval = 60 * time.Second
)

// entry is the envelope persisted for every cached value. The TTL lives in
// the envelope, not in the store, so both tiers share one expiry policy.
type entry struct {
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"writtenAt"`
	TTL       time.Duration   `json:"ttl"`
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.WrittenAt) > e.TTL
}

// ManagerConfig holds cache manager configuration.
type ManagerConfig struct {
	Store            store.Store
	Collection       string
	DefaultTTL       time.Duration
	DefaultNamespace string
	SweepInterval    time.Duration
	Logger           *observability.Logger
	Metrics          *observability.Metrics
}

// Manager is the two-tier cache. Reads consult the memory tier first and
// fall through to the durable tier, populating memory on the way back. A
// stale entry observed by any read is evicted from both tiers; the periodic
// sweep only bounds memory growth and is not required for correctness.
type Manager struct {
	store      store.Store
	collection string
	defaultTTL time.Duration
	defaultNS  string

	mu  sync.RWMutex
	mem map[string]entry

	logger  *observability.Logger
	metrics *observability.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager and starts its memory sweep goroutine.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache: store is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = DefaultNamespace
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &observability.Metrics{}
	}

	m := &Manager{
		store:      cfg.Store,
		collection: cfg.Collection,
		defaultTTL: cfg.DefaultTTL,
		defaultNS:  cfg.DefaultNamespace,
		mem:        make(map[string]entry),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		stopCh:     make(chan struct{}),
	}

	go m.sweep(cfg.SweepInterval)

	return m, nil
}

// callOpts collects per-call options.
type callOpts struct {
	namespace   string
	ttl         time.Duration
	noOverwrite bool
}

// Option customizes a single cache call.
type Option func(*callOpts)

// WithNamespace routes the call to a namespace other than the default.
func WithNamespace(ns string) Option {
	return func(o *callOpts) { o.namespace = ns }
}

// WithTTL overrides the default TTL on Set.
func WithTTL(ttl time.Duration) Option {
	return func(o *callOpts) { o.ttl = ttl }
}

// KeepExisting makes Set a no-op when a live entry already exists under the
// same key.
func KeepExisting() Option {
	return func(o *callOpts) { o.noOverwrite = true }
}

func (m *Manager) applyOpts(opts []Option) callOpts {
	o := callOpts{namespace: m.defaultNS, ttl: m.defaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func fullKey(namespace, key string) string {
	return namespace + ":" + key
}

// Set caches value under key. The durable write happens first and its error
// propagates; a silently lost write could later read as a false miss after
// a restart. The memory tier is mirrored after the durable write succeeds.
func (m *Manager) Set(ctx context.Context, key string, value any, opts ...Option) error {
	o := m.applyOpts(opts)
	fk := fullKey(o.namespace, key)

	if o.noOverwrite {
		if _, ok := m.Get(ctx, key, WithNamespace(o.namespace)); ok {
			return nil
		}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal value for %s: %w", fk, err)
	}

	e := entry{Value: raw, WrittenAt: time.Now(), TTL: o.ttl}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: marshal entry for %s: %w", fk, err)
	}

	if err := m.store.Put(ctx, m.collection, fk, data); err != nil {
		m.metrics.RecordStoreError(ctx, "put")
		return fmt.Errorf("cache: persist %s: %w", fk, err)
	}

	m.mu.Lock()
	m.mem[fk] = e
	m.mu.Unlock()

	return nil
}

// Get returns the cached value for key, or (nil, false) on a miss. Expired
// entries are evicted from both tiers before Get returns a miss. Durable
// tier read errors degrade to a miss rather than propagate.
func (m *Manager) Get(ctx context.Context, key string, opts ...Option) (json.RawMessage, bool) {
	o := m.applyOpts(opts)
	fk := fullKey(o.namespace, key)
	now := time.Now()

	m.mu.RLock()
	e, ok := m.mem[fk]
	m.mu.RUnlock()

	if ok {
		if !e.expired(now) {
			m.metrics.RecordCacheHit(ctx, "memory")
			return e.Value, true
		}
		// Stale in memory: evict and fall through to the durable tier,
		// which holds the same stale entry and will clean it up below.
		m.mu.Lock()
		delete(m.mem, fk)
		m.mu.Unlock()
		m.metrics.RecordCacheEviction(ctx, "memory", "read")
	}

	data, err := m.store.Get(ctx, m.collection, fk)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			m.metrics.RecordStoreError(ctx, "get")
			m.logger.LogWarn(ctx, "cache read degraded to miss", "key", fk, "error", err)
		}
		m.metrics.RecordCacheMiss(ctx, "store")
		return nil, false
	}

	var se entry
	if err := json.Unmarshal(data, &se); err != nil {
		m.logger.LogWarn(ctx, "cache entry corrupt, dropping", "key", fk, "error", err)
		m.deleteStoreAsync(fk)
		return nil, false
	}

	if se.expired(now) {
		m.deleteStoreAsync(fk)
		m.metrics.RecordCacheEviction(ctx, "store", "read")
		m.metrics.RecordCacheMiss(ctx, "store")
		return nil, false
	}

	m.mu.Lock()
	m.mem[fk] = se
	m.mu.Unlock()

	m.metrics.RecordCacheHit(ctx, "store")
	return se.Value, true
}

// Has reports whether a live entry exists for key. It shares Get's lazy
// eviction, so a stale entry counts as absent.
func (m *Manager) Has(ctx context.Context, key string, opts ...Option) bool {
	_, ok := m.Get(ctx, key, opts...)
	return ok
}

// Remove deletes key from both tiers. Durable delete errors propagate.
func (m *Manager) Remove(ctx context.Context, key string, opts ...Option) error {
	o := m.applyOpts(opts)
	fk := fullKey(o.namespace, key)

	m.mu.Lock()
	delete(m.mem, fk)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, m.collection, fk); err != nil {
		m.metrics.RecordStoreError(ctx, "delete")
		return fmt.Errorf("cache: remove %s: %w", fk, err)
	}
	return nil
}

// Clear removes one namespace from both tiers, or everything when namespace
// is empty.
func (m *Manager) Clear(ctx context.Context, namespace string) error {
	if namespace == "" {
		m.mu.Lock()
		m.mem = make(map[string]entry)
		m.mu.Unlock()

		if err := m.store.Clear(ctx, m.collection); err != nil {
			m.metrics.RecordStoreError(ctx, "clear")
			return fmt.Errorf("cache: clear: %w", err)
		}
		return nil
	}

	prefix := namespace + ":"

	m.mu.Lock()
	for fk := range m.mem {
		if strings.HasPrefix(fk, prefix) {
			delete(m.mem, fk)
		}
	}
	m.mu.Unlock()

	keys, err := m.store.Keys(ctx, m.collection)
	if err != nil {
		m.metrics.RecordStoreError(ctx, "keys")
		return fmt.Errorf("cache: clear %s: %w", namespace, err)
	}
	for _, fk := range keys {
		if !strings.HasPrefix(fk, prefix) {
			continue
		}
		if err := m.store.Delete(ctx, m.collection, fk); err != nil {
			m.metrics.RecordStoreError(ctx, "delete")
			return fmt.Errorf("cache: clear %s: %w", namespace, err)
		}
	}
	return nil
}

// GetAll returns every live entry in a namespace, keyed without the
// namespace prefix, lazily evicting expired entries found along the way.
// Durable tier read errors degrade to whatever the memory tier holds.
func (m *Manager) GetAll(ctx context.Context, namespace string) map[string]json.RawMessage {
	prefix := namespace + ":"
	now := time.Now()
	out := make(map[string]json.RawMessage)

	all, err := m.store.GetAll(ctx, m.collection)
	if err != nil {
		m.metrics.RecordStoreError(ctx, "getall")
		m.logger.LogWarn(ctx, "cache scan degraded to memory tier", "namespace", namespace, "error", err)

		m.mu.RLock()
		defer m.mu.RUnlock()
		for fk, e := range m.mem {
			if strings.HasPrefix(fk, prefix) && !e.expired(now) {
				out[strings.TrimPrefix(fk, prefix)] = e.Value
			}
		}
		return out
	}

	for fk, data := range all {
		if !strings.HasPrefix(fk, prefix) {
			continue
		}

		var se entry
		if err := json.Unmarshal(data, &se); err != nil {
			m.deleteStoreAsync(fk)
			continue
		}
		if se.expired(now) {
			m.mu.Lock()
			delete(m.mem, fk)
			m.mu.Unlock()
			m.deleteStoreAsync(fk)
			m.metrics.RecordCacheEviction(ctx, "store", "read")
			continue
		}

		m.mu.Lock()
		m.mem[fk] = se
		m.mu.Unlock()
		out[strings.TrimPrefix(fk, prefix)] = se.Value
	}
	return out
}

// Warm pre-populates the memory tier from the durable tier for the given
// namespaces (all namespaces when none are given). Expired durable entries
// are deleted instead of loaded. Returns the number of entries loaded.
func (m *Manager) Warm(ctx context.Context, namespaces ...string) (int, error) {
	all, err := m.store.GetAll(ctx, m.collection)
	if err != nil {
		m.metrics.RecordStoreError(ctx, "getall")
		return 0, fmt.Errorf("cache: warm: %w", err)
	}

	match := func(fk string) bool {
		if len(namespaces) == 0 {
			return true
		}
		for _, ns := range namespaces {
			if strings.HasPrefix(fk, ns+":") {
				return true
			}
		}
		return false
	}

	now := time.Now()
	loaded := 0
	for fk, data := range all {
		if !match(fk) {
			continue
		}

		var se entry
		if err := json.Unmarshal(data, &se); err != nil {
			m.deleteStoreAsync(fk)
			continue
		}
		if se.expired(now) {
			m.deleteStoreAsync(fk)
			continue
		}

		m.mu.Lock()
		if _, exists := m.mem[fk]; !exists {
			m.mem[fk] = se
			loaded++
		}
		m.mu.Unlock()
	}

	m.logger.LogInfo(ctx, "cache warmed", "entries", loaded)
	return loaded, nil
}

// Close stops the sweep goroutine. The underlying store is owned by the
// caller and is not closed here.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

// MemLen returns the number of entries currently held in the memory tier.
func (m *Manager) MemLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mem)
}

// deleteStoreAsync removes a stale or corrupt durable entry off the read
// path. Reads must not block on the durable delete.
func (m *Manager) deleteStoreAsync(fk string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.store.Delete(ctx, m.collection, fk); err != nil {
			m.metrics.RecordStoreError(ctx, "delete")
			m.logger.LogWarn(ctx, "failed to evict stale cache entry", "key", fk, "error", err)
		}
	}()
}

// sweep periodically drops expired memory entries to bound memory growth.
// Correctness does not depend on it; reads self-police TTL.
func (m *Manager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			now := time.Now()

			m.mu.Lock()
			removed := 0
			for fk, e := range m.mem {
				if e.expired(now) {
					delete(m.mem, fk)
					removed++
				}
			}
			m.mu.Unlock()

			ctx := context.Background()
			m.metrics.RecordCacheSweep(ctx, removed)
			if removed > 0 {
				m.logger.LogDebug(ctx, "cache sweep removed expired entries", "removed", removed)
			}
		}
	}
}

// As decodes a Get result into T. A miss or a decode failure yields the
// zero value and false, so it composes directly with Get:
//
//	profile, ok := cache.As[Profile](m.Get(ctx, "profile"))
func As[T any](raw json.RawMessage, ok bool) (T, bool) {
	var v T
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}
