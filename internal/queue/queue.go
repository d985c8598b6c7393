package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/platform/resilience"
	"github.com/mbrandao/syncbox/internal/platform/store"
)

const (
	// DefaultMaxAttempts is the retry ceiling; an action failing this many
	// replays is dropped.
	DefaultMaxAttempts = 5

	// DefaultReplayTimeout bounds each replay so a hung request cannot
	// stall the drain.
	DefaultReplayTimeout = 30 * time.Second

	defaultCollection = "actions"
)

// Handler replays one action kind against the network. The data is the
// payload given to Enqueue. Returning an error wrapped with Permanent (or
// one classified non-retryable) drops the action without further retries.
type Handler func(ctx context.Context, data json.RawMessage) error

// ConnectivitySource reports whether the network is reachable. Satisfied
// by *connectivity.Monitor.
type ConnectivitySource interface {
	IsOnline() bool
}

// DropNotifier is told about actions the queue gives up on. Failures are
// logged, never propagated; dropping is already the failure path.
type DropNotifier interface {
	NotifyDropped(ctx context.Context, action Action, reason string)
}

// DrainResult summarizes one drain pass. Failed counts dropped actions,
// not transient failures that stay queued.
type DrainResult struct {
	Succeeded int
	Failed    int
}

// QueueConfig holds queue configuration.
type QueueConfig struct {
	Store         store.Store
	Collection    string
	MaxAttempts   int
	ReplayTimeout time.Duration
	Connectivity  ConnectivitySource
	DropNotifier  DropNotifier
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

// Queue is the durable action queue. Enqueue persists before returning so
// a process exit cannot lose a buffered action; Drain replays strictly
// sequentially in (priority desc, enqueuedAt asc) order.
type Queue struct {
	store         store.Store
	collection    string
	maxAttempts   int
	replayTimeout time.Duration
	connectivity  ConnectivitySource
	notifier      DropNotifier

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	draining atomic.Bool

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewQueue creates an action queue on a dedicated store collection.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("queue: store is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ReplayTimeout <= 0 {
		cfg.ReplayTimeout = DefaultReplayTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &observability.Metrics{}
	}

	return &Queue{
		store:         cfg.Store,
		collection:    cfg.Collection,
		maxAttempts:   cfg.MaxAttempts,
		replayTimeout: cfg.ReplayTimeout,
		connectivity:  cfg.Connectivity,
		notifier:      cfg.DropNotifier,
		handlers:      make(map[string]Handler),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// RegisterHandler binds a replay handler to an action kind.
func (q *Queue) RegisterHandler(kind string, h Handler) {
	q.handlersMu.Lock()
	q.handlers[kind] = h
	q.handlersMu.Unlock()
}

func (q *Queue) handler(kind string) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

// Enqueue durably persists a new action and returns it. The action is on
// disk before Enqueue returns; it is never held only in memory.
func (q *Queue) Enqueue(ctx context.Context, kind string, data any, priority int) (*Action, error) {
	if kind == "" {
		return nil, fmt.Errorf("queue: kind is required")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal %s payload: %w", kind, err)
	}

	action := Action{
		ID:         newActionID(),
		Kind:       kind,
		Data:       raw,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}

	encoded, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal action: %w", err)
	}
	if err := q.store.Put(ctx, q.collection, action.ID, encoded); err != nil {
		q.metrics.RecordStoreError(ctx, "put")
		return nil, fmt.Errorf("queue: persist action: %w", err)
	}

	q.metrics.RecordEnqueue(ctx, kind)
	q.refreshDepth(ctx)
	q.logger.LogDebug(ctx, "action enqueued", "id", action.ID, "kind", kind, "priority", priority)

	return &action, nil
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	keys, err := q.store.Keys(ctx, q.collection)
	if err != nil {
		q.metrics.RecordStoreError(ctx, "keys")
		return 0, fmt.Errorf("queue: count actions: %w", err)
	}
	return len(keys), nil
}

// IsDraining reports whether a drain pass is in flight.
func (q *Queue) IsDraining() bool {
	return q.draining.Load()
}

// Drain replays all pending actions, one at a time, higher priority first
// and FIFO within a priority. It is a no-op while offline and is not
// reentrant: a second call while one is in flight returns immediately.
// One action's failure never aborts the rest of the pass.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{}
	}
	defer q.draining.Store(false)

	if q.connectivity != nil && !q.connectivity.IsOnline() {
		return DrainResult{}
	}

	start := time.Now()
	actions, res := q.load(ctx)

	// No mid-drain offline check: if connectivity drops, the in-flight
	// replay fails like any network error and the per-item failure
	// handling takes over.
	for i := range actions {
		q.replay(ctx, &actions[i], &res)
	}

	q.refreshDepth(ctx)
	q.metrics.RecordDrain(ctx, time.Since(start), res.Succeeded, res.Failed)
	q.logger.LogInfo(ctx, "drain finished",
		"succeeded", res.Succeeded, "failed", res.Failed, "duration", time.Since(start))

	return res
}

// load reads and orders all pending actions. Corrupt entries are dropped
// on the spot and counted as failures.
func (q *Queue) load(ctx context.Context) ([]Action, DrainResult) {
	var res DrainResult

	all, err := q.store.GetAll(ctx, q.collection)
	if err != nil {
		q.metrics.RecordStoreError(ctx, "getall")
		q.logger.LogError(ctx, "failed to load queued actions", err)
		return nil, res
	}

	actions := make([]Action, 0, len(all))
	for key, data := range all {
		var a Action
		if err := json.Unmarshal(data, &a); err != nil {
			q.logger.LogWarn(ctx, "dropping corrupt queued action", "key", key, "error", err)
			q.discard(ctx, Action{ID: key, Kind: "unknown"}, "corrupt")
			res.Failed++
			continue
		}
		actions = append(actions, a)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		if !actions[i].EnqueuedAt.Equal(actions[j].EnqueuedAt) {
			return actions[i].EnqueuedAt.Before(actions[j].EnqueuedAt)
		}
		return actions[i].ID < actions[j].ID
	})

	return actions, res
}

// replay attempts one action and settles its fate: removed on success,
// dropped at the ceiling or on a permanent failure, otherwise left queued
// with an incremented attempt count.
func (q *Queue) replay(ctx context.Context, a *Action, res *DrainResult) {
	h, ok := q.handler(a.Kind)
	if !ok {
		// A kind this build does not know is a schema mismatch, not a
		// transient condition; retrying cannot help.
		q.logger.LogWarn(ctx, "no handler for queued action kind", "id", a.ID, "kind", a.Kind)
		q.discard(ctx, *a, "unknown kind")
		res.Failed++
		return
	}

	replayCtx, cancel := context.WithTimeout(ctx, q.replayTimeout)
	err := h(replayCtx, a.Data)
	cancel()

	if err == nil {
		q.metrics.RecordReplay(ctx, a.Kind, "success")
		if derr := q.store.Delete(ctx, q.collection, a.ID); derr != nil {
			q.metrics.RecordStoreError(ctx, "delete")
			q.logger.LogError(ctx, "replayed action could not be removed; it may replay again", derr, "id", a.ID)
		}
		res.Succeeded++
		return
	}

	q.metrics.RecordReplay(ctx, a.Kind, "failure")
	a.Attempts++

	switch {
	case IsPermanent(err) || !resilience.IsRetryable(err):
		q.logger.LogWarn(ctx, "dropping action after permanent failure",
			"id", a.ID, "kind", a.Kind, "error", err)
		q.discard(ctx, *a, "permanent failure")
		res.Failed++

	case a.Attempts >= q.maxAttempts:
		q.logger.LogWarn(ctx, "dropping action at retry ceiling",
			"id", a.ID, "kind", a.Kind, "attempts", a.Attempts, "error", err)
		q.discard(ctx, *a, "retry ceiling")
		res.Failed++

	default:
		q.logger.LogDebug(ctx, "replay failed, action stays queued",
			"id", a.ID, "kind", a.Kind, "attempts", a.Attempts, "error", err)
		encoded, merr := json.Marshal(a)
		if merr == nil {
			merr = q.store.Put(ctx, q.collection, a.ID, encoded)
		}
		if merr != nil {
			q.metrics.RecordStoreError(ctx, "put")
			q.logger.LogError(ctx, "failed to record replay attempt", merr, "id", a.ID)
		}
	}
}

// discard removes an action the queue is giving up on and tells the
// notifier. Notification failures never affect the drain.
func (q *Queue) discard(ctx context.Context, a Action, reason string) {
	if err := q.store.Delete(ctx, q.collection, a.ID); err != nil {
		q.metrics.RecordStoreError(ctx, "delete")
		q.logger.LogError(ctx, "failed to delete dropped action", err, "id", a.ID)
	}
	q.metrics.RecordDrop(ctx, a.Kind, reason)
	if q.notifier != nil {
		q.notifier.NotifyDropped(ctx, a, reason)
	}
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if n, err := q.Len(ctx); err == nil {
		q.metrics.SetQueueDepth(ctx, int64(n))
	}
}
