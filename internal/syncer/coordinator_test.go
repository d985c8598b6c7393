package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mbrandao/syncbox/internal/connectivity"
	"github.com/mbrandao/syncbox/internal/platform/store"
	"github.com/mbrandao/syncbox/internal/queue"
)

func newTestFixture(t *testing.T, online bool) (*Coordinator, *queue.Queue, *connectivity.Monitor) {
	t.Helper()

	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{InitialOnline: online})
	q, err := queue.NewQueue(queue.QueueConfig{
		Store:        store.NewMemoryStore(),
		Connectivity: monitor,
	})
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	c := NewCoordinator(CoordinatorConfig{
		Queue:   q,
		Monitor: monitor,
	})
	return c, q, monitor
}

func TestReconnectTriggersDrain(t *testing.T) {
	ctx := context.Background()
	c, q, monitor := newTestFixture(t, false)

	replayed := make(chan struct{})
	q.RegisterHandler("op", func(ctx context.Context, data json.RawMessage) error {
		close(replayed)
		return nil
	})

	// Enqueued while offline: nothing happens yet.
	if _, err := q.Enqueue(ctx, "op", "x", 1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if n := c.QueueLength(ctx); n != 1 {
		t.Fatalf("Expected 1 queued action, got %d", n)
	}

	// Coming back online drains without any explicit call.
	monitor.SetOnline(true)

	select {
	case <-replayed:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reconnect to trigger a drain")
	}

	t.Log("✓ A reconnect drains the queue automatically")
}

func TestFlushNowWhileOffline(t *testing.T) {
	ctx := context.Background()
	c, q, _ := newTestFixture(t, false)

	called := false
	q.RegisterHandler("op", func(ctx context.Context, data json.RawMessage) error {
		called = true
		return nil
	})
	if _, err := q.Enqueue(ctx, "op", "x", 1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res := c.FlushNow(ctx)
	if res.Succeeded != 0 || res.Failed != 0 {
		t.Errorf("Expected offline flush to be a no-op, got {%d,%d}", res.Succeeded, res.Failed)
	}
	if called {
		t.Error("Handler must not run while offline")
	}

	t.Log("✓ FlushNow is safe with no connectivity")
}

func TestFlushNowWhileOnline(t *testing.T) {
	ctx := context.Background()
	c, q, _ := newTestFixture(t, true)

	q.RegisterHandler("op", func(ctx context.Context, data json.RawMessage) error {
		return nil
	})
	if _, err := q.Enqueue(ctx, "op", "x", 1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res := c.FlushNow(ctx)
	if res.Succeeded != 1 {
		t.Errorf("Expected 1 replay, got {%d,%d}", res.Succeeded, res.Failed)
	}
	if n := c.QueueLength(ctx); n != 0 {
		t.Errorf("Expected empty queue after flush, got %d", n)
	}

	t.Log("✓ FlushNow drains pending actions on demand")
}

func TestStatusReflectsMidDrain(t *testing.T) {
	ctx := context.Background()
	c, q, _ := newTestFixture(t, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	q.RegisterHandler("slow", func(ctx context.Context, data json.RawMessage) error {
		close(entered)
		<-release
		return nil
	})
	if _, err := q.Enqueue(ctx, "slow", "x", 1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.FlushNow(ctx)
	}()
	<-entered

	status := c.Status(ctx)
	if !status.Online {
		t.Error("Expected online status")
	}
	if !status.IsDraining {
		t.Error("Expected IsDraining while a replay is in flight")
	}
	if status.QueueLength != 1 {
		t.Errorf("Expected queue length 1 mid-drain, got %d", status.QueueLength)
	}

	close(release)
	wg.Wait()

	status = c.Status(ctx)
	if status.IsDraining {
		t.Error("Expected IsDraining false after the drain")
	}
	if status.QueueLength != 0 {
		t.Errorf("Expected empty queue after the drain, got %d", status.QueueLength)
	}

	t.Log("✓ Status tracks the drain lifecycle")
}
