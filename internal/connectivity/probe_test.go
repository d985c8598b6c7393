package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeMarksOnlineOnResponse(t *testing.T) {
	// Even a 500 means the network path works.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	monitor := NewMonitor(MonitorConfig{InitialOnline: false})
	p := NewProbe(ProbeConfig{
		URL:      srv.URL,
		Interval: time.Hour, // only the immediate first probe matters here
		Monitor:  monitor,
		Client:   srv.Client(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !monitor.IsOnline() {
		if time.Now().After(deadline) {
			t.Fatal("Expected the first probe to mark the monitor online")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	t.Log("✓ Any HTTP response counts as online")
}

func TestProbeMarksOfflineOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening: transport error

	monitor := NewMonitor(MonitorConfig{InitialOnline: true})
	p := NewProbe(ProbeConfig{
		URL:      srv.URL,
		Interval: time.Hour,
		Timeout:  200 * time.Millisecond,
		Monitor:  monitor,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for monitor.IsOnline() {
		if time.Now().After(deadline) {
			t.Fatal("Expected the probe to mark the monitor offline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	t.Log("✓ A transport failure counts as offline")
}
