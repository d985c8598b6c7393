package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbrandao/syncbox/internal/cache"
	"github.com/mbrandao/syncbox/internal/connectivity"
	"github.com/mbrandao/syncbox/internal/notification"
	platformaws "github.com/mbrandao/syncbox/internal/platform/aws"
	"github.com/mbrandao/syncbox/internal/platform/config"
	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/platform/store"
	"github.com/mbrandao/syncbox/internal/queue"
	"github.com/mbrandao/syncbox/internal/syncer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg := config.MustLoad(configPath)

	// Observability first; everything else logs through it.
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("syncd", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "syncd", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	// Persistent store backend
	st, err := buildStore(ctx, cfg)
	if err != nil {
		logger.LogError(ctx, "failed to create store", err)
		log.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()
	logger.Info("store ready", "backend", cfg.Store.Backend)

	// Two-tier cache
	cacheManager, err := cache.NewManager(cache.ManagerConfig{
		Store:            st,
		DefaultTTL:       cfg.Cache.DefaultTTL,
		DefaultNamespace: cfg.Cache.DefaultNamespace,
		SweepInterval:    cfg.Cache.SweepInterval,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	defer cacheManager.Close()

	warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
	if len(cfg.Cache.WarmNamespaces) > 0 {
		warmer.RegisterProvider(cache.NamespaceWarmupProvider(cacheManager, cfg.Cache.WarmNamespaces...))
	}
	warmer.Warmup(ctx)

	// Connectivity monitor. Without a probe the daemon assumes online
	// until told otherwise over the wake endpoint.
	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{
		ReconnectPulse: cfg.Connectivity.ReconnectPulse,
		InitialOnline:  !cfg.Connectivity.Probe.Enabled,
		Logger:         logger,
		Metrics:        metrics,
	})

	// Dropped-action notifier
	var notifier queue.DropNotifier
	if cfg.Notifications.Enabled {
		awsCfg, err := platformaws.LoadAWSConfig(ctx, platformaws.Config{Region: cfg.AWS.Region})
		if err != nil {
			logger.LogError(ctx, "failed to load AWS config", err)
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		snsClient := platformaws.NewSNSClient(platformaws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    logger,
		})
		notifier, err = notification.NewSNSPublisher(notification.SNSPublisherConfig{
			SNSClient: snsClient,
			TopicARN:  cfg.Notifications.SNSTopicARN,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("Failed to create SNS publisher: %v", err)
		}
	} else {
		notifier = notification.NewNoOpPublisher(logger)
	}

	// Durable action queue with the generic HTTP replay handler.
	actionQueue, err := queue.NewQueue(queue.QueueConfig{
		Store:         st,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		ReplayTimeout: cfg.Queue.ReplayTimeout,
		Connectivity:  monitor,
		DropNotifier:  notifier,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create queue: %v", err)
	}
	actionQueue.RegisterHandler("http.request", queue.NewHTTPHandler(
		&http.Client{Timeout: cfg.Queue.ReplayTimeout},
		cfg.Queue.ReplayBaseURL,
	))

	coordinator := syncer.NewCoordinator(syncer.CoordinatorConfig{
		Queue:   actionQueue,
		Monitor: monitor,
		Logger:  logger,
		Tracer:  tracer.Tracer(),
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Connectivity.Probe.Enabled {
		probe := connectivity.NewProbe(connectivity.ProbeConfig{
			URL:      cfg.Connectivity.Probe.URL,
			Interval: cfg.Connectivity.Probe.Interval,
			Timeout:  cfg.Connectivity.Probe.Timeout,
			Monitor:  monitor,
			Logger:   logger,
		})
		g.Go(func() error { return probe.Run(gctx) })
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: newHTTPHandler(cfg, metrics, coordinator, monitor, actionQueue),
	}
	g.Go(func() error {
		logger.Info("http server listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("syncd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-gctx.Done():
	}
	cancel()

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.LogError(context.Background(), "shutdown error", err)
	}
	logger.Info("syncd stopped")
}

// buildStore creates the configured persistent store backend.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "bolt":
		return store.NewBoltStore(cfg.Store.Bolt.Path)
	case "redis":
		return store.NewRedisStore(cfg.Store.Redis.Address, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	case "dynamo":
		awsCfg, err := platformaws.LoadAWSConfig(ctx, platformaws.Config{Region: cfg.AWS.Region})
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return store.NewDynamoStore(awsCfg, cfg.Store.Dynamo.Table), nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

// newHTTPHandler builds the operational surface: metrics, health, queue
// status for banners, enqueueing, and the background-sync wake endpoint.
func newHTTPHandler(cfg *config.Config, metrics *observability.Metrics, coordinator *syncer.Coordinator, monitor *connectivity.Monitor, actionQueue *queue.Queue) http.Handler {
	mux := http.NewServeMux()

	if cfg.Observability.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(coordinator.Status(r.Context()))
	})

	// Buffer a mutating operation for replay. The action is durable once
	// this returns 202; an immediate drain is attempted when online.
	mux.HandleFunc("/enqueue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Kind     string            `json:"kind"`
			Data     json.RawMessage   `json:"data"`
			Priority *int              `json:"priority,omitempty"`
			Request  *queue.HTTPRequest `json:"request,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if body.Kind == "" {
			body.Kind = "http.request"
		}
		priority := cfg.Queue.DefaultPriority
		if body.Priority != nil {
			priority = *body.Priority
		}

		var payload any = body.Data
		if body.Request != nil {
			payload = body.Request
		}

		action, err := actionQueue.Enqueue(r.Context(), body.Kind, payload, priority)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		go coordinator.FlushNow(context.Background())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"id": action.ID})
	})

	// Background-sync wake-up: the worker asks for a drain, it does not
	// perform the replays itself. Safe while offline or mid-drain.
	mux.HandleFunc("/flush", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res := coordinator.FlushNow(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	})

	// Connectivity hints from an external supervisor.
	mux.HandleFunc("/online", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		monitor.SetOnline(true)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/offline", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		monitor.SetOnline(false)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
