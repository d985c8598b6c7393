package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbrandao/syncbox/internal/platform/observability"
)

// WarmupProvider pre-populates some slice of the cache. Implementations
// must be idempotent; a provider may run again after a restart.
type WarmupProvider interface {
	// Name identifies the provider in logs.
	Name() string

	// Warmup loads the provider's data into the cache.
	Warmup(ctx context.Context) error
}

// WarmupConfig configures cache warming.
type WarmupConfig struct {
	Timeout         time.Duration
	ContinueOnError bool
	Parallel        bool
}

// DefaultWarmupConfig returns sensible warming defaults.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
	}
}

// WarmupResult is the outcome of one provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// Warmer runs registered warmup providers at startup.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Warmer{logger: logger, config: config}
}

// RegisterProvider adds a provider to the warmer.
func (w *Warmer) RegisterProvider(p WarmupProvider) {
	w.providers = append(w.providers, p)
}

// Warmup runs all providers and returns per-provider results. Provider
// failures are collected, not fatal, unless ContinueOnError is false in
// sequential mode.
func (w *Warmer) Warmup(ctx context.Context) []WarmupResult {
	if len(w.providers) == 0 {
		return nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	var results []WarmupResult
	if w.config.Parallel {
		results = make([]WarmupResult, len(w.providers))
		g, gctx := errgroup.WithContext(warmCtx)
		for i, p := range w.providers {
			i, p := i, p
			g.Go(func() error {
				results[i] = w.runProvider(gctx, p)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, p := range w.providers {
			r := w.runProvider(warmCtx, p)
			results = append(results, r)
			if r.Err != nil && !w.config.ContinueOnError {
				break
			}
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		w.logger.LogWarn(ctx, "cache warmup finished with failures",
			"providers", len(w.providers), "failed", failed)
	} else {
		w.logger.LogInfo(ctx, "cache warmup finished",
			"providers", len(w.providers))
	}

	return results
}

func (w *Warmer) runProvider(ctx context.Context, p WarmupProvider) WarmupResult {
	start := time.Now()
	err := p.Warmup(ctx)
	d := time.Since(start)

	if err != nil {
		w.logger.LogWarn(ctx, "warmup provider failed", "provider", p.Name(), "error", err, "duration", d)
	} else {
		w.logger.LogDebug(ctx, "warmup provider finished", "provider", p.Name(), "duration", d)
	}

	return WarmupResult{Provider: p.Name(), Duration: d, Err: err}
}

// namespaceProvider warms a Manager's memory tier from its durable tier.
type namespaceProvider struct {
	manager    *Manager
	namespaces []string
}

// NamespaceWarmupProvider returns a provider that loads the given
// namespaces (or everything, when empty) from the durable tier into memory.
func NamespaceWarmupProvider(m *Manager, namespaces ...string) WarmupProvider {
	return &namespaceProvider{manager: m, namespaces: namespaces}
}

func (p *namespaceProvider) Name() string {
	if len(p.namespaces) == 0 {
		return "cache:all"
	}
	return "cache:" + p.namespaces[0]
}

func (p *namespaceProvider) Warmup(ctx context.Context) error {
	_, err := p.manager.Warm(ctx, p.namespaces...)
	return err
}
