package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/mbrandao/syncbox/internal/platform/observability"
)

// ProbeConfig holds active probe configuration.
type ProbeConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Monitor  *Monitor
	Logger   *observability.Logger
	Client   *http.Client
}

// Probe actively checks reachability of a known endpoint and feeds the
// result into the Monitor. It is the daemon-side analog of the browser's
// online/offline events: any HTTP response counts as online, only a
// transport failure counts as offline.
type Probe struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	monitor  *Monitor
	logger   *observability.Logger
	client   *http.Client
}

// NewProbe creates a connectivity probe.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Probe{
		url:      cfg.URL,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		monitor:  cfg.Monitor,
		logger:   cfg.Logger,
		client:   cfg.Client,
	}
}

// Run probes until ctx is cancelled. The first probe fires immediately so
// startup state does not wait a full interval.
func (p *Probe) Run(ctx context.Context) error {
	p.monitor.SetOnline(p.check(ctx))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.monitor.SetOnline(p.check(ctx))
		}
	}
}

func (p *Probe) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.LogWarn(ctx, "probe request build failed", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	// A response with any status means the network path works.
	return true
}
