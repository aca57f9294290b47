package specialist

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	"golang.org/x/sync/errgroup"
)

// Prober polls the health URL of every registered endpoint.
type Prober struct {
	registry   *Registry
	httpClient *http.Client
	timeout    time.Duration
}

func NewProber(registry *Registry, timeout time.Duration, httpClient *http.Client) *Prober {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Prober{registry: registry, httpClient: httpClient, timeout: timeout}
}

// Probe checks every endpoint that declares a health URL and records the
// result in the registry. Endpoints without one keep their current health.
func (p *Prober) Probe(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, ep := range p.registry.Endpoints() {
		if ep.HealthURL == "" {
			continue
		}
		g.Go(func() error {
			health := p.check(ctx, ep.HealthURL)
			if health != ep.Health {
				log.Info().
					Str("agent", ep.Name).
					Str("from", string(ep.Health)).
					Str("to", string(health)).
					Msg("agent health changed")
			}
			p.registry.SetHealth(ep.Name, health)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Prober) check(ctx context.Context, url string) contractx.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return contractx.HealthUnreachable
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return contractx.HealthUnreachable
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return contractx.HealthHealthy
	}
	return contractx.HealthUnreachable
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context, every time.Duration) {
	p.Probe(ctx)
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
