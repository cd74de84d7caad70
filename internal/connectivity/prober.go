package connectivity

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const defaultProbeTimeout = 3 * time.Second

// Prober periodically checks a health URL and feeds the result into a Monitor.
type Prober struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Monitor  *Monitor
}

// Run probes immediately and then on every tick until ctx ends.
func (p *Prober) Run(ctx context.Context) {
	if p.Monitor == nil || strings.TrimSpace(p.URL) == "" {
		return
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	p.Monitor.Set(p.Probe(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := p.Probe(ctx)
			if ctx.Err() != nil {
				return
			}
			p.Monitor.Set(online)
		}
	}
}

// Probe sends one HEAD request. Any response below 500 counts as reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
