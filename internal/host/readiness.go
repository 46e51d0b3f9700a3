package host

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober performs one readiness check against the engine.
type Prober interface {
	Ready(ctx context.Context) error
}

// HTTPProbe considers the engine ready once it answers HTTP at all. Any
// status below 500 means the server is accepting requests.
type HTTPProbe struct {
	URL    string
	client *http.Client
}

// NewHTTPProbe creates a probe for the engine base URL.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL: url,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

func (p *HTTPProbe) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine not reachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("engine not ready: status %d", resp.StatusCode)
	}
	return nil
}

// Backoff bounds for WaitReady.
const (
	probeInitialDelay = 100 * time.Millisecond
	probeMaxDelay     = 2 * time.Second
)

// WaitReady polls the probe with exponential backoff (capped at 2s) until it
// succeeds, timeout elapses or ctx is done.
func WaitReady(ctx context.Context, p Prober, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := probeInitialDelay
	for {
		err := p.Ready(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("engine not ready after %v: %w", timeout, err)
		case <-time.After(delay):
		}

		delay *= 2
		if delay > probeMaxDelay {
			delay = probeMaxDelay
		}
	}
}
