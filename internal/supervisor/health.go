package supervisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wagiedev/daemonkit/internal/errors"
)

func healthURL(port uint16, path string) string {
	return fmt.Sprintf("http://localhost:%d%s", port, path)
}

// checkHealth performs one GET against the health endpoint.
func checkHealth(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("daemon health check failed: %s", resp.Status)
	}

	return nil
}

// waitReady polls the health endpoint every interval until it succeeds or
// timeout elapses.
func waitReady(
	ctx context.Context,
	client *http.Client,
	port uint16,
	path string,
	interval, timeout time.Duration,
) error {
	url := healthURL(port, path)
	deadline := time.Now().Add(timeout)

	var lastErr error

	for time.Now().Before(deadline) {
		if lastErr = checkHealth(ctx, client, url); lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return &errors.ReadinessTimeoutError{Port: port, Timeout: timeout, LastErr: lastErr}
}
