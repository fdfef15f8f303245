package xchg

import (
	"context"
	"fmt"
	"strings"

	"resty.dev/v3"
)

// Probe issues an HTTP GET against the Exchange's sibling health-check
// endpoint (<url>/healthz) before a real connection is attempted. Useful
// when the Exchange sits behind a load balancer that exposes HTTP health
// checks separately from the WebSocket endpoint; Dial/Register do not
// call this automatically.
func (e *Engine) Probe(ctx context.Context) error {
	healthURL := healthCheckURL(e.url)

	client := resty.New()
	defer client.Close()

	resp, err := client.R().SetContext(ctx).Get(healthURL)
	if err != nil {
		return errTransport(err)
	}
	if resp.IsError() {
		return errTransport(fmt.Errorf("health check returned status %d", resp.StatusCode()))
	}
	return nil
}

// healthCheckURL rewrites a ws(s):// endpoint to its http(s) sibling with
// a /healthz suffix.
func healthCheckURL(wsURL string) string {
	u := wsURL
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return strings.TrimRight(u, "/") + "/healthz"
}
