// Package health provides a small reachability check for the
// downstream channel manager, used by internal/webapi's health
// endpoint to report whether dispatcharr is actually reachable rather
// than just whether the engine itself is up.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckURL fetches url with GET and returns nil on any non-5xx
// response, or an error describing why it isn't reachable. Used
// against dispatcharr's base URL; a reverse proxy in front of it can
// 404 on "/" without dispatcharr itself being down, so only a server
// error or an unreachable connection counts as unhealthy.
func CheckURL(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("no URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("returned HTTP %d", resp.StatusCode)
	}
	return nil
}
