package luminus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/metrics"
)

// fetch GETs u and decodes the JSON body into dest. A forbidden response
// means the session is gone: it logs in again and retries exactly once.
func (c *Client) fetch(ctx context.Context, resource, u string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// we try up to 2 times because the session might have expired
	for i := 0; i < 2; i++ {
		resp, err := c.get(ctx, resource, u)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusForbidden && i == 0 {
			drain(resp)
			log.Ctx(ctx).DebugContext(ctx, "luminus session expired", slog.String("url", u))
			c.invalidate()
			metrics.ReloginsTotal.Inc()
			if err := c.ensureAuthenticated(ctx); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			drain(resp)
			log.Ctx(ctx).WarnContext(ctx, "luminus response error", slog.String("url", u), slog.Int("status", resp.StatusCode))
			c.invalidate()
			return &ConnectionError{URL: u, StatusCode: resp.StatusCode}
		}

		err = json.NewDecoder(resp.Body).Decode(dest)
		drain(resp)
		if err != nil {
			return connectionError(u, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}
	return nil
}

func (c *Client) get(ctx context.Context, resource, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, connectionError(u, err)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveRequest(resource, 0, started)
		if isTimeout(err) {
			log.Ctx(ctx).WarnContext(ctx, "luminus request timed out", slog.String("url", u))
		}
		return nil, connectionError(u, err)
	}
	metrics.ObserveRequest(resource, resp.StatusCode, started)
	return resp, nil
}
