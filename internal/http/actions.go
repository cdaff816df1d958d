package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"go-mailflow-dashboard/internal/dashboard"
)

const (
	actionRestartService  = "restart-service"
	actionRestartExchange = "restart-exchange"
	actionRestartIIS      = "restart-iis"
)

// ActionsClient triggers operational scripts exposed by the mail host.
type ActionsClient struct {
	base    string
	timeout time.Duration
	client  *nethttp.Client
}

// NewActionsClient returns nil when base is empty, which disables actions.
func NewActionsClient(base string, timeout time.Duration) *ActionsClient {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ActionsClient{base: base, timeout: timeout, client: &nethttp.Client{Timeout: timeout}}
}

// Trigger performs GET {base}/{action}?{params}. The response body is drained
// and discarded; only transport errors and non-2xx codes are reported.
func (c *ActionsClient) Trigger(ctx context.Context, action string, params url.Values) error {
	u := c.base + "/" + action
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: HTTP %d", action, resp.StatusCode)
	}
	return nil
}

func validServiceName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == '$':
		default:
			return false
		}
	}
	return true
}

func actionHandler(client *ActionsClient, refresher *dashboard.Refresher, ident identityResolver, action string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !methodAllowed(w, r, nethttp.MethodPost) {
			return
		}
		if client == nil {
			writeError(w, nethttp.StatusServiceUnavailable, "actions disabled (set APP_ACTIONS_ENDPOINT)")
			return
		}
		id := ident.resolve(r)
		if !id.Admin {
			writeError(w, nethttp.StatusForbidden, "admin privileges required")
			return
		}

		params := url.Values{}
		if action == actionRestartService {
			service := strings.TrimSpace(r.URL.Query().Get("service"))
			if !validServiceName(service) {
				writeError(w, nethttp.StatusBadRequest, "invalid service name")
				return
			}
			params.Set("service", service)
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), client.timeout)
			defer cancel()

			start := time.Now()
			err := client.Trigger(ctx, action, params)
			recordExternalProbe("actions", action, time.Since(start).Seconds(), err)
			if err != nil {
				slog.Warn("action failed", "action", action, "user", id.Username, "err", err)
			} else {
				slog.Info("action triggered", "action", action, "user", id.Username, "service", params.Get("service"))
			}
			if refresher != nil {
				refresher.Request("action "+action, dashboard.ViewExchangeServices)
			}
		}()

		writeJSON(w, nethttp.StatusAccepted, map[string]any{
			"status":  "triggered",
			"action":  action,
			"service": params.Get("service"),
		})
	}
}
