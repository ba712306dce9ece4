// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/skyrelay/pkg/api"
	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

const clientTimeout = 15 * time.Second

// apiClient talks to a running skyrelay serve instance
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: clientTimeout},
	}
}

// apiError is a non-2xx reply from the control API
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var r api.Response
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil || r.Message == "" {
			return &apiError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &apiError{Code: resp.StatusCode, Message: r.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Status(ctx context.Context) (router.Status, error) {
	var st router.Status
	err := c.do(ctx, http.MethodGet, "/api/telemetry/status", nil, &st)
	return st, err
}

func (c *apiClient) Start(ctx context.Context, device string, baud int) (api.Response, error) {
	var r api.Response
	err := c.do(ctx, http.MethodPost, "/api/telemetry/start", api.StartRequest{SerialPort: device, BaudRate: baud}, &r)
	return r, err
}

func (c *apiClient) Stop(ctx context.Context) (api.Response, error) {
	var r api.Response
	err := c.do(ctx, http.MethodPost, "/api/telemetry/stop", nil, &r)
	return r, err
}

func (c *apiClient) Destinations(ctx context.Context) ([]destination.Info, error) {
	var list []destination.Info
	err := c.do(ctx, http.MethodGet, "/api/telemetry/destinations", nil, &list)
	return list, err
}

func (c *apiClient) AddDestination(ctx context.Context, cfg destination.Config) (api.Response, error) {
	var r api.Response
	err := c.do(ctx, http.MethodPost, "/api/telemetry/destinations", cfg, &r)
	return r, err
}

func (c *apiClient) RemoveDestination(ctx context.Context, name string) (api.Response, error) {
	var r api.Response
	err := c.do(ctx, http.MethodDelete, "/api/telemetry/destinations/"+url.PathEscape(name), nil, &r)
	return r, err
}

// feedURL converts the API address to the status feed websocket URL
func feedURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme: %s", u.Scheme)
	}
	u.Path += "/ws/telemetry"
	return u.String(), nil
}

// dialFeed connects to the status feed
func dialFeed(ctx context.Context, base string) (*websocket.Conn, error) {
	wsURL, err := feedURL(base)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("status feed connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("status feed connection failed: %w", err)
	}
	return conn, nil
}

// parseDestination parses "name host[:port] [udp|tcp]"
func parseDestination(fields []string) (destination.Config, error) {
	if len(fields) < 2 || len(fields) > 3 {
		return destination.Config{}, fmt.Errorf("expected: name host[:port] [udp|tcp]")
	}
	cfg := destination.Config{Name: fields[0], Host: fields[1]}
	if i := strings.LastIndex(fields[1], ":"); i > 0 && !strings.Contains(fields[1][:i], ":") {
		var port int
		if _, err := fmt.Sscanf(fields[1][i+1:], "%d", &port); err != nil {
			return destination.Config{}, fmt.Errorf("invalid port in %q", fields[1])
		}
		cfg.Host, cfg.Port = fields[1][:i], port
	}
	if len(fields) == 3 {
		t, err := destination.ParseTransport(fields[2])
		if err != nil {
			return destination.Config{}, err
		}
		cfg.Transport = t
	}
	return cfg, nil
}
