// Package client talks to the vendordesk HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vendordesk/internal/model"
	"vendordesk/internal/stats"
	"vendordesk/pkg/circuitbreaker"
	"vendordesk/pkg/metrics"
	"vendordesk/pkg/trace"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    1,
			Timeout:             15 * time.Second,
			HalfOpenMaxRequests: 1,
		}),
	}
}

// do sends the request through the breaker. 4xx responses are returned as
// *APIError and do not count as breaker failures.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var apiErr *APIError

	err := c.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		start := time.Now()

		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(b)
		}

		u := c.baseURL + apiPrefix + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName, traceID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordUpstreamCallLatency(path, "error", time.Since(start))
			return err
		}
		defer resp.Body.Close()
		metrics.RecordUpstreamCallLatency(path, strconv.Itoa(resp.StatusCode), time.Since(start))

		if resp.StatusCode >= 300 {
			e := &APIError{Status: resp.StatusCode, Message: readError(resp.Body)}
			if resp.StatusCode >= 500 {
				return e
			}
			apiErr = e
			return nil
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func readError(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) Emails(ctx context.Context, limit int) ([]model.Email, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.Email
	return out, c.do(ctx, http.MethodGet, "/emails", q, nil, &out)
}

// Sessions lists sessions, narrowed to tab when it is not blank.
func (c *Client) Sessions(ctx context.Context, tab string) ([]model.ShipmentSession, error) {
	q := url.Values{}
	if tab != "" {
		q.Set("tab", tab)
	}
	var out []model.ShipmentSession
	return out, c.do(ctx, http.MethodGet, "/sessions", q, nil, &out)
}

func (c *Client) Vendors(ctx context.Context) ([]model.Vendor, error) {
	var out []model.Vendor
	return out, c.do(ctx, http.MethodGet, "/vendors", nil, nil, &out)
}

func (c *Client) Summary(ctx context.Context) (stats.Summary, error) {
	var out stats.Summary
	return out, c.do(ctx, http.MethodGet, "/stats", nil, nil, &out)
}

func (c *Client) Dashboard(ctx context.Context) (stats.Dashboard, error) {
	var out stats.Dashboard
	return out, c.do(ctx, http.MethodGet, "/dashboard/stats", nil, nil, &out)
}

func (c *Client) Reply(ctx context.Context, emailID int64, content string) (*model.Email, error) {
	var out model.Email
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/emails/%d/reply", emailID), nil, map[string]string{"content": content}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Assign(ctx context.Context, sessionID, vendorID int64) (*model.ShipmentSession, error) {
	var out model.ShipmentSession
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/assign", sessionID), nil, map[string]int64{"vendorId": vendorID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
