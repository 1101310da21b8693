// Package upstream holds the JSON-over-HTTP plumbing shared by the api-core
// and payments clients.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
)

const (
	CallerHeader = "X-Caller-Service"
	CallerName   = "billing-service"
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Client issues GET requests against one upstream through a circuit breaker.
// Failed calls are reported, never retried.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(name, baseURL string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// 4xx answers mean the upstream is healthy.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *Client) Name() string { return c.name }

// GetJSON fetches path and decodes the body into out. Transport errors,
// non-2xx statuses and an open breaker wrap billing.ErrUpstreamUnavailable;
// undecodable bodies wrap billing.ErrMalformedInput.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(CallerHeader, CallerName)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s GET %s: %v", billing.ErrUpstreamUnavailable, c.name, path, err)
	}

	if err := json.Unmarshal(result.([]byte), out); err != nil {
		return fmt.Errorf("%w: %s GET %s: %v", billing.ErrMalformedInput, c.name, path, err)
	}
	return nil
}
