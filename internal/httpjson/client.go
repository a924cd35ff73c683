// Package httpjson is the JSON-over-HTTP transport shared by the REST adapters.
// It throttles requests, classifies failures into domain.ProviderError and
// decodes successful bodies.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"energyrag/internal/domain"
)

const maxErrorBody = 4 << 10

// Client sends JSON requests to one backend.
type Client struct {
	provider string
	http     *http.Client
	header   http.Header
	limiter  *rate.Limiter
}

// New returns a client for provider. A non-positive requestsPerSecond disables throttling.
func New(provider string, timeout time.Duration, requestsPerSecond float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		header:   make(http.Header),
	}
	if requestsPerSecond > 0 {
		burst := int(math.Ceil(requestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return c
}

// SetHeader adds a header sent with every request.
func (c *Client) SetHeader(key, value string) {
	if value != "" {
		c.header.Set(key, value)
	}
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, url, op string, out any) error {
	return c.Do(ctx, http.MethodGet, url, op, nil, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, url, op string, body, out any) error {
	return c.Do(ctx, http.MethodPost, url, op, body, out)
}

// Put issues a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, url, op string, body, out any) error {
	return c.Do(ctx, http.MethodPut, url, op, body, out)
}

// Do performs one request. Non-2xx statuses become *domain.ProviderError with
// Retryable set for 408, 429 and 5xx, and RetryAfter taken from the header.
func (c *Client) Do(ctx context.Context, method, url, op string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: marshal request: %w", c.provider, op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s %s: create request: %w", c.provider, op, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewTransportError(c.provider, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pe := domain.NewStatusError(c.provider, op, resp.StatusCode, errorMessage(raw, resp.Status))
		pe.RetryAfter = RetryAfter(resp.Header.Get("Retry-After"))
		return pe
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// errorMessage pulls a human readable message out of common error envelopes:
// {"error":{"message":..}}, {"error":".."} and {"status":{"error":".."}}.
func errorMessage(raw []byte, status string) string {
	var env struct {
		Error  json.RawMessage `json:"error"`
		Status json.RawMessage `json:"status"`
	}
	if json.Unmarshal(raw, &env) == nil {
		for _, field := range []json.RawMessage{env.Error, env.Status} {
			if len(field) == 0 {
				continue
			}
			var s string
			if json.Unmarshal(field, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
				Error   string `json:"error"`
			}
			if json.Unmarshal(field, &obj) == nil {
				if obj.Message != "" {
					return obj.Message
				}
				if obj.Error != "" {
					return obj.Error
				}
			}
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return status
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
