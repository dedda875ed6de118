package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"subsbuzz-client-go/internal/apierr"
	"subsbuzz-client-go/internal/metrics"
	"subsbuzz-client-go/internal/retry"
)

// errBodyCap bounds how much of a failed response body is read when building
// a normalized error.
const errBodyCap = 8192

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	query   map[string]string
	headers map[string]string
}

// WithQuery adds a query parameter to the request URL.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(map[string]string)
		}
		o.query[key] = value
	}
}

// WithHeader sets an extra header on the request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// requestState is the per-request retry state. It is passed by value through
// each attempt so concurrent requests can never interfere with each other.
type requestState struct {
	attempt        int
	retriedForAuth bool
}

// Execute performs one logical API call. body, when non-nil, is JSON-encoded
// once and reused across attempts; out, when non-nil, receives the decoded
// response payload — a `{"data": ...}` envelope is unwrapped, any other shape
// is decoded directly. The returned error is always a *apierr.Error.
//
// Recovery is applied in this order: a 401 triggers one shared token refresh
// followed by a single redispatch; network failures and 5xx responses are
// retried under the client's backoff policy. 4xx responses and exhausted
// budgets surface immediately.
func (c *Client) Execute(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &apierr.Error{Code: apierr.CodeUnknown, Message: fmt.Sprintf("failed to encode request body: %v", err)}
		}
	}

	requestID := uuid.NewString()
	err := c.execute(ctx, method, path, payload, out, requestID, options, requestState{})
	if err != nil {
		e := apierr.Normalize(err)
		metrics.RequestFailures.WithLabelValues(e.Code).Inc()
		return e
	}
	return nil
}

// execute runs the attempt loop for one logical request.
func (c *Client) execute(ctx context.Context, method, path string, payload []byte, out any, requestID string, options requestOptions, st requestState) error {
	for {
		err := c.dispatch(ctx, method, path, payload, out, requestID, options)
		if err == nil {
			return nil
		}

		// Caller cancellation is terminal regardless of what the attempt
		// reported.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		e := apierr.Normalize(err)

		if e.Status == http.StatusUnauthorized && !st.retriedForAuth {
			st.retriedForAuth = true
			if _, refreshErr := c.refresher.Refresh(ctx); refreshErr != nil {
				// A cancelled caller only abandons its own wait; the shared
				// refresh keeps running for everyone else, so the session
				// must stay intact.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				_ = c.signOut(ctx)
				return apierr.Wrap(apierr.CodeAuthFailed, e.Status, refreshErr)
			}
			// Redispatch exactly once with the fresh token.
			continue
		}

		if c.policy.ShouldRetry(e, st.attempt) {
			delay := c.policy.Delay(st.attempt)
			st.attempt++
			metrics.RequestRetries.WithLabelValues(method).Inc()
			c.logger.Printf("request %s %s failed (%s), retry %d in %s", method, path, e.Code, st.attempt, delay)
			if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		return e
	}
}

// dispatch performs a single transport attempt.
func (c *Client) dispatch(ctx context.Context, method, path string, payload []byte, out any, requestID string, options requestOptions) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if len(options.query) > 0 {
		q := req.URL.Query()
		for k, v := range options.query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range options.headers {
		req.Header.Set(k, v)
	}

	pair, err := c.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token store: %w", err)
	}
	if pair != nil && pair.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	metrics.RequestsTotal.WithLabelValues(method).Inc()
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyCap))
		io.Copy(io.Discard, resp.Body)
		return apierr.FromResponse(resp.StatusCode, slurp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return decodePayload(raw, out)
}

// decodePayload decodes a successful response body into out. Bodies wrapped
// in a `{"data": ...}` envelope are unwrapped; anything else is decoded as-is.
// Both shapes exist in the backend and both must keep working.
func decodePayload(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		raw = env.Data
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &apierr.Error{Code: apierr.CodeUnknown, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}
