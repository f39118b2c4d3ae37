// Package httpx is the JSON HTTP client shared by the REST and JSON-RPC gateways.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/core/netutil"
	"github.com/m3rciful/tradebot/internal/errs"
)

const userAgent = "tradebot/1.0"

type Client struct {
	httpClient *http.Client
	retries    int
	component  string
}

// New builds a client; component names the logger used for request lines.
func New(timeout time.Duration, retries int, component string) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		component:  component,
	}
}

// WithRetries returns a copy of the client with a different retry budget.
// Non-idempotent submissions (execute, send) use zero retries.
func (c *Client) WithRetries(retries int) *Client {
	clone := *c
	if retries < 0 {
		retries = 0
	}
	clone.retries = retries
	return &clone
}

// DoJSON sends req and decodes a 2xx JSON body into out.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, errs.Wrap(errs.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			if attempt < c.retries && netutil.ShouldRetry(err) {
				continue
			}
			c.logFailure(ctx, req, attempt+1, start, lastErr)
			return nil, lastErr
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return resp.Header, errs.Wrap(errs.CodeUnavailable, "read provider response", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = errs.New(errs.CodeRateLimited, "provider rate limited request")
			if attempt < c.retries {
				continue
			}
			c.logFailure(ctx, req, attempt+1, start, lastErr)
			return resp.Header, lastErr
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp.Header, errs.New(errs.CodeAuth, "provider authentication failed")
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = errs.Wrap(errs.CodeUnavailable, fmt.Sprintf("provider unavailable (status %d)", resp.StatusCode), bodyError(buf))
			if attempt < c.retries {
				continue
			}
			c.logFailure(ctx, req, attempt+1, start, lastErr)
			return resp.Header, lastErr
		}

		if resp.StatusCode == http.StatusNotFound {
			return resp.Header, errs.Wrap(errs.CodeNotFound, "provider resource not found", bodyError(buf))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.Header, errs.Wrap(errs.CodeUpstream, fmt.Sprintf("provider returned status %d", resp.StatusCode), bodyError(buf))
		}

		logger.Debug(ctx, c.component, "http.done",
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.String("path", req.URL.Path),
			slog.Int("http_code", resp.StatusCode),
			slog.Int("attempts", attempt+1),
			slog.Duration("duration", logger.Took(start)),
		)

		if out == nil {
			return resp.Header, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return resp.Header, errs.New(errs.CodeUnavailable, "provider returned empty response")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return resp.Header, errs.Wrap(errs.CodeUnavailable, "decode provider JSON", err)
		}
		return resp.Header, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errs.New(errs.CodeUnavailable, "request failed")
}

// DoBodyJSON builds a request with an optional JSON body and decodes the response.
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body any, headers map[string]string, out any) (http.Header, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "encode request body", err)
		}
		payload = raw
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func (c *Client) logFailure(ctx context.Context, req *http.Request, attempts int, start time.Time, err error) {
	logger.Warn(ctx, c.component, "http.fail",
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.String("path", req.URL.Path),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", err.Error()),
	)
}

// bodyError extracts the provider's own message from an error body.
func bodyError(buf []byte) error {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 {
		return nil
	}
	var payload struct {
		Error        any    `json:"error"`
		ErrorMessage string `json:"errorMessage"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		switch {
		case payload.ErrorMessage != "":
			return fmt.Errorf("%s", payload.ErrorMessage)
		case payload.Message != "":
			return fmt.Errorf("%s", payload.Message)
		case payload.Error != nil:
			if s, ok := payload.Error.(string); ok && s != "" {
				return fmt.Errorf("%s", s)
			}
			if raw, err := json.Marshal(payload.Error); err == nil {
				return fmt.Errorf("%s", raw)
			}
		}
	}
	return fmt.Errorf("%s", logger.Clip(strings.TrimSpace(string(trimmed)), 256))
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok {
		if nerr.Timeout() {
			return errs.Wrap(errs.CodeUnavailable, "provider timeout", err)
		}
	}
	return errs.Wrap(errs.CodeUnavailable, "provider request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
