package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "yield-tracker/1.0"

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// httpClient issues JSON requests with a per-call timeout, paced by a shared limiter.
type httpClient struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func newHTTPClient(timeout time.Duration, limiter *rate.Limiter) *httpClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &httpClient{
		client:  &http.Client{},
		limiter: limiter,
		timeout: timeout,
	}
}

func (c *httpClient) getJSON(ctx context.Context, url string, dst any) error {
	return c.do(ctx, http.MethodGet, url, nil, dst)
}

func (c *httpClient) postJSON(ctx context.Context, url string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, payload, dst)
}

// getRaw returns the response body unparsed.
func (c *httpClient) getRaw(ctx context.Context, url string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *httpClient) do(ctx context.Context, method, url string, payload []byte, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// skippable reports whether err should drop only the current item of a
// multi-call adapter: a non-2xx status or a per-call timeout. Cancellation of
// the whole run is never skippable.
func skippable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
