package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPClient describes an HTTP client. *http.Client and *Client both satisfy it.
//
//go:generate mockgen -package=httpxmock -destination=httpxmock/mock_http_client.go -source=httpx.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned when retries are exhausted on a retryable status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("upstream status %d", e.Code) }

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
	// Retries is the number of extra attempts after a retryable failure
	// (network timeout, connection reset/refused, 429, 5xx).
	Retries   int
	RetryWait time.Duration
}

func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(transport)},
		UserAgent: "shipping-quote/1.0",
		Retries:   1,
		RetryWait: 200 * time.Millisecond,
	}
}

// Do sends req, retrying retryable failures with exponential backoff bounded
// by the request context. Request bodies are replayed through req.GetBody.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if c.Retries <= 0 {
		return c.HTTP.Do(req)
	}

	b := backoff.NewExponentialBackOff()
	if c.RetryWait > 0 {
		b.InitialInterval = c.RetryWait
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.Retries)), req.Context())

	attempt := 0
	return backoff.RetryWithData(func() (*http.Response, error) {
		r := req
		if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, backoff.Permanent(errors.New("request body cannot be replayed"))
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}
		attempt++

		resp, err := c.HTTP.Do(r)
		if err != nil {
			if Retryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return resp, nil
	}, policy)
}

// Retryable reports whether a transport error is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
