// Package netutil provides the HTTP plumbing the extension loader uses to
// fetch modules: bounded-size reads, retrying transport, and URL hygiene
// helpers.
package netutil

import (
	"net/http"
	"strconv"
	"time"
)

// RetryTransport retries transient download failures with exponential
// backoff, honoring Retry-After when the server sends one.
type RetryTransport struct {
	// Base is the underlying transport; http.DefaultTransport when nil.
	Base http.RoundTripper

	// MaxRetries defaults to 3 when zero.
	MaxRetries int

	// InitialBackoff defaults to 1s; MaxBackoff to 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnRetry, when set, observes each retry attempt.
	OnRetry func(attempt int, wait time.Duration, statusCode int)
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxRetries := t.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initial := t.InitialBackoff
	if initial == 0 {
		initial = time.Second
	}
	maxBackoff := t.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt <= maxRetries; attempt++ {
		clone := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			clone.Body = body
		}

		resp, err := base.RoundTrip(clone)
		if err != nil {
			lastErr = err
			if attempt == maxRetries {
				return nil, lastErr
			}
			t.wait(attempt, initial, maxBackoff, nil)
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastResp = resp
		lastErr = nil
		if attempt == maxRetries {
			break
		}
		_ = resp.Body.Close()
		t.wait(attempt, initial, maxBackoff, resp)
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

func (t *RetryTransport) wait(attempt int, initial, maxBackoff time.Duration, resp *http.Response) {
	d := backoffFor(attempt, initial, maxBackoff, resp)
	if t.OnRetry != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.OnRetry(attempt+1, d, code)
	}
	time.Sleep(d)
}

// backoffFor prefers the server's Retry-After over exponential backoff.
func backoffFor(attempt int, initial, maxBackoff time.Duration, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				return clampDuration(time.Duration(seconds)*time.Second, maxBackoff)
			}
			if at, err := http.ParseTime(ra); err == nil {
				d := time.Until(at)
				if d < 0 {
					return initial
				}
				return clampDuration(d, maxBackoff)
			}
		}
	}
	return clampDuration(initial*(1<<attempt), maxBackoff)
}

func clampDuration(d, maxBackoff time.Duration) time.Duration {
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
