package hostfunc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/morphir-dev/exthost/netutil"
)

// HTTPRequest is the guest-side shape of an outbound request.
type HTTPRequest struct {
	// Headers contains request headers.
	Headers map[string]string `json:"headers,omitempty"`

	// FollowRedirects controls redirect following. Default is true.
	FollowRedirects *bool `json:"follow_redirects,omitempty"`

	// Method is the HTTP method; empty means GET.
	Method string `json:"method"`

	// URL is the target URL.
	URL string `json:"url"`

	// Body is the request body.
	Body []byte `json:"body,omitempty"`

	// Timeout is the request timeout in milliseconds. Default is 30000.
	Timeout int `json:"timeout_ms,omitempty"`

	// MaxRedirects caps redirect following. Default is 10.
	MaxRedirects int `json:"max_redirects,omitempty"`
}

// HTTPResponse is the result returned to the guest.
type HTTPResponse struct {
	Headers       map[string][]string `json:"headers,omitempty"`
	Error         *HTTPError          `json:"error,omitempty"`
	Proto         string              `json:"proto,omitempty"`
	Body          []byte              `json:"body,omitempty"`
	LatencyMs     int64               `json:"latency_ms,omitempty"`
	StatusCode    int                 `json:"status_code"`
	BodyTruncated bool                `json:"body_truncated,omitempty"`
}

// HTTPError carries a machine-readable failure code next to the message.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// HTTPOption configures outbound request behavior.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	timeout         time.Duration
	maxRedirects    int
	maxBodySize     int64
	followRedirects bool
	allowedHosts    []string
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		timeout:         30 * time.Second,
		maxRedirects:    10,
		followRedirects: true,
		maxBodySize:     10 * 1024 * 1024,
	}
}

// WithHTTPRequestTimeout sets the request timeout.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxRedirects caps redirect following.
func WithHTTPMaxRedirects(n int) HTTPOption {
	return func(c *httpConfig) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithHTTPFollowRedirects controls redirect following.
func WithHTTPFollowRedirects(follow bool) HTTPOption {
	return func(c *httpConfig) { c.followRedirects = follow }
}

// WithHTTPMaxBodySize caps the response body size.
func WithHTTPMaxBodySize(size int64) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHTTPAllowedHosts restricts requests to hosts matching the given
// patterns ("api.example.com", "*.example.com"). Empty means any host.
func WithHTTPAllowedHosts(patterns ...string) HTTPOption {
	return func(c *httpConfig) { c.allowedHosts = patterns }
}

// PerformHTTPRequest executes an outbound request on the guest's behalf
// and returns a response the guest can decode. Errors surface inside the
// response, never as a Go error, so the guest always gets a document.
func PerformHTTPRequest(ctx context.Context, req HTTPRequest, opts ...HTTPOption) HTTPResponse {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	applyRequestConfig(&req, &cfg)

	if req.URL == "" {
		return HTTPResponse{Error: &HTTPError{Code: "INVALID_REQUEST", Message: "URL is required"}}
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if err := checkAllowedHost(req.URL, cfg.allowedHosts); err != nil {
		return HTTPResponse{Error: &HTTPError{Code: "HOST_NOT_ALLOWED", Message: err.Error()}}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	return executeHTTPRequest(ctx, req, cfg)
}

// applyRequestConfig lets the request override host defaults.
func applyRequestConfig(req *HTTPRequest, cfg *httpConfig) {
	if req.Timeout > 0 {
		cfg.timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	if req.MaxRedirects > 0 {
		cfg.maxRedirects = req.MaxRedirects
	}
	if req.FollowRedirects != nil {
		cfg.followRedirects = *req.FollowRedirects
	}
}

// checkAllowedHost matches the URL's hostname against the allow patterns.
func checkAllowedHost(rawURL string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	host, err := netutil.Hostname(rawURL)
	if err != nil {
		return err
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, host); ok {
			return nil
		}
		if strings.EqualFold(pattern, host) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in the allowed list", host)
}

func executeHTTPRequest(ctx context.Context, req HTTPRequest, cfg httpConfig) HTTPResponse {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, body)
	if err != nil {
		return HTTPResponse{Error: &HTTPError{Code: "INVALID_REQUEST", Message: err.Error()}}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := newHTTPClient(cfg)

	start := time.Now()
	resp, err := client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return classifyHTTPError(ctx, err, latency)
	}
	defer func() { _ = resp.Body.Close() }()

	return readHTTPResponse(resp, latency, cfg.maxBodySize)
}

func newHTTPClient(cfg httpConfig) *http.Client {
	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	if !cfg.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if cfg.maxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.maxRedirects)
			}
			return nil
		}
	}
	return client
}

func classifyHTTPError(ctx context.Context, err error, latency time.Duration) HTTPResponse {
	code := "REQUEST_FAILED"
	switch {
	case strings.Contains(err.Error(), "timeout"), ctx.Err() == context.DeadlineExceeded:
		code = "TIMEOUT"
	case strings.Contains(err.Error(), "redirect"):
		code = "TOO_MANY_REDIRECTS"
	case strings.Contains(err.Error(), "no such host"):
		code = "HOST_NOT_FOUND"
	case strings.Contains(err.Error(), "connection refused"):
		code = "CONNECTION_REFUSED"
	}
	return HTTPResponse{
		LatencyMs: latency.Milliseconds(),
		Error:     &HTTPError{Code: code, Message: err.Error()},
	}
}

// readHTTPResponse drains the body under the size cap. Hitting the cap
// returns the truncated bytes with a flag rather than failing the call.
func readHTTPResponse(resp *http.Response, latency time.Duration, maxBodySize int64) HTTPResponse {
	limited := netutil.NewLimitedReader(resp.Body, maxBodySize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		if netutil.IsSizeLimitExceeded(err) {
			return HTTPResponse{
				StatusCode:    resp.StatusCode,
				Headers:       resp.Header,
				Body:          respBody,
				BodyTruncated: true,
				LatencyMs:     latency.Milliseconds(),
				Proto:         resp.Proto,
			}
		}
		return HTTPResponse{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			LatencyMs:  latency.Milliseconds(),
			Error:      &HTTPError{Code: "READ_BODY_FAILED", Message: err.Error()},
		}
	}

	return HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		LatencyMs:  latency.Milliseconds(),
		Proto:      resp.Proto,
	}
}
