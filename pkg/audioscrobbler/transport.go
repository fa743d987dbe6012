package audioscrobbler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Request is one protocol HTTP request. A non-empty Body is sent as a
// form encoded POST; otherwise the request is a GET.
type Request struct {
	Method string
	URL    string
	Body   string
}

// Response is the terminal outcome of a Request.
type Response struct {
	StatusCode int
	Body       string
	Err        error // Set when no HTTP response was received
}

// OK reports whether the request produced a 2xx response.
func (r Response) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends requests asynchronously. done is called exactly once,
// from any goroutine, when the request completes.
type Transport interface {
	Do(ctx context.Context, req Request, done func(Response))
}

const (
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "scrobbler/1.0"

	// DefaultTimeout bounds each request made by HTTPTransport.
	DefaultTimeout = 30 * time.Second
)

// HTTPTransport is a Transport backed by net/http with a replaceable proxy.
type HTTPTransport struct {
	mu        sync.RWMutex
	client    *http.Client
	userAgent string
}

// NewHTTPTransport returns a transport with the given proxy URL. An empty
// proxy uses the environment (HTTP_PROXY and friends).
func NewHTTPTransport(proxy string) (*HTTPTransport, error) {
	t := &HTTPTransport{userAgent: DefaultUserAgent}
	if err := t.SetProxy(proxy); err != nil {
		return nil, err
	}
	return t, nil
}

// SetProxy replaces the proxy used by future requests.
func (t *HTTPTransport) SetProxy(proxy string) error {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		base.Proxy = http.ProxyURL(u)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = &http.Client{Transport: base, Timeout: DefaultTimeout}
	return nil
}

// Do sends req in its own goroutine and reports the outcome to done.
func (t *HTTPTransport) Do(ctx context.Context, req Request, done func(Response)) {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	go func() {
		done(t.do(ctx, client, req))
	}()
}

func (t *HTTPTransport) do(ctx context.Context, client *http.Client, req Request) Response {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != "" {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return Response{StatusCode: resp.StatusCode, Body: string(data)}
}

// escape percent-encodes a form value. Spaces become %20 and both '&' and
// '+' are escaped so values never split or alter the body.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
