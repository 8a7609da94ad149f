/*
Package transport defines the abstract "send a request, get a response or
error" capability that the LoadBalancer sends through; Retry, Timeout,
CircuitBreaker and Hedge take any operation, so they can wrap a Port.Send
call. The load balancer depends on the Port interface rather than on
net/http, so tests can substitute a stub that never touches the network.
Outside the request path, pkg/health's probes, pkg/metrics' handlers,
pkg/types and the CLI import net/http as well.

HTTPPort aborts and drops a partial response when its context is cancelled,
as an ingress proxy would, but speaks the Port interface instead of being
wired directly into an http.Handler. It adds no forwarding headers of its
own.
*/
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/ballast/pkg/types"
)

// Port is the abstract HTTP-client capability. Implementations must honor
// ctx cancellation: if the caller's deadline expires mid-flight, Send
// aborts and drops any partial response rather than returning it.
type Port interface {
	Send(ctx context.Context, endpoint string, req types.Request) (types.Response, error)
}

// HTTPPort is the production Port, backed by net/http.
type HTTPPort struct {
	Client *http.Client
}

// NewHTTPPort creates an HTTPPort with a sane default client. Per-call
// deadlines are applied via the context passed to Send, not the client's
// own Timeout field, so a single HTTPPort can serve calls with differing
// deadlines.
func NewHTTPPort() *HTTPPort {
	return &HTTPPort{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 64,
			},
		},
	}
}

// Send implements Port.
func (p *HTTPPort) Send(ctx context.Context, endpoint string, req types.Request) (types.Response, error) {
	target, err := url.Parse(strings.TrimRight(endpoint, "/") + req.Path)
	if err != nil {
		return types.Response{}, &types.TransportError{Kind: types.ErrorKindProtocol, Err: fmt.Errorf("invalid endpoint %q: %w", endpoint, err)}
	}

	if len(req.Query) > 0 {
		q := target.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return types.Response{}, &types.TransportError{Kind: types.ErrorKindProtocol, Err: err}
	}
	httpReq.Header = types.ToHTTPHeader(req.Headers)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return types.Response{}, &types.TransportError{Kind: types.ErrorKindTimeout, Err: ctx.Err()}
		}
		return types.Response{}, &types.TransportError{Kind: types.ErrorKindNetwork, Err: err}
	}
	defer resp.Body.Close()

	// Cancellation during body read: abort and drop the partial response.
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return types.Response{}, &types.TransportError{Kind: types.ErrorKindTimeout, Err: ctx.Err()}
		}
		return types.Response{}, &types.TransportError{Kind: types.ErrorKindNetwork, Err: err}
	}

	return types.Response{
		Status:  resp.StatusCode,
		Headers: types.FromHTTPHeader(resp.Header),
		Body:    bodyBytes,
	}, nil
}

// WithDeadline is a convenience for callers building a context with a
// per-call deadline, matching the retry(timeout(op)) composition used
// throughout the policy primitives.
func WithDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
