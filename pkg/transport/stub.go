package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/types"
)

// Stub is an in-memory Port for tests: no network, deterministic latency
// and error injection per endpoint.
type Stub struct {
	mu   sync.Mutex
	Fns  map[string]func(ctx context.Context, req types.Request) (types.Response, error)
	Calls []StubCall
}

// StubCall records one observed Send invocation, for assertions.
type StubCall struct {
	Endpoint string
	Request  types.Request
}

// NewStub creates an empty Stub; register per-endpoint behavior with Handle.
func NewStub() *Stub {
	return &Stub{Fns: make(map[string]func(ctx context.Context, req types.Request) (types.Response, error))}
}

// Handle registers the behavior Send exhibits for a given endpoint.
func (s *Stub) Handle(endpoint string, fn func(ctx context.Context, req types.Request) (types.Response, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fns[endpoint] = fn
}

// HandleDelayed is a convenience for Handle that sleeps (honoring ctx
// cancellation) before returning a fixed response/error.
func (s *Stub) HandleDelayed(endpoint string, delay time.Duration, resp types.Response, err error) {
	s.Handle(endpoint, func(ctx context.Context, req types.Request) (types.Response, error) {
		select {
		case <-time.After(delay):
			return resp, err
		case <-ctx.Done():
			return types.Response{}, &types.TransportError{Kind: types.ErrorKindTimeout, Err: ctx.Err()}
		}
	})
}

// Send implements Port.
func (s *Stub) Send(ctx context.Context, endpoint string, req types.Request) (types.Response, error) {
	s.mu.Lock()
	fn, ok := s.Fns[endpoint]
	s.Calls = append(s.Calls, StubCall{Endpoint: endpoint, Request: req})
	s.mu.Unlock()

	if !ok {
		return types.Response{Status: 200}, nil
	}
	return fn(ctx, req)
}
