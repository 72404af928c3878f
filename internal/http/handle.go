package http

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrHandleClosed is returned when a closed handle is used or closed again.
var ErrHandleClosed = errors.New("connection handle is closed")

// Handle is a transport handle able to perform HTTP transactions.
type Handle interface {
	Do(req *http.Request) (*http.Response, error)
	Close() error
}

// HandleFactory creates a new, unused Handle.
type HandleFactory func() Handle

// ClientHandle is a Handle backed by an http.Client with its own transport,
// so connections it opens are never shared with other handles.
type ClientHandle struct {
	client    *http.Client
	transport *http.Transport

	mu     sync.Mutex
	closed bool
}

// HandleOption is a function that configures a ClientHandle
type HandleOption func(*ClientHandle)

// NewClientHandle creates a new handle with the given options
func NewClientHandle(options ...HandleOption) *ClientHandle {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	h := &ClientHandle{
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			// One request is one transaction: redirects are reported, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// WithTimeout sets the timeout of a whole transaction
func WithTimeout(timeout time.Duration) HandleOption {
	return func(h *ClientHandle) {
		h.client.Timeout = timeout
	}
}

// WithoutKeepAlive disables connection reuse, one connection per request
func WithoutKeepAlive() HandleOption {
	return func(h *ClientHandle) {
		h.transport.DisableKeepAlives = true
	}
}

// Do performs one transaction on the handle.
func (h *ClientHandle) Do(req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrHandleClosed
	}
	return h.client.Do(req)
}

// Close releases every idle connection held by the handle.
func (h *ClientHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	h.transport.CloseIdleConnections()
	return nil
}

// Connection selects how the executor obtains a handle for a request. It is
// either Ephemeral or Reused and is decided once per run.
type Connection interface {
	acquire() (Handle, func())
	reused() bool
}

type ephemeral struct {
	newHandle HandleFactory
}

// Ephemeral creates a fresh handle for every request and closes it before
// the request returns.
func Ephemeral(factory HandleFactory) Connection {
	return ephemeral{newHandle: factory}
}

func (e ephemeral) acquire() (Handle, func()) {
	h := e.newHandle()
	return h, func() { _ = h.Close() }
}

func (ephemeral) reused() bool { return false }

type reusedHandle struct {
	handle Handle
}

// Reused performs every request on h. The caller owns h and closes it.
func Reused(h Handle) Connection {
	return reusedHandle{handle: h}
}

func (r reusedHandle) acquire() (Handle, func()) {
	return r.handle, func() {}
}

func (reusedHandle) reused() bool { return true }
