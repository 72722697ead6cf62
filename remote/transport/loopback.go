package transport

import (
	"fmt"
	"sync"

	"github.com/accordlabs/accord/remote/common"
)

// NewLoopback creates a connected in-process transport pair. Requests sent
// through the client invoke the server's registered handler directly on the
// calling goroutine. Used by tests and single-process compositions.
func NewLoopback() (ClientTransport, ServerTransport) {
	link := &loopbackLink{}
	return &loopbackClient{link: link}, &loopbackServer{link: link}
}

// loopbackLink is the shared handler slot of a loopback pair
type loopbackLink struct {
	mu      sync.RWMutex
	handler HandleFunc
}

func (l *loopbackLink) load() HandleFunc {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handler
}

func (l *loopbackLink) store(handler HandleFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

// --------------------------------------------------------------------------
// Client Side (docu see transport.ClientTransport)
// --------------------------------------------------------------------------

type loopbackClient struct {
	link   *loopbackLink
	mu     sync.Mutex
	closed bool
}

func (c *loopbackClient) Connect(config common.ClientConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return nil
}

func (c *loopbackClient) Send(req []byte) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("loopback transport is closed")
	}

	handler := c.link.load()
	if handler == nil {
		return nil, fmt.Errorf("no handler registered")
	}
	return handler(req), nil
}

func (c *loopbackClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// --------------------------------------------------------------------------
// Server Side (docu see transport.ServerTransport)
// --------------------------------------------------------------------------

type loopbackServer struct {
	link *loopbackLink
}

func (s *loopbackServer) RegisterHandler(handler HandleFunc) {
	s.link.store(handler)
}

// Listen returns immediately, loopback requests reach the handler without a
// listener.
func (s *loopbackServer) Listen(config common.ServerConfig) error {
	return nil
}
