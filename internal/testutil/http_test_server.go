package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

// closeGrace bounds how long Close waits for held SSE responses.
const closeGrace = 500 * time.Millisecond

// IPv4Server stands in for a provider endpoint. It listens on 127.0.0.1
// only, so adapter tests also run where httptest cannot bind [::1].
// Every server owns its transport; streams opened by one test never reuse
// another test's connections.
type IPv4Server struct {
	// URL is the base address, e.g. "http://127.0.0.1:41234".
	URL string

	listener  net.Listener
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewIPv4Server serves handler (an empty mux when nil) on an ephemeral
// loopback port. The test is skipped when tcp4 is not available.
func NewIPv4Server(t *testing.T, handler http.Handler) *IPv4Server {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no tcp4 loopback: %v", err)
	}
	if handler == nil {
		handler = http.NewServeMux()
	}

	tr := &http.Transport{}
	s := &IPv4Server{
		URL:       "http://" + l.Addr().String(),
		listener:  l,
		server:    &http.Server{Handler: handler},
		transport: tr,
		client:    &http.Client{Transport: tr},
	}
	go s.serve(t)
	return s
}

func (s *IPv4Server) serve(t *testing.T) {
	err := s.server.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Logf("testutil: %s stopped serving: %v", s.URL, err)
	}
}

// Client talks to this server through its private transport.
func (s *IPv4Server) Client() *http.Client { return s.client }

// Transport is exposed so tests can register loopback:// next to http.
func (s *IPv4Server) Transport() *http.Transport { return s.transport }

// Close stops the server. Held streams get closeGrace to finish before their
// connections are dropped.
func (s *IPv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	if s.server.Shutdown(ctx) != nil {
		_ = s.server.Close()
	}
	s.transport.CloseIdleConnections()
}
