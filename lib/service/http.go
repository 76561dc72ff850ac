// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// defaultDrainWindow bounds graceful shutdown: how long in-flight
// bridge calls get to finish after the context is cancelled.
const defaultDrainWindow = 10 * time.Second

// HTTPServer runs the supervisor's TCP surface: clients on the
// container network POST RPC method calls that the bridge relays into
// the terminal. It owns the listener lifecycle and graceful shutdown;
// routing and relay live in the caller's http.Handler.
type HTTPServer struct {
	address     string
	handler     http.Handler
	logger      *slog.Logger
	drainWindow time.Duration

	// ready closes once the listener is bound; addr is valid from
	// then on.
	ready chan struct{}
	addr  net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address (":18812" in the shipped
	// container). Required.
	Address string

	// Handler serves the requests. Required.
	Handler http.Handler

	// ShutdownTimeout overrides the drain window for in-flight
	// requests on shutdown. Zero means 10 seconds.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewHTTPServer creates a server for the configured TCP address. Call
// Serve to bind and start accepting.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	server := &HTTPServer{
		address:     config.Address,
		handler:     config.Handler,
		logger:      config.Logger,
		drainWindow: config.ShutdownTimeout,
		ready:       make(chan struct{}),
	}
	if server.drainWindow == 0 {
		server.drainWindow = defaultDrainWindow
	}
	return server
}

// Ready returns a channel closed once the server is bound and
// accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address, valid after Ready closes.
// With a ":0" configured address this carries the assigned port.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve binds the listener and accepts connections until ctx is
// cancelled, then drains in-flight requests for up to the drain
// window before returning.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,

		// Only the header read is bounded. Relayed calls
		// legitimately run for minutes (historical data requests),
		// and each carries its own per-call deadline, so there is no
		// overall read or write timeout.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// The context watcher initiates shutdown; Serve stays in the
	// foreground and returns ErrServerClosed once Shutdown starts.
	drained := make(chan error, 1)
	stopWatch := context.AfterFunc(ctx, func() {
		s.logger.Info("rpc listener draining", "window", s.drainWindow)
		grace, cancel := context.WithTimeout(context.Background(), s.drainWindow)
		defer cancel()
		drained <- server.Shutdown(grace)
	})
	defer stopWatch()

	s.logger.Info("rpc listener up", "address", s.addr.String())

	err = server.Serve(listener)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %s: %w", s.addr, err)
	}

	if err := <-drained; err != nil {
		return fmt.Errorf("draining requests: %w", err)
	}
	s.logger.Info("rpc listener stopped")
	return nil
}
