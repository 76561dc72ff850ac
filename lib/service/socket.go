// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/termgate/termgate/lib/codec"
)

// requestReadTimeout bounds the wait for a connected client to send
// its request. A well-behaved client writes immediately after
// connecting.
const requestReadTimeout = 30 * time.Second

// responseWriteTimeout bounds each response write.
const responseWriteTimeout = 10 * time.Second

// maxRequestSize caps a single CBOR request. Control requests carry an
// action name and a couple of scalars; a megabyte is beyond generous.
const maxRequestSize = 1024 * 1024

// ActionFunc handles one control action. raw is the full CBOR request
// including the "action" field; the handler decodes whatever
// action-specific fields it needs from it.
//
// A non-nil result is CBOR-encoded into the response's data field; a
// nil result produces a bare {ok: true}. A returned error becomes an
// {ok: false} response carrying the error text.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope every socket reply travels in.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer is the supervisor's operator surface: a CBOR
// request-response protocol on a Unix socket, one request per
// connection. Operators query terminal status, trigger sweeps of
// leaked Wine helpers, and request restarts here without touching the
// RPC surface. Filesystem permissions on the socket path are the
// access control.
//
// Register actions with Handle, then call Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// inflight tracks running handlers so Serve can drain them
	// before returning.
	inflight sync.WaitGroup
}

// NewSocketServer creates a server for socketPath. The parent
// directory must exist.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers the handler for an action name. Panics on a
// duplicate registration.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve accepts connections until ctx is cancelled, then waits for
// running handlers to finish. The socket file is claimed on entry
// (displacing any leftover from a dead supervisor) and removed on
// return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Cancellation unblocks Accept by closing the listener.
	stopWatch := context.AfterFunc(ctx, func() { listener.Close() })
	defer stopWatch()

	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer conn.Close()
			s.answer(ctx, conn)
		}()
	}

	s.inflight.Wait()
	return nil
}

// listen claims the socket path. A stale socket file from a previous
// run is removed first; a live server would have been holding the
// path, so anything found there is leftover.
func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

// answer runs one request-response cycle. CBOR is self-delimiting, so
// the request is a single decode with no framing.
func (s *SocketServer) answer(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Probe connection: client connected and sent nothing.
			return
		}
		s.respond(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	action, err := requestAction(raw)
	if err != nil {
		s.respond(conn, Response{Error: err.Error()})
		return
	}
	handler, exists := s.handlers[action]
	if !exists {
		s.respond(conn, Response{Error: fmt.Sprintf("unknown action %q", action)})
		return
	}

	// The read deadline covered only the request. Handlers own their
	// time from here: restart-terminal legitimately blocks while the
	// relaunched terminal comes up.
	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", action, "error", err)
		s.respond(conn, Response{Error: err.Error()})
		return
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.respond(conn, Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		response.Data = data
	}
	s.respond(conn, response)
}

// requestAction extracts the routing field from the raw request.
func requestAction(raw codec.RawMessage) (string, error) {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("invalid request: %v", err)
	}
	if header.Action == "" {
		return "", errors.New("missing required field: action")
	}
	return header.Action, nil
}

// respond writes one response envelope. Write failures are logged at
// debug level; the connection is closing regardless.
func (s *SocketServer) respond(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(responseWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}
