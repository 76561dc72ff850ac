// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/termgate/termgate/lib/codec"
)

// connectTimeout caps the connect phase on its own. The response wait
// is governed separately, by the caller's context when it carries a
// deadline and by defaultResponseWait when it does not.
const connectTimeout = 5 * time.Second

// defaultResponseWait sizes the response read for the slowest control
// action. restart-terminal holds the connection while the relaunched
// terminal comes up, which can take a minute.
const defaultResponseWait = 90 * time.Second

// maxResponseSize mirrors the server's request cap.
const maxResponseSize = 1024 * 1024

// ActionError reports a request the supervisor received, understood,
// and refused. Transport and encoding failures are plain errors, not
// ActionErrors.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("control action %q failed: %s", e.Action, e.Message)
}

// ControlClient drives a supervisor's control socket. Every Call is
// its own connection, matching the server's one-request-per-connection
// protocol. The zero value is not usable; construct with
// NewControlClient.
//
// There is no authentication. The socket lives inside the container
// and filesystem permissions gate access.
type ControlClient struct {
	socketPath string
}

// NewControlClient creates a client for the control socket at
// socketPath.
func NewControlClient(socketPath string) *ControlClient {
	return &ControlClient{socketPath: socketPath}
}

// Call performs one action against the supervisor: connect, send,
// decode the reply, hang up. request is marshaled whole and must carry
// the "action" field; the action argument is used for error reporting
// and should match it.
//
// A server-side refusal (ok=false) comes back as *ActionError. When
// result is non-nil and the reply carries data, the data is decoded
// into result; otherwise result is left untouched.
func (c *ControlClient) Call(ctx context.Context, action string, request, result any) error {
	response, err := c.exchange(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ActionError{Action: action, Message: response.Error}
	}
	if result == nil || len(response.Data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(response.Data, result); err != nil {
		return fmt.Errorf("decoding response data for %q: %w", action, err)
	}
	return nil
}

// exchange runs the wire protocol for one request.
func (c *ControlClient) exchange(ctx context.Context, request any) (Response, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return Response{}, fmt.Errorf("writing request: %w", err)
	}
	// Half-close so the server's read side sees a clean EOF after the
	// request bytes.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(replyDeadline(ctx))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	return response, nil
}

// replyDeadline picks the caller's deadline when one is set, otherwise
// the package default.
func replyDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(defaultResponseWait)
}
