// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/termgate/termgate/lib/inject"
	"github.com/termgate/termgate/lib/netutil"
	"github.com/termgate/termgate/lib/pipe"
	"github.com/termgate/termgate/lib/session"
	"github.com/termgate/termgate/lib/telemetry"
)

// Config configures a Bridge.
type Config struct {
	// Pipe is the client for the in-terminal RPC endpoint. Required.
	Pipe *pipe.Client

	// Injector rewrites the terminal configuration on session begin.
	// Optional; nil skips the rewrite.
	Injector *inject.Injector

	// Startup is the session from the supervisor's environment, layered
	// under request credentials on session begin. Optional.
	Startup *session.Session

	// Telemetry records per-call metrics. Optional.
	Telemetry *telemetry.Telemetry

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Bridge relays the fixed automation surface to the terminal. It
// implements http.Handler.
type Bridge struct {
	pipe      *pipe.Client
	injector  *inject.Injector
	telemetry *telemetry.Telemetry
	logger    *slog.Logger

	// sessionGate serializes the session-mutating methods. Held across
	// the config rewrite and the upstream call so two concurrent
	// initialize requests cannot interleave their side effects. The
	// supervisor's restart action shares it through SessionGate.
	sessionGate *sync.Mutex

	mu      sync.Mutex
	startup *session.Session
}

// New creates a bridge from config. Panics if required fields are
// missing.
func New(config Config) *Bridge {
	if config.Pipe == nil {
		panic("bridge: Pipe is required")
	}
	if config.Logger == nil {
		panic("bridge: Logger is required")
	}
	return &Bridge{
		pipe:        config.Pipe,
		injector:    config.Injector,
		telemetry:   config.Telemetry,
		logger:      config.Logger,
		sessionGate: &sync.Mutex{},
		startup:     config.Startup,
	}
}

// StartupSession returns the session currently layered under begin
// session requests.
func (b *Bridge) StartupSession() *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startup
}

// SessionGate returns the mutex serializing session-mutating calls.
// Anything else that replaces or reconfigures the terminal, such as
// the control socket's restart action, must hold it too so the
// replacement cannot interleave with an in-flight initialize.
func (b *Bridge) SessionGate() *sync.Mutex {
	return b.sessionGate
}

// errorResponse is the JSON body for bridge-generated errors. Relayed
// upstream responses pass through untouched and never take this shape.
type errorResponse struct {
	Error string `json:"error"`
}

// errBadSessionRequest marks initialize bodies the bridge cannot act
// on, as opposed to server-side failures while acting on them.
var errBadSessionRequest = errors.New("invalid session request")

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		b.serveHealth(w, r)
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/")
	spec, known := methodTable[method]
	if !known {
		b.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown method %q", method))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		b.writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %q requires POST", method))
		return
	}

	body, err := netutil.ReadBody(r.Body)
	if err != nil {
		b.writeError(w, http.StatusBadRequest, fmt.Sprintf("reading request: %v", err))
		return
	}

	start := time.Now()
	outcome := b.relay(w, r, method, spec, body)
	b.telemetry.RecordBridgeCall(r.Context(), method, time.Since(start), outcome)
}

// relay forwards one call and writes the response. Returns the
// telemetry outcome label.
func (b *Bridge) relay(w http.ResponseWriter, r *http.Request, method string, spec methodSpec, body []byte) string {
	ctx := r.Context()

	if spec.mutatesSession {
		b.sessionGate.Lock()
		defer b.sessionGate.Unlock()
	}

	if method == "initialize" {
		filled, err := b.beginSession(ctx, body)
		if err != nil {
			b.logger.Error("session begin failed", "error", err)
			if errors.Is(err, errBadSessionRequest) {
				b.writeError(w, http.StatusBadRequest, err.Error())
				return "bad-request"
			}
			b.writeError(w, http.StatusInternalServerError, err.Error())
			return "config-inject"
		}
		body = filled
	}

	result, err := b.pipe.Call(ctx, method, r.Header.Get("Content-Type"), body)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			b.writeError(w, http.StatusGatewayTimeout, err.Error())
			return "timeout"
		default:
			b.writeError(w, http.StatusBadGateway, err.Error())
			return "pipe-unreachable"
		}
	}

	// Verbatim relay: status, content type, and body exactly as the
	// terminal side produced them.
	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	w.WriteHeader(result.Status)
	if _, err := w.Write(result.Body); err != nil {
		b.logger.Warn("writing response", "method", method, "error", err)
	}
	return "ok"
}

// beginSession prepares an initialize call: merge request credentials
// over the startup session, rewrite the terminal configuration with
// the merged result, and fill credential fields absent from the body.
//
// A session with no credentials anywhere still proceeds. The terminal
// is the authority on whether an initialize can succeed; the expected
// failure mode is an upstream timeout, never a client-side rejection.
func (b *Bridge) beginSession(ctx context.Context, body []byte) ([]byte, error) {
	override, err := sessionFromRequest(body)
	if err != nil {
		return nil, err
	}
	merged := b.StartupSession().Merge(override)

	if merged != nil {
		b.logger.Info("beginning session", "session", merged)
	} else {
		b.logger.Info("beginning session without credentials")
	}

	if b.injector != nil {
		if err := b.injector.Apply(ctx, merged); err != nil {
			return nil, fmt.Errorf("applying terminal configuration: %w", err)
		}
		b.telemetry.RecordConfigApply(ctx)
	}

	return fillCredentials(body, merged)
}

// sessionFromRequest peeks the credential fields out of an initialize
// body. Absent fields stay zero. The login field accepts both a JSON
// number and a numeric string, matching what client libraries send.
func sessionFromRequest(body []byte) (*session.Session, error) {
	if len(body) == 0 {
		return nil, nil
	}

	s := &session.Session{
		Password: gjson.GetBytes(body, "password").String(),
		Server:   gjson.GetBytes(body, "server").String(),
	}
	if login := gjson.GetBytes(body, "login"); login.Exists() {
		s.Login = login.Uint()
	}
	if proxy := gjson.GetBytes(body, "proxy"); proxy.Exists() && proxy.String() != "" {
		parsed, err := session.ParseProxy(proxy.String())
		if err != nil {
			return nil, fmt.Errorf("%w: proxy: %v", errBadSessionRequest, err)
		}
		s.Proxy = parsed
	}

	if s.Login == 0 && s.Password == "" && s.Server == "" && s.Proxy == nil {
		return nil, nil
	}
	return s, nil
}

// fillCredentials writes the merged session's login, password, and
// server into the fields the body leaves absent, so an empty body
// initializes with the environment-configured account. Fields present
// in the body are never touched, and the proxy never forwards: it is
// terminal configuration, not an initialize parameter.
func fillCredentials(body []byte, merged *session.Session) ([]byte, error) {
	if merged == nil {
		return body, nil
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	var err error
	if merged.Login != 0 && !gjson.GetBytes(body, "login").Exists() {
		if body, err = sjson.SetBytes(body, "login", merged.Login); err != nil {
			return nil, fmt.Errorf("filling login: %w", err)
		}
	}
	if merged.Password != "" && !gjson.GetBytes(body, "password").Exists() {
		if body, err = sjson.SetBytes(body, "password", merged.Password); err != nil {
			return nil, fmt.Errorf("filling password: %w", err)
		}
	}
	if merged.Server != "" && !gjson.GetBytes(body, "server").Exists() {
		if body, err = sjson.SetBytes(body, "server", merged.Server); err != nil {
			return nil, fmt.Errorf("filling server: %w", err)
		}
	}
	return body, nil
}

// serveHealth answers the bridge's own liveness check. Deliberately
// local: it reports that the bridge is serving, not that the terminal
// is ready, so orchestrators can distinguish "gateway down" from
// "terminal still starting".
func (b *Bridge) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		b.writeError(w, http.StatusMethodNotAllowed, "health requires GET")
		return
	}
	if err := netutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "serving"}); err != nil {
		b.logger.Warn("writing health response", "error", err)
	}
}

func (b *Bridge) writeError(w http.ResponseWriter, status int, message string) {
	if err := netutil.WriteJSON(w, status, errorResponse{Error: message}); err != nil {
		b.logger.Warn("writing error response", "status", status, "error", err)
	}
}
