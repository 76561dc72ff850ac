// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package session models the trading account attributes that flow from
// the environment or a begin-session request into the terminal's
// configuration: account number, password, broker server, and an
// optional upstream proxy.
//
// A session may be partial. A login without a password is legal here
// and fails only at broker authorization (by timeout); client-side
// validation would mask the terminal's actual behavior.
package session

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Environment variable names read by FromEnvironment. They describe
// the terminal being supervised, not the supervisor itself.
const (
	EnvLogin    = "MT5_LOGIN"
	EnvPassword = "MT5_PASSWORD"
	EnvServer   = "MT5_SERVER"
	EnvProxy    = "MT5_PROXY"
)

// ProxyKind is the proxy protocol selector. The numeric codes are the
// terminal's own INI encoding for ProxyType.
type ProxyKind int

const (
	ProxyHTTP   ProxyKind = 0
	ProxySOCKS4 ProxyKind = 1
	ProxySOCKS5 ProxyKind = 2
)

// Code returns the INI value written for ProxyType.
func (k ProxyKind) Code() string {
	return strconv.Itoa(int(k))
}

// String returns the scheme name for logs and config files.
func (k ProxyKind) String() string {
	switch k {
	case ProxyHTTP:
		return "http"
	case ProxySOCKS4:
		return "socks4"
	case ProxySOCKS5:
		return "socks5"
	}
	return fmt.Sprintf("proxykind(%d)", int(k))
}

// Proxy is an upstream proxy the terminal should connect through.
type Proxy struct {
	Kind    ProxyKind
	Address string // host:port
}

// ParseProxy parses "[scheme://]host:port". The scheme defaults to
// socks5, which is what trading infrastructure proxies almost always
// speak.
func ParseProxy(raw string) (*Proxy, error) {
	kind := ProxySOCKS5
	address := raw

	if scheme, rest, found := strings.Cut(raw, "://"); found {
		switch scheme {
		case "socks5":
			kind = ProxySOCKS5
		case "socks4":
			kind = ProxySOCKS4
		case "http":
			kind = ProxyHTTP
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q (want socks5, socks4, or http)", scheme)
		}
		address = rest
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", address, err)
	}
	if host == "" || port == "" {
		return nil, fmt.Errorf("invalid proxy address %q: host and port are both required", address)
	}

	return &Proxy{Kind: kind, Address: address}, nil
}

// Session carries the account attributes applied to the terminal. Any
// field may be zero; zero fields are never written anywhere.
type Session struct {
	Login    uint64
	Password string
	Server   string
	Proxy    *Proxy
}

// FromEnvironment builds a Session from the MT5_* environment
// variables. Returns nil (not an empty Session) when none are set, so
// callers can distinguish "no startup session" from "empty session".
func FromEnvironment() (*Session, error) {
	loginRaw := os.Getenv(EnvLogin)
	password := os.Getenv(EnvPassword)
	server := os.Getenv(EnvServer)
	proxyRaw := os.Getenv(EnvProxy)

	if loginRaw == "" && password == "" && server == "" && proxyRaw == "" {
		return nil, nil
	}

	s := &Session{Password: password, Server: server}

	if loginRaw != "" {
		login, err := strconv.ParseUint(loginRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: account numbers are positive integers", EnvLogin, loginRaw)
		}
		s.Login = login
	}

	if proxyRaw != "" {
		proxy, err := ParseProxy(proxyRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", EnvProxy, err)
		}
		s.Proxy = proxy
	}

	return s, nil
}

// Merge returns a new Session where every non-zero field of override
// replaces the receiver's field. Either side may be nil. The begin
// session path uses this to layer request credentials over the
// startup session.
func (s *Session) Merge(override *Session) *Session {
	if s == nil && override == nil {
		return nil
	}

	merged := Session{}
	if s != nil {
		merged = *s
	}
	if override != nil {
		if override.Login != 0 {
			merged.Login = override.Login
		}
		if override.Password != "" {
			merged.Password = override.Password
		}
		if override.Server != "" {
			merged.Server = override.Server
		}
		if override.Proxy != nil {
			merged.Proxy = override.Proxy
		}
	}
	return &merged
}

// LoginString returns the login formatted for INI and JSON payloads,
// or "" when no login is set.
func (s *Session) LoginString() string {
	if s == nil || s.Login == 0 {
		return ""
	}
	return strconv.FormatUint(s.Login, 10)
}

// HasCredentials reports whether the session carries enough to attempt
// broker authorization (login and password both present).
func (s *Session) HasCredentials() bool {
	return s != nil && s.Login != 0 && s.Password != ""
}

// LogValue renders the session for structured logs. The password is
// reduced to a set/unset flag; it must never appear in log output.
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("(none)")
	}
	attrs := []slog.Attr{
		slog.Uint64("login", s.Login),
		slog.String("server", s.Server),
		slog.Bool("password_set", s.Password != ""),
	}
	if s.Proxy != nil {
		attrs = append(attrs, slog.String("proxy", s.Proxy.Kind.String()+"://"+s.Proxy.Address))
	}
	return slog.GroupValue(attrs...)
}
