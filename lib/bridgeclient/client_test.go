// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package bridgeclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/termgate/termgate/lib/bridge"
	"github.com/termgate/termgate/lib/pipe"
	"github.com/termgate/termgate/lib/session"
)

// fakeBridge runs an httptest server that answers one method with a
// canned response and records the request body it received.
type fakeBridge struct {
	server   *httptest.Server
	lastPath string
	lastBody []byte
}

func newFakeBridge(t *testing.T, status int, contentType string, response []byte) *fakeBridge {
	t.Helper()
	fake := &fakeBridge{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.lastPath = r.URL.Path
		fake.lastBody, _ = io.ReadAll(r.Body)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write(response)
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func TestInitializeSendsCredentials(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"ok":true}`))
	client := New(fake.server.URL)

	err := client.Initialize(context.Background(), Credentials{
		Login:    50012345,
		Password: "secret",
		Server:   "Broker-Demo",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if fake.lastPath != "/initialize" {
		t.Errorf("path = %q, want /initialize", fake.lastPath)
	}
	body := string(fake.lastBody)
	if got := gjson.Get(body, "login").Uint(); got != 50012345 {
		t.Errorf("login = %d (body %q)", got, body)
	}
	if got := gjson.Get(body, "password").String(); got != "secret" {
		t.Errorf("password = %q", got)
	}
	if got := gjson.Get(body, "server").String(); got != "Broker-Demo" {
		t.Errorf("server = %q", got)
	}
}

func TestInitializeOmitsZeroCredentials(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"ok":true}`))
	client := New(fake.server.URL)

	if err := client.Initialize(context.Background(), Credentials{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Zero fields stay absent so the bridge can fill them from its
	// startup session.
	if got := string(fake.lastBody); got != "{}" {
		t.Errorf("body = %q, want {}", got)
	}
}

func TestInitializeTerminalError(t *testing.T) {
	// Failure is HTTP 200 with ok=false and the last-error tuple.
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"ok":false,"last_error":[-6,"Terminal: Authorization failed"]}`))
	client := New(fake.server.URL)

	err := client.Initialize(context.Background(), Credentials{Login: 1})
	if err == nil {
		t.Fatal("Initialize: expected error")
	}
	var terminalError *TerminalError
	if !errors.As(err, &terminalError) {
		t.Fatalf("error type = %T, want *TerminalError", err)
	}
	if terminalError.Code != -6 {
		t.Errorf("Code = %d, want -6", terminalError.Code)
	}
	if terminalError.Message != "Terminal: Authorization failed" {
		t.Errorf("Message = %q", terminalError.Message)
	}
}

func TestShutdown(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"ok":true}`))
	client := New(fake.server.URL)

	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if fake.lastPath != "/shutdown" {
		t.Errorf("path = %q, want /shutdown", fake.lastPath)
	}
}

func TestSymbolSelectRejectedWithoutDetail(t *testing.T) {
	// symbol_select reports failure as a bare ok=false, no tuple.
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"ok":false}`))
	client := New(fake.server.URL)

	err := client.SymbolSelect(context.Background(), "XAUUSD", true)
	if err == nil {
		t.Fatal("SymbolSelect: expected error")
	}
	var terminalError *TerminalError
	if !errors.As(err, &terminalError) {
		t.Fatalf("error type = %T, want *TerminalError", err)
	}
	if terminalError.Code != -1 {
		t.Errorf("Code = %d, want -1", terminalError.Code)
	}
}

func TestVersion(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"version":[500,4424,"21 Jun 2024"]}`))
	client := New(fake.server.URL)

	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version.TerminalVersion != 500 || version.Build != 4424 {
		t.Errorf("version = %+v", version)
	}
	if version.ReleaseDate != "21 Jun 2024" {
		t.Errorf("ReleaseDate = %q", version.ReleaseDate)
	}
}

func TestLastError(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"code":-10004,"message":"No IPC connection"}`))
	client := New(fake.server.URL)

	lastError, err := client.LastError(context.Background())
	if err != nil {
		t.Fatalf("LastError: %v", err)
	}
	if lastError.Code != -10004 {
		t.Errorf("Code = %d, want -10004", lastError.Code)
	}
	if lastError.Message != "No IPC connection" {
		t.Errorf("Message = %q", lastError.Message)
	}
}

func TestAccountInfo(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{
		"login": 50012345, "trade_mode": 0, "leverage": 100,
		"balance": 10000.5, "equity": 10250.75, "margin": 120.25,
		"margin_free": 10130.5, "margin_level": 8524.7,
		"currency": "USD", "name": "Test Account", "server": "Broker-Demo"
	}`))
	client := New(fake.server.URL)

	account, err := client.AccountInfo(context.Background())
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if account.Login != 50012345 {
		t.Errorf("Login = %d", account.Login)
	}
	if account.Balance != 10000.5 {
		t.Errorf("Balance = %v", account.Balance)
	}
	if account.Equity != 10250.75 {
		t.Errorf("Equity = %v", account.Equity)
	}
	if account.Currency != "USD" {
		t.Errorf("Currency = %q", account.Currency)
	}
}

func TestAccountInfoTerminalError(t *testing.T) {
	// A logged-out terminal answers HTTP 200 with the error envelope.
	// The client must surface it instead of returning a zero account.
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"error":true,"last_error":[-10004,"No IPC connection"]}`))
	client := New(fake.server.URL)

	account, err := client.AccountInfo(context.Background())
	if err == nil {
		t.Fatalf("AccountInfo = %+v, want error", account)
	}
	var terminalError *TerminalError
	if !errors.As(err, &terminalError) {
		t.Fatalf("error type = %T, want *TerminalError", err)
	}
	if terminalError.Code != -10004 {
		t.Errorf("Code = %d, want -10004", terminalError.Code)
	}
	if terminalError.Message != "No IPC connection" {
		t.Errorf("Message = %q", terminalError.Message)
	}
}

func TestSymbolInfoTick(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"time":1718900000,"bid":1.0712,"ask":1.0714,"last":0,"volume":0,"time_msc":1718900000123,"flags":6,"volume_real":0}`))
	client := New(fake.server.URL)

	tick, err := client.SymbolInfoTick(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("SymbolInfoTick: %v", err)
	}
	if got := gjson.GetBytes(fake.lastBody, "symbol").String(); got != "EURUSD" {
		t.Errorf("request symbol = %q", got)
	}
	if tick.Bid != 1.0712 || tick.Ask != 1.0714 {
		t.Errorf("tick = %+v", tick)
	}
	if tick.TimeMsc != 1718900000123 {
		t.Errorf("TimeMsc = %d", tick.TimeMsc)
	}
}

func TestSymbolSelect(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"ok":true}`))
	client := New(fake.server.URL)

	if err := client.SymbolSelect(context.Background(), "XAUUSD", true); err != nil {
		t.Fatalf("SymbolSelect: %v", err)
	}
	if got := gjson.GetBytes(fake.lastBody, "symbol").String(); got != "XAUUSD" {
		t.Errorf("request symbol = %q", got)
	}
	if !gjson.GetBytes(fake.lastBody, "enable").Bool() {
		t.Error("request enable = false, want true")
	}
}

func TestPositionsTotal(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"total":3}`))
	client := New(fake.server.URL)

	total, err := client.PositionsTotal(context.Background())
	if err != nil {
		t.Fatalf("PositionsTotal: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestCopyRatesFromBinary(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x02, 0xfe, 0xff}
	fake := newFakeBridge(t, http.StatusOK, "application/x-numpy", payload)
	client := New(fake.server.URL)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rates, err := client.CopyRatesFrom(context.Background(), "EURUSD", TimeframeH1, from, 1000)
	if err != nil {
		t.Fatalf("CopyRatesFrom: %v", err)
	}
	if !bytes.Equal(rates, payload) {
		t.Errorf("rates = %v, want %v", rates, payload)
	}

	body := fake.lastBody
	if got := gjson.GetBytes(body, "timeframe").Int(); got != int64(TimeframeH1) {
		t.Errorf("timeframe = %d, want %d", got, TimeframeH1)
	}
	if got := gjson.GetBytes(body, "date_from").Int(); got != from.Unix() {
		t.Errorf("date_from = %d, want %d", got, from.Unix())
	}
	if got := gjson.GetBytes(body, "count").Int(); got != 1000 {
		t.Errorf("count = %d, want 1000", got)
	}
}

func TestCopyRatesFromTerminalError(t *testing.T) {
	// A failed copy answers HTTP 200 with a JSON envelope instead of
	// the packed buffer; it must never be handed back as rate data.
	fake := newFakeBridge(t, http.StatusOK, "application/json",
		[]byte(`{"error":true,"last_error":[-2,"Invalid params"]}`))
	client := New(fake.server.URL)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rates, err := client.CopyRatesFrom(context.Background(), "EURUSD", TimeframeH1, from, 10)
	if err == nil {
		t.Fatalf("CopyRatesFrom = %v, want error", rates)
	}
	var terminalError *TerminalError
	if !errors.As(err, &terminalError) {
		t.Fatalf("error type = %T, want *TerminalError", err)
	}
	if terminalError.Code != -2 {
		t.Errorf("Code = %d, want -2", terminalError.Code)
	}
}

func TestCallRaw(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"symbols":98}`))
	client := New(fake.server.URL)

	raw, err := client.Call(context.Background(), "symbols_total", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := gjson.GetBytes(raw, "symbols").Int(); got != 98 {
		t.Errorf("symbols = %d", got)
	}
	if got := string(fake.lastBody); got != "{}" {
		t.Errorf("nil params sent body %q, want {}", got)
	}
}

func TestCallErrorStatus(t *testing.T) {
	fake := newFakeBridge(t, http.StatusBadGateway, "application/json", []byte(`{"error":"terminal endpoint unreachable"}`))
	client := New(fake.server.URL)

	_, err := client.Call(context.Background(), "account_info", nil)
	if err == nil {
		t.Fatal("Call: expected error for HTTP 502")
	}
	message := err.Error()
	if !strings.Contains(message, "account_info") || !strings.Contains(message, "502") {
		t.Errorf("error = %q, want method and status", message)
	}
}

func TestHealth(t *testing.T) {
	fake := newFakeBridge(t, http.StatusOK, "application/json", []byte(`{"status":"serving"}`))
	client := New(fake.server.URL)

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if fake.lastPath != "/health" {
		t.Errorf("path = %q, want /health", fake.lastPath)
	}
}

func TestHealthDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client := New(server.URL)

	if err := client.Health(context.Background()); err == nil {
		t.Fatal("Health: expected error for closed server")
	}
}

// TestSessionThroughBridge drives a full stack: fake in-terminal
// endpoint behind a real bridge, called through this client.
// Beginning a session and then reading the account must work
// end to end.
func TestSessionThroughBridge(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/initialize":
			body, _ := io.ReadAll(r.Body)
			if gjson.GetBytes(body, "login").Uint() == 0 {
				w.Write([]byte(`{"ok":false,"last_error":[-6,"Terminal: Authorization failed"]}`))
				return
			}
			w.Write([]byte(`{"ok":true}`))
		case "/account_info":
			w.Write([]byte(`{"login":50012345,"balance":10000.5,"equity":10250.75,"currency":"USD"}`))
		default:
			http.Error(w, `{"error":"unexpected method"}`, http.StatusInternalServerError)
		}
	}))
	t.Cleanup(endpoint.Close)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	gateway := bridge.New(bridge.Config{
		Pipe: pipe.New(pipe.Config{
			BaseURL:     endpoint.URL,
			CallTimeout: 2 * time.Second,
			Logger:      logger,
		}),
		Startup: &session.Session{Login: 50012345, Password: "pw", Server: "Broker-Demo"},
		Logger:  logger,
	})
	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)

	client := New(server.URL)
	// Empty credentials: the bridge fills the startup session in.
	if err := client.Initialize(context.Background(), Credentials{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	account, err := client.AccountInfo(context.Background())
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if account.Balance != 10000.5 || account.Equity != 10250.75 {
		t.Errorf("account = %+v, want balance and equity populated", account)
	}
}
