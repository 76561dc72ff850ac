// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgeclient provides a typed HTTP client for the termgate
// RPC bridge. Trading services and tooling use this client instead of
// hand-building POST requests against the bridge's method surface.
//
// The client mirrors the in-terminal endpoint's wire format using its
// own response types, avoiding an import dependency from trading code
// back into the bridge implementation. Methods the client does not
// wrap are reachable through Call.
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/termgate/termgate/lib/netutil"
)

// Client is a typed HTTP client for the termgate RPC bridge.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the bridge at baseURL (e.g.
// "http://terminal-1:18812"). A trailing slash is tolerated.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Credentials selects the trading account for Initialize and Login.
// Zero-valued fields are omitted from the request; the bridge fills
// them from its startup session when it has one.
type Credentials struct {
	Login    uint64 `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	Server   string `json:"server,omitempty"`
}

// TerminalError is a failure reported by the terminal itself, as
// opposed to a transport or bridge failure. Code follows the
// terminal's error numbering (for example -10004 for a lost IPC
// connection to the trading server).
//
// The endpoint writes it in two forms: last_error answers an object,
// {"code": ..., "message": ...}, while failed calls attach the raw
// last-error tuple, [code, message]. UnmarshalJSON accepts both.
type TerminalError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *TerminalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("terminal error %d", e.Code)
	}
	return fmt.Sprintf("terminal error %d: %s", e.Code, e.Message)
}

func (e *TerminalError) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		if len(parts) > 0 {
			if err := json.Unmarshal(parts[0], &e.Code); err != nil {
				return fmt.Errorf("error code: %w", err)
			}
		}
		if len(parts) > 1 {
			if err := json.Unmarshal(parts[1], &e.Message); err != nil {
				return fmt.Errorf("error message: %w", err)
			}
		}
		return nil
	}
	type wire TerminalError
	return json.Unmarshal(data, (*wire)(e))
}

// okResult is the wire format for methods that report a boolean
// outcome (initialize, login, shutdown, symbol_select). Failures
// usually carry the terminal's last-error tuple; symbol_select answers
// a bare {"ok": false}.
type okResult struct {
	OK        bool           `json:"ok"`
	LastError *TerminalError `json:"last_error"`
}

// failure converts an unsuccessful result into an error.
func (r okResult) failure() error {
	if r.OK {
		return nil
	}
	if r.LastError != nil {
		return r.LastError
	}
	return &TerminalError{Code: -1, Message: "generic fail"}
}

// terminalFailure detects the in-band failure envelope. Data methods
// report a null terminal result as HTTP 200 with {"error": true,
// "last_error": [code, message]}; anything else passes through.
func terminalFailure(body []byte) error {
	if !gjson.GetBytes(body, "error").Bool() {
		return nil
	}
	failure := &TerminalError{Code: -1, Message: "generic fail"}
	if raw := gjson.GetBytes(body, "last_error"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), failure); err != nil {
			return fmt.Errorf("parsing error detail: %w", err)
		}
	}
	return failure
}

// Call posts a method with the given params (JSON-marshaled) and
// returns the raw response body. Use this for methods without a typed
// wrapper. A nil params sends an empty JSON object. In-band terminal
// failures come back as a *TerminalError, never as a body.
func (client *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := client.invoke(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return json.RawMessage(body), nil
}

// Initialize starts a terminal session: the bridge rewrites the
// terminal configuration for the given account and the terminal
// connects. Zero-valued credential fields fall back to the bridge's
// startup session.
func (client *Client) Initialize(ctx context.Context, credentials Credentials) error {
	var result okResult
	if err := client.call(ctx, "initialize", credentials, &result); err != nil {
		return err
	}
	if err := result.failure(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// Login authenticates an additional account on the already-running
// terminal session.
func (client *Client) Login(ctx context.Context, credentials Credentials) error {
	var result okResult
	if err := client.call(ctx, "login", credentials, &result); err != nil {
		return err
	}
	if err := result.failure(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Shutdown disconnects the terminal session. The terminal process
// keeps running; a later Initialize starts a fresh session.
func (client *Client) Shutdown(ctx context.Context) error {
	var result okResult
	if err := client.call(ctx, "shutdown", nil, &result); err != nil {
		return err
	}
	if err := result.failure(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// VersionInfo reports the terminal build. The endpoint answers with a
// [terminal_version, build, release_date] triple.
type VersionInfo struct {
	TerminalVersion int
	Build           int
	ReleaseDate     string
}

// Version returns the terminal version and build.
func (client *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var result struct {
		Version []json.RawMessage `json:"version"`
	}
	if err := client.call(ctx, "version", nil, &result); err != nil {
		return nil, err
	}
	if len(result.Version) < 3 {
		return nil, fmt.Errorf("version: triple has %d elements", len(result.Version))
	}
	info := &VersionInfo{}
	for i, field := range []any{&info.TerminalVersion, &info.Build, &info.ReleaseDate} {
		if err := json.Unmarshal(result.Version[i], field); err != nil {
			return nil, fmt.Errorf("version: element %d: %w", i, err)
		}
	}
	return info, nil
}

// LastError returns the terminal's most recent error. A code of zero
// with an empty message means no error.
func (client *Client) LastError(ctx context.Context) (*TerminalError, error) {
	var result TerminalError
	if err := client.call(ctx, "last_error", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AccountInfo is the wire format for the account_info method. Money
// amounts are in the account's Currency.
type AccountInfo struct {
	Login       uint64  `json:"login"`
	TradeMode   int     `json:"trade_mode"`
	Leverage    int     `json:"leverage"`
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Profit      float64 `json:"profit"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
	Currency    string  `json:"currency"`
	Name        string  `json:"name"`
	Server      string  `json:"server"`
}

// AccountInfo returns the state of the current trading account.
func (client *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var result AccountInfo
	if err := client.call(ctx, "account_info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tick is the wire format for symbol_info_tick. Time is Unix seconds,
// TimeMsc Unix milliseconds.
type Tick struct {
	Time       int64   `json:"time"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	Volume     uint64  `json:"volume"`
	TimeMsc    int64   `json:"time_msc"`
	Flags      uint32  `json:"flags"`
	VolumeReal float64 `json:"volume_real"`
}

// SymbolInfoTick returns the latest tick for a symbol.
func (client *Client) SymbolInfoTick(ctx context.Context, symbol string) (*Tick, error) {
	params := struct {
		Symbol string `json:"symbol"`
	}{Symbol: symbol}
	var result Tick
	if err := client.call(ctx, "symbol_info_tick", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SymbolSelect shows or hides a symbol in the terminal's Market
// Watch. Most market data methods require the symbol to be selected.
func (client *Client) SymbolSelect(ctx context.Context, symbol string, enable bool) error {
	params := struct {
		Symbol string `json:"symbol"`
		Enable bool   `json:"enable"`
	}{Symbol: symbol, Enable: enable}
	var result okResult
	if err := client.call(ctx, "symbol_select", params, &result); err != nil {
		return err
	}
	if err := result.failure(); err != nil {
		return fmt.Errorf("symbol_select %s: %w", symbol, err)
	}
	return nil
}

// totalResult is the wire format for the *_total counting methods.
type totalResult struct {
	Total int `json:"total"`
}

// OrdersTotal returns the number of active pending orders.
func (client *Client) OrdersTotal(ctx context.Context) (int, error) {
	var result totalResult
	if err := client.call(ctx, "orders_total", nil, &result); err != nil {
		return 0, err
	}
	return result.Total, nil
}

// PositionsTotal returns the number of open positions.
func (client *Client) PositionsTotal(ctx context.Context) (int, error) {
	var result totalResult
	if err := client.call(ctx, "positions_total", nil, &result); err != nil {
		return 0, err
	}
	return result.Total, nil
}

// Timeframe identifies a chart period for the rate-copying methods.
// Values match the terminal's own timeframe numbering.
type Timeframe int

const (
	TimeframeM1  Timeframe = 1
	TimeframeM5  Timeframe = 5
	TimeframeM15 Timeframe = 15
	TimeframeM30 Timeframe = 30
	TimeframeH1  Timeframe = 16385
	TimeframeH4  Timeframe = 16388
	TimeframeD1  Timeframe = 16408
	TimeframeW1  Timeframe = 32769
	TimeframeMN1 Timeframe = 49153
)

// CopyRatesFrom fetches count bars of history for a symbol starting
// at from, returning the terminal's packed binary rate buffer
// untouched. Consumers that need the decoded bars parse the buffer
// themselves; the bridge and this client never interpret it.
func (client *Client) CopyRatesFrom(ctx context.Context, symbol string, timeframe Timeframe, from time.Time, count int) ([]byte, error) {
	params := struct {
		Symbol    string    `json:"symbol"`
		Timeframe Timeframe `json:"timeframe"`
		DateFrom  int64     `json:"date_from"`
		Count     int       `json:"count"`
	}{Symbol: symbol, Timeframe: timeframe, DateFrom: from.Unix(), Count: count}

	resp, err := client.post(ctx, "copy_rates_from", params)
	if err != nil {
		return nil, fmt.Errorf("copy_rates_from %s: %w", symbol, err)
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("copy_rates_from %s: HTTP %d: %s", symbol, resp.status, resp.body)
	}
	// A failed copy comes back as a JSON error envelope instead of the
	// packed buffer.
	if strings.HasPrefix(resp.contentType, "application/json") {
		if err := terminalFailure(resp.body); err != nil {
			return nil, fmt.Errorf("copy_rates_from %s: %w", symbol, err)
		}
		return nil, fmt.Errorf("copy_rates_from %s: unexpected JSON response: %s", symbol, resp.body)
	}
	return resp.body, nil
}

// Health probes the bridge's own liveness endpoint. It reports on the
// bridge process, not the terminal behind it.
func (client *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("health: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}
	return nil
}

// call posts a method and decodes a JSON response into result.
func (client *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := client.invoke(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%s: parsing response: %w", method, err)
	}
	return nil
}

// invoke posts a method, checks the HTTP status, and surfaces the
// endpoint's in-band error envelope as a *TerminalError.
func (client *Client) invoke(ctx context.Context, method string, params any) ([]byte, error) {
	resp, err := client.post(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.status, resp.body)
	}
	if err := terminalFailure(resp.body); err != nil {
		return nil, err
	}
	return resp.body, nil
}

// wireResponse is one HTTP exchange with the bridge: status, declared
// content type, and the full body.
type wireResponse struct {
	status      int
	contentType string
	body        []byte
}

// post sends one method call. A nil params sends an empty JSON object
// so the in-terminal endpoint always sees a JSON document.
func (client *Client) post(ctx context.Context, method string, params any) (*wireResponse, error) {
	encoded := []byte("{}")
	if params != nil {
		var err error
		encoded, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/"+method, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := netutil.ReadBody(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &wireResponse{
		status:      response.StatusCode,
		contentType: response.Header.Get("Content-Type"),
		body:        body,
	}, nil
}
