// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "sort"

// methodSpec describes one relayed method.
type methodSpec struct {
	// mutatesSession marks methods that change the terminal's
	// authenticated session. These serialize under the bridge's
	// session gate; everything else relays concurrently.
	mutatesSession bool
}

// methodTable is the complete automation surface. The set is fixed:
// the bridge exposes exactly what the in-terminal endpoint implements,
// nothing more, and unknown paths are 404s rather than forwarded
// guesses.
var methodTable = map[string]methodSpec{
	"initialize": {mutatesSession: true},
	"login":      {mutatesSession: true},
	"shutdown":   {mutatesSession: true},

	"last_error":    {},
	"version":       {},
	"account_info":  {},
	"terminal_info": {},

	"symbols_total":    {},
	"symbols_get":      {},
	"symbol_info":      {},
	"symbol_info_tick": {},
	"symbol_select":    {},

	"order_send":        {},
	"order_check":       {},
	"order_calc_margin": {},
	"order_calc_profit": {},

	"orders_total":         {},
	"orders_get":           {},
	"positions_total":      {},
	"positions_get":        {},
	"history_orders_total": {},
	"history_orders_get":   {},
	"history_deals_total":  {},
	"history_deals_get":    {},

	"copy_rates_from":     {},
	"copy_rates_from_pos": {},
	"copy_rates_range":    {},
	"copy_ticks_from":     {},
	"copy_ticks_range":    {},
}

// Methods returns the relayed method names in sorted order.
func Methods() []string {
	names := make([]string, 0, len(methodTable))
	for name := range methodTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
