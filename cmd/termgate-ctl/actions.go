// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/termgate/termgate/lib/ipc"
	"github.com/termgate/termgate/lib/service"
)

// defaultSocketPath is where the supervisor serves its control socket
// inside the container.
const defaultSocketPath = "/run/termgate/control.sock"

// connectionParams holds the flags every action shares: where the
// control socket lives and how long to wait for the reply.
type connectionParams struct {
	socket  string
	timeout time.Duration
}

// register adds the shared flags to flagSet. The timeout default
// varies per action: restart waits out terminal readiness, so it needs
// far more headroom than a status probe.
func (p *connectionParams) register(flagSet *pflag.FlagSet, timeout time.Duration) {
	flagSet.StringVar(&p.socket, "socket", defaultSocketPath, "Path to the supervisor control socket")
	flagSet.DurationVar(&p.timeout, "timeout", timeout, "How long to wait for the supervisor's reply")
}

// call sends one request to the supervisor and decodes the reply data
// into result.
func (p *connectionParams) call(request ipc.Request, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return service.NewControlClient(p.socket).Call(ctx, request.Action, request, result)
}

func statusCommand() *command {
	var params connectionParams
	return &command{
		Name:    "status",
		Summary: "Report terminal, display, and pipe health.",
		Description: "Status asks the supervisor for a live snapshot: the terminal\n" +
			"process and its launch state, the X display, whether the\n" +
			"in-terminal RPC endpoint answers, and the configured account.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.register(flagSet, 10*time.Second)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var report ipc.StatusReport
			if err := params.call(ipc.Request{Action: "status"}, &report); err != nil {
				return err
			}
			printStatus(os.Stdout, &report)
			return nil
		},
	}
}

func reapCommand() *command {
	var params connectionParams
	var pattern string
	var keep int
	var flagSet *pflag.FlagSet
	return &command{
		Name:    "reap",
		Summary: "Sweep leaked Wine helper processes now.",
		Description: "Reap runs one sweep immediately instead of waiting for the\n" +
			"supervisor's periodic pass. The lowest-PID matches are spared:\n" +
			"they belong to the live wineserver, and killing them would take\n" +
			"the terminal down with them.",
		Examples: []example{
			{
				Description: "Sweep with the supervisor's configured pattern and keep count",
				Command:     "termgate-ctl reap",
			},
			{
				Description: "Sweep a different process name, sparing only the oldest",
				Command:     "termgate-ctl reap --pattern explorer.exe --keep 1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("reap", pflag.ContinueOnError)
			params.register(flagSet, 30*time.Second)
			flagSet.StringVar(&pattern, "pattern", "", "Process name to match (default: the supervisor's configured pattern)")
			flagSet.IntVar(&keep, "keep", 0, "How many lowest-PID matches to spare (default: the supervisor's configured count)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			request := ipc.Request{Action: "reap", Pattern: pattern}
			// Only an explicitly set --keep rides along: the zero
			// value means "use the configured count", and the
			// supervisor rejects keep counts below one.
			if flagSet.Changed("keep") {
				request.Keep = &keep
			}
			var report ipc.ReapReport
			if err := params.call(request, &report); err != nil {
				return err
			}
			fmt.Printf("reaped %d matching %q, spared the %d oldest\n", report.Reaped, report.Pattern, report.Keep)
			return nil
		},
	}
}

func restartCommand() *command {
	var params connectionParams
	return &command{
		Name:    "restart",
		Summary: "Relaunch the terminal with a fresh configuration pass.",
		Description: "Restart stops the running terminal if there is one, rewrites its\n" +
			"configuration from the supervisor's startup session, relaunches\n" +
			"it, and waits for the in-terminal RPC endpoint to come up. The\n" +
			"command blocks until the launch settles one way or the other,\n" +
			"which can take a minute on slow installs.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("restart", pflag.ContinueOnError)
			params.register(flagSet, 90*time.Second)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var report ipc.RestartReport
			if err := params.call(ipc.Request{Action: "restart-terminal"}, &report); err != nil {
				return err
			}
			fmt.Printf("terminal pid %d, %s\n", report.PID, report.State)
			return nil
		},
	}
}

func metricsCommand() *command {
	var params connectionParams
	return &command{
		Name:    "metrics",
		Summary: "Dump the supervisor's telemetry counters.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("metrics", pflag.ContinueOnError)
			params.register(flagSet, 10*time.Second)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			var report ipc.MetricsReport
			if err := params.call(ipc.Request{Action: "metrics"}, &report); err != nil {
				return err
			}
			printMetrics(os.Stdout, &report)
			return nil
		},
	}
}

// printStatus renders a status report as aligned key/value lines.
func printStatus(w io.Writer, report *ipc.StatusReport) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	terminal := report.TerminalState
	if report.TerminalPID != 0 {
		terminal = fmt.Sprintf("%s (pid %d)", terminal, report.TerminalPID)
	}
	fmt.Fprintf(tw, "terminal:\t%s\n", terminal)
	fmt.Fprintf(tw, "display:\t%s, %s\n", report.Display, upDown(report.DisplayAlive))
	fmt.Fprintf(tw, "pipe:\t%s\n", upDown(report.PipeHealthy))
	if report.TerminalHash != "" {
		fmt.Fprintf(tw, "build:\t%s\n", report.TerminalHash)
	}
	if report.Login != 0 {
		fmt.Fprintf(tw, "account:\t%d on %s\n", report.Login, report.Server)
	}
	fmt.Fprintf(tw, "uptime:\t%s\n", time.Duration(report.UptimeSeconds)*time.Second)
	tw.Flush()
}

// printMetrics renders counters sorted by instrument name.
func printMetrics(w io.Writer, report *ipc.MetricsReport) {
	if len(report.Counters) == 0 {
		fmt.Fprintln(w, "no metrics recorded")
		return
	}
	keys := make([]string, 0, len(report.Counters))
	for key := range report.Counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	for _, key := range keys {
		fmt.Fprintf(tw, "%s\t%d\n", key, report.Counters[key])
	}
	tw.Flush()
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}
