// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *command {
	return &command{
		Name:    "termgate-ctl",
		Summary: "Control a running termgate supervisor.",
		Description: "Termgate-ctl talks to the supervisor's Unix control socket. It\n" +
			"inspects the supervised terminal, sweeps leaked Wine helper\n" +
			"processes, restarts the terminal, and dumps telemetry counters.",
		Examples: []example{
			{
				Description: "Check terminal and display health",
				Command:     "termgate-ctl status",
			},
			{
				Description: "Sweep leaked helper processes, sparing the two oldest",
				Command:     "termgate-ctl reap --keep 2",
			},
			{
				Description: "Restart the terminal and wait for it to come up",
				Command:     "termgate-ctl restart",
			},
		},
		Subcommands: []*command{
			statusCommand(),
			reapCommand(),
			restartCommand(),
			metricsCommand(),
		},
	}
}
