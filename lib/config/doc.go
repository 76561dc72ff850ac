// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// supervisor.
//
// Configuration is loaded from a single file specified by either the
// TERMGATE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no ~/.config discovery and no
// automatic file search. A missing file is not an error for [Load]:
// container deployments usually run on [Default] values plus
// TERMGATE_* environment overrides for the standard knobs (listen
// address, control socket, pipe URL, display number, log level).
//
// Variable expansion is performed on path-like fields after loading:
// ${WINEPREFIX}, ${HOME}, and ${VAR:-default} patterns are expanded
// from the environment. No other environment variables override
// config values.
//
// Key exports:
//
//   - [Config] -- master struct with Pipe, Display, Terminal, Inject,
//     Reaper sections
//   - [Default] -- returns a Config for the standard single-terminal
//     container layout
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other termgate packages.
package config
