// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/termgate/termgate/lib/binhash"
	"github.com/termgate/termgate/lib/bridge"
	"github.com/termgate/termgate/lib/config"
	"github.com/termgate/termgate/lib/display"
	"github.com/termgate/termgate/lib/inject"
	"github.com/termgate/termgate/lib/pipe"
	"github.com/termgate/termgate/lib/reaper"
	"github.com/termgate/termgate/lib/service"
	"github.com/termgate/termgate/lib/session"
	"github.com/termgate/termgate/lib/supervisor"
	"github.com/termgate/termgate/lib/telemetry"
)

var (
	configPath    = flag.String("config", "", "path to the YAML configuration file (default: $TERMGATE_CONFIG, else built-in defaults)")
	listenAddress = flag.String("listen", "", "override the bridge TCP listen address")
	controlSocket = flag.String("control-socket", "", "override the control socket path")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	cfg, err := loadConfig(*configPath, *listenAddress, *controlSocket)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup session from the MT5_* environment. Absence is fine: the
	// terminal starts logged out and clients carry credentials in their
	// initialize call instead.
	startup, err := session.FromEnvironment()
	if err != nil {
		return fmt.Errorf("reading startup session: %w", err)
	}
	logger.Info("startup session", "session", startup)

	// The display is a hard prerequisite: the terminal is a GUI program
	// with no headless mode and aborts without one.
	displayManager := display.New(display.Config{
		Number:       cfg.Display.Number,
		Screen:       cfg.Display.Screen,
		Binary:       cfg.Display.Binary,
		ReadyTimeout: time.Duration(cfg.Display.StartupTimeout),
		Logger:       logger,
	})
	if err := displayManager.Start(ctx); err != nil {
		return fmt.Errorf("starting display: %w", err)
	}
	defer displayManager.Stop()
	logger.Info("display up", "display", displayManager.Name())

	// Rewrite the install configuration before the first launch. With
	// no startup session this still deletes stale authorization
	// artifacts and forces autotrading on.
	injector := inject.New(cfg.Inject.InstallConfig, cfg.Inject.ProfileGlob, logger)
	if err := injector.Apply(ctx, startup); err != nil {
		return fmt.Errorf("applying startup configuration: %w", err)
	}

	telemetrySink, err := telemetry.Setup("termgate-supervisor")
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	pipeClient := pipe.New(pipe.Config{
		BaseURL:       cfg.Pipe.URL,
		CallTimeout:   time.Duration(cfg.Pipe.CallTimeout),
		RetryInterval: time.Duration(cfg.Pipe.RetryInterval),
		Logger:        logger,
	})

	terminal := supervisor.New(supervisor.Config{
		Command:      cfg.Terminal.Command,
		Dir:          cfg.Terminal.Workdir,
		Env:          []string{displayManager.Env()},
		Probe:        pipeClient,
		ReadyTimeout: time.Duration(cfg.Pipe.ReadyTimeout),
		PollInterval: time.Duration(cfg.Pipe.PollInterval),
		Logger:       logger,
	})

	terminalHash := hashTerminalBinary(cfg.Terminal.Binary, logger)

	if cfg.Terminal.Autostart {
		handle, err := terminal.Launch(ctx)
		if err != nil {
			return fmt.Errorf("launching terminal: %w", err)
		}
		state, err := terminal.WaitReady(ctx, handle)
		if err != nil {
			// Shutdown signal arrived during startup.
			return err
		}
		// A terminal that died or is still warming up is not fatal:
		// the control socket stays up so an operator can diagnose and
		// restart it.
		logger.Info("terminal startup settled", "pid", handle.PID(), "state", state.String())
	}

	reapConfig := reaper.Config{
		Pattern:  cfg.Reaper.Pattern,
		Keep:     cfg.Reaper.Keep,
		Interval: time.Duration(cfg.Reaper.Interval),
		OnReap: func(count int) {
			telemetrySink.RecordReaped(ctx, count)
		},
		Logger: logger,
	}
	go reaper.New(reapConfig).Run(ctx)

	rpcBridge := bridge.New(bridge.Config{
		Pipe:      pipeClient,
		Injector:  injector,
		Startup:   startup,
		Telemetry: telemetrySink,
		Logger:    logger,
	})

	if err := ensureSocketDir(cfg.ControlSocket); err != nil {
		return err
	}
	control := service.NewSocketServer(cfg.ControlSocket, logger)
	registerControlActions(control, &controlState{
		terminal:     terminal,
		display:      displayManager,
		pipe:         pipeClient,
		injector:     injector,
		telemetry:    telemetrySink,
		startup:      startup,
		reap:         reapConfig,
		terminalHash: terminalHash,
		started:      time.Now(),
		logger:       logger,
		sessionGate:  rpcBridge.SessionGate(),
	})
	controlErr := make(chan error, 1)
	go func() { controlErr <- control.Serve(ctx) }()

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.ListenAddress,
		Handler: rpcBridge,
		Logger:  logger,
	})

	logger.Info("supervisor up",
		"listen_address", cfg.ListenAddress,
		"control_socket", cfg.ControlSocket,
		"display", displayManager.Name(),
		"terminal_hash", terminalHash,
	)

	// Blocks until SIGINT/SIGTERM, then drains in-flight RPC calls.
	serveErr := httpServer.Serve(ctx)

	logger.Info("shutting down")
	terminal.Kill(terminal.Current())
	displayManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetrySink.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	if err := <-controlErr; err != nil {
		logger.Error("control socket", "error", err)
	}
	return serveErr
}

// loadConfig resolves the effective configuration: the -config flag
// wins over $TERMGATE_CONFIG, which wins over built-in defaults. Flag
// overrides land before validation so a bad override is caught here,
// not at bind time.
func loadConfig(path, listen, control string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if listen != "" {
		cfg.ListenAddress = listen
	}
	if control != "" {
		cfg.ControlSocket = control
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ensureSocketDir creates the control socket's parent directory. The
// socket file itself is created by the socket server, which also
// removes a stale file left by a previous run.
func ensureSocketDir(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating control socket directory %s: %w", dir, err)
	}
	return nil
}

// hashTerminalBinary computes the identity hash reported in status.
// Failure is not fatal: the hash is diagnostic detail, and the path
// may be absent in development setups where the terminal runs
// elsewhere.
func hashTerminalBinary(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	digest, err := binhash.Digest(path)
	if err != nil {
		logger.Warn("hashing terminal binary", "path", path, "error", err)
		return ""
	}
	return digest
}
