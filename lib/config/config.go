// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings ("240s", "1m30s"). Cast to time.Duration at use sites.
type Duration time.Duration

// UnmarshalYAML implements custom unmarshaling for duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the master configuration for the supervisor.
type Config struct {
	// ListenAddress is the TCP address the RPC bridge serves on.
	// The port is fixed by convention; clients on the container
	// network address the container, not a per-session port.
	ListenAddress string `yaml:"listen_address"`

	// ControlSocket is the Unix socket path for the operator control
	// protocol (status, reap, restart-terminal, metrics).
	ControlSocket string `yaml:"control_socket"`

	// LogLevel is the minimum slog level: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Pipe configures the connection to the in-terminal RPC endpoint.
	Pipe PipeConfig `yaml:"pipe"`

	// Display configures the headless X server.
	Display DisplayConfig `yaml:"display"`

	// Terminal configures the supervised terminal process.
	Terminal TerminalConfig `yaml:"terminal"`

	// Inject configures terminal configuration rewriting.
	Inject InjectConfig `yaml:"inject"`

	// Reaper configures the subprocess reaper.
	Reaper ReaperConfig `yaml:"reaper"`
}

// PipeConfig configures the connection to the in-terminal endpoint.
type PipeConfig struct {
	// URL is the base URL of the endpoint the terminal-side expert
	// advisor serves on loopback.
	URL string `yaml:"url"`

	// CallTimeout bounds each relayed method call. Historical data
	// requests legitimately run for minutes.
	CallTimeout Duration `yaml:"call_timeout"`

	// RetryInterval is the pause between connection attempts while
	// the endpoint is still coming up.
	RetryInterval Duration `yaml:"retry_interval"`

	// ReadyTimeout bounds how long launch waits for the endpoint to
	// answer its liveness probe before declaring the terminal
	// timed out.
	ReadyTimeout Duration `yaml:"ready_timeout"`

	// PollInterval is the pause between liveness probes during
	// launch.
	PollInterval Duration `yaml:"poll_interval"`
}

// DisplayConfig configures the headless X server.
type DisplayConfig struct {
	// Binary is the X server executable. Resolved through PATH when
	// not an absolute path.
	Binary string `yaml:"binary"`

	// Number is the X display number (99 serves display ":99").
	Number int `yaml:"number"`

	// Screen is the Xvfb screen geometry.
	Screen string `yaml:"screen"`

	// StartupTimeout bounds how long startup waits for the X socket.
	StartupTimeout Duration `yaml:"startup_timeout"`
}

// TerminalConfig configures the supervised terminal process.
type TerminalConfig struct {
	// Command is the full launch command, typically the Wine loader
	// followed by the terminal executable and its flags.
	Command []string `yaml:"command"`

	// Binary is the path to the terminal executable on the host
	// filesystem, used for the status report's build digest. May
	// differ from Command[0] when launching through Wine.
	Binary string `yaml:"binary"`

	// Workdir is the working directory for the terminal process.
	Workdir string `yaml:"workdir"`

	// Autostart launches the terminal at supervisor startup. When
	// false the terminal starts on the first begin-session call
	// through the bridge.
	Autostart bool `yaml:"autostart"`
}

// InjectConfig configures terminal configuration rewriting.
type InjectConfig struct {
	// InstallConfig is the terminal's main configuration file.
	InstallConfig string `yaml:"install_config"`

	// ProfileGlob matches per-profile configuration files. Evaluated
	// fresh on every rewrite so profiles created after startup are
	// picked up.
	ProfileGlob string `yaml:"profile_glob"`
}

// ReaperConfig configures the subprocess reaper.
type ReaperConfig struct {
	// Pattern is the process name to sweep.
	Pattern string `yaml:"pattern"`

	// Keep is how many lowest-PID matches each sweep spares.
	Keep int `yaml:"keep"`

	// Interval is the time between sweeps.
	Interval Duration `yaml:"interval"`
}

// Default returns the default configuration: a single terminal in a
// Wine prefix at ${WINEPREFIX:-/wine}, bridge on :18812, in-terminal
// endpoint on loopback :18811.
func Default() *Config {
	const installDir = "${WINEPREFIX:-/wine}/drive_c/Program Files/MetaTrader 5"

	return &Config{
		ListenAddress: ":18812",
		ControlSocket: "/run/termgate/control.sock",
		LogLevel:      "info",
		Pipe: PipeConfig{
			URL:           "http://127.0.0.1:18811",
			CallTimeout:   Duration(240 * time.Second),
			RetryInterval: Duration(time.Second),
			ReadyTimeout:  Duration(60 * time.Second),
			PollInterval:  Duration(time.Second),
		},
		Display: DisplayConfig{
			Binary:         "Xvfb",
			Number:         99,
			Screen:         "1280x1024x24",
			StartupTimeout: Duration(5 * time.Second),
		},
		Terminal: TerminalConfig{
			Command:   []string{"wine", installDir + "/terminal64.exe", "/portable"},
			Binary:    installDir + "/terminal64.exe",
			Workdir:   installDir,
			Autostart: true,
		},
		Inject: InjectConfig{
			InstallConfig: installDir + "/Config/common.ini",
			ProfileGlob:   installDir + "/Profiles/*/config/common.ini",
		},
		Reaper: ReaperConfig{
			Pattern:  "winedevice.exe",
			Keep:     2,
			Interval: Duration(10 * time.Second),
		},
	}
}

// Load loads configuration from the TERMGATE_CONFIG environment
// variable. Unlike LoadFile, a missing variable is not an error: the
// supervisor runs on defaults plus TERMGATE_* overrides, which is the
// normal container deployment.
func Load() (*Config, error) {
	configPath := os.Getenv("TERMGATE_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.applyEnvironment()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults. TERMGATE_* environment overrides are applied on
// top, then ${VAR} expansion runs on path-like fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyEnvironment()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironment overrides the standard deployment knobs from
// TERMGATE_* variables. Container deployments set these instead of
// mounting a config file.
func (c *Config) applyEnvironment() {
	if value := os.Getenv("TERMGATE_LISTEN_ADDRESS"); value != "" {
		c.ListenAddress = value
	}
	if value := os.Getenv("TERMGATE_CONTROL_SOCKET"); value != "" {
		c.ControlSocket = value
	}
	if value := os.Getenv("TERMGATE_PIPE_URL"); value != "" {
		c.Pipe.URL = value
	}
	if value := os.Getenv("TERMGATE_LOG_LEVEL"); value != "" {
		c.LogLevel = value
	}
	if value := os.Getenv("TERMGATE_DISPLAY_NUMBER"); value != "" {
		if number, err := strconv.Atoi(value); err == nil {
			c.Display.Number = number
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path-like fields.
func (c *Config) expandVariables() {
	c.ControlSocket = expandVars(c.ControlSocket)
	c.Display.Binary = expandVars(c.Display.Binary)
	c.Terminal.Binary = expandVars(c.Terminal.Binary)
	c.Terminal.Workdir = expandVars(c.Terminal.Workdir)
	for i, argument := range c.Terminal.Command {
		c.Terminal.Command[i] = expandVars(argument)
	}
	c.Inject.InstallConfig = expandVars(c.Inject.InstallConfig)
	c.Inject.ProfileGlob = expandVars(c.Inject.ProfileGlob)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// logLevels maps the configured level names to slog levels.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured log level. Unknown names fall back
// to info; Validate reports them as errors.
func (c *Config) SlogLevel() slog.Level {
	if level, ok := logLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("listen_address is required"))
	}
	if c.ControlSocket == "" {
		errs = append(errs, fmt.Errorf("control_socket is required"))
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("log_level must be one of: debug, info, warn, error"))
	}

	if c.Pipe.URL == "" {
		errs = append(errs, fmt.Errorf("pipe.url is required"))
	} else if parsed, err := url.Parse(c.Pipe.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errs = append(errs, fmt.Errorf("pipe.url must be an http(s) URL, got %q", c.Pipe.URL))
	}
	if c.Pipe.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipe.call_timeout must be positive"))
	}
	if c.Pipe.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipe.retry_interval must be positive"))
	}
	if c.Pipe.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipe.ready_timeout must be positive"))
	}
	if c.Pipe.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipe.poll_interval must be positive"))
	}

	if c.Display.Binary == "" {
		errs = append(errs, fmt.Errorf("display.binary is required"))
	}
	if c.Display.Number < 0 {
		errs = append(errs, fmt.Errorf("display.number must not be negative"))
	}
	if c.Display.Screen == "" {
		errs = append(errs, fmt.Errorf("display.screen is required"))
	}
	if c.Display.StartupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("display.startup_timeout must be positive"))
	}

	if len(c.Terminal.Command) == 0 {
		errs = append(errs, fmt.Errorf("terminal.command is required"))
	}

	if c.Inject.InstallConfig == "" {
		errs = append(errs, fmt.Errorf("inject.install_config is required"))
	}

	if c.Reaper.Pattern == "" {
		errs = append(errs, fmt.Errorf("reaper.pattern is required"))
	}
	if c.Reaper.Keep < 0 {
		errs = append(errs, fmt.Errorf("reaper.keep must not be negative"))
	}
	if c.Reaper.Interval <= 0 {
		errs = append(errs, fmt.Errorf("reaper.interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
