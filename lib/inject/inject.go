// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package inject rewrites the terminal's configuration files before a
// session begins.
//
// The terminal has no configuration API: account, server, and proxy
// settings live in common.ini files the terminal reads at startup, and
// cached broker authorizations live in accounts.dat beside them. There
// are two configuration locations: the install root, and a per-profile
// directory the terminal creates on first run under a generated name.
// The profile directory may not exist yet (first boot) or may appear
// between calls, so it is discovered by glob on every Apply rather than
// resolved once.
//
// Apply is idempotent: applying the same session twice leaves every
// file byte-identical the second time. Session attributes that are
// absent never touch their keys, so operator-set values survive. The
// password is never written anywhere; it travels only in the
// begin-session payload. Autotrading ([Experts] Enabled=1) is forced on
// every Apply because the terminal rewrites it to 0 on various exits
// and nothing works without it.
package inject

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/termgate/termgate/lib/inifile"
	"github.com/termgate/termgate/lib/session"
)

// accountsFile is the cached-authorization artifact deleted on every
// Apply. A stale one makes the terminal silently reuse the previous
// account instead of honoring the injected one.
const accountsFile = "accounts.dat"

// Injector applies session attributes to the terminal's configuration
// locations.
type Injector struct {
	installConfig string
	profileGlob   string
	logger        *slog.Logger
}

// New returns an Injector. installConfig is the install-root common.ini
// path; profileGlob matches per-profile common.ini files (evaluated
// fresh on every Apply).
func New(installConfig, profileGlob string, logger *slog.Logger) *Injector {
	return &Injector{
		installConfig: installConfig,
		profileGlob:   profileGlob,
		logger:        logger,
	}
}

// InstallConfig returns the install-root configuration path this
// injector rewrites.
func (in *Injector) InstallConfig() string {
	return in.installConfig
}

// Apply rewrites every existing configuration target for the given
// session (nil means: force autotrading only) and deletes cached
// authorization artifacts. Missing configuration files are skipped:
// on first boot the profile directory does not exist yet and the
// terminal will create it from the install-root config, which this
// Apply has already rewritten. Artifacts are discovered by their own
// glob, not next to found configuration files, so a profile directory
// that holds accounts.dat but no common.ini yet is still purged.
// Individual target failures do not stop the remaining targets; all
// failures are joined into the returned error.
func (in *Injector) Apply(ctx context.Context, s *session.Session) error {
	targets, err := in.targets()
	if err != nil {
		return err
	}

	var failures []error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed, err := in.applyFile(target, s)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			in.logger.Debug("configuration file absent, skipping", "path", target)
		case err != nil:
			failures = append(failures, err)
		case changed:
			in.logger.Info("configuration rewritten", "path", target, "session", s)
		default:
			in.logger.Debug("configuration already current", "path", target)
		}
	}

	artifacts, err := in.artifacts()
	if err != nil {
		failures = append(failures, err)
	}
	for _, artifact := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.removeArtifact(artifact); err != nil {
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}

// targets returns the install-root config plus the current profile
// glob matches. The install config is first so a first-boot profile
// inherits already-rewritten settings.
func (in *Injector) targets() ([]string, error) {
	targets := []string{in.installConfig}
	if in.profileGlob == "" {
		return targets, nil
	}
	matches, err := filepath.Glob(in.profileGlob)
	if err != nil {
		return nil, fmt.Errorf("resolving profile glob %q: %w", in.profileGlob, err)
	}
	return append(targets, matches...), nil
}

// applyFile rewrites one configuration file. Reports whether the file
// changed. Errors from Load wrap fs.ErrNotExist for missing files.
func (in *Injector) applyFile(path string, s *session.Session) (bool, error) {
	document, err := inifile.Load(path)
	if err != nil {
		return false, err
	}

	if !rewrite(document, s) {
		return false, nil
	}

	if err := writeFileAtomic(path, document.Render()); err != nil {
		return false, fmt.Errorf("rewriting %s: %w", path, err)
	}
	return true, nil
}

// rewrite applies the session's attributes to the document and reports
// whether anything changed. Absent attributes never touch their keys.
func rewrite(document *inifile.Document, s *session.Session) bool {
	changed := false
	if s != nil {
		if s.Login != 0 {
			changed = document.Set("Common", "Login", s.LoginString()) || changed
		}
		if s.Server != "" {
			changed = document.Set("Common", "Server", s.Server) || changed
		}
		if s.Proxy != nil {
			changed = document.Set("Common", "ProxyEnable", "1") || changed
			changed = document.Set("Common", "ProxyType", s.Proxy.Kind.Code()) || changed
			changed = document.Set("Common", "ProxyAddress", s.Proxy.Address) || changed
		}
	}
	changed = document.Set("Experts", "Enabled", "1") || changed
	return changed
}

// artifacts returns the cached-authorization files to delete: one next
// to the install-root config, plus any matching the profile layout.
// The profile pattern is derived from the configuration glob, so both
// always point at the same directories.
func (in *Injector) artifacts() ([]string, error) {
	paths := []string{filepath.Join(filepath.Dir(in.installConfig), accountsFile)}
	if in.profileGlob == "" {
		return paths, nil
	}
	pattern := filepath.Join(filepath.Dir(in.profileGlob), accountsFile)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return paths, fmt.Errorf("resolving artifact glob %q: %w", pattern, err)
	}
	return append(paths, matches...), nil
}

// removeArtifact deletes one cached-authorization file. Absence is the
// normal case.
func (in *Injector) removeArtifact(path string) error {
	err := os.Remove(path)
	if err == nil {
		in.logger.Info("removed cached authorization", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("removing %s: %w", path, err)
}

// writeFileAtomic writes data to a temporary file in the target's
// directory, syncs it, and renames it into place, preserving the
// original file's mode. The terminal may read its configuration at any
// moment; it must never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	// The sync must land before the rename. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}

	return nil
}
