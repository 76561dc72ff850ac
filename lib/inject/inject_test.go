// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package inject

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/termgate/termgate/lib/session"
)

const baseConfig = "[Common]\r\nLogin=11111\r\nServer=Old-Server\r\n\r\n[Experts]\r\nEnabled=0\r\n"

// testInjector builds an Injector over a temp tree with an install
// config and optionally one profile config, returning the injector and
// both paths.
func testInjector(t *testing.T, withProfile bool) (*Injector, string, string) {
	t.Helper()
	root := t.TempDir()

	installConfig := filepath.Join(root, "install", "Config", "common.ini")
	if err := os.MkdirAll(filepath.Dir(installConfig), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(installConfig, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	profileConfig := filepath.Join(root, "profiles", "D0E8209F77C8CF37", "config", "common.ini")
	if withProfile {
		if err := os.MkdirAll(filepath.Dir(profileConfig), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(profileConfig, []byte(baseConfig), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	glob := filepath.Join(root, "profiles", "*", "config", "common.ini")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	return New(installConfig, glob, logger), installConfig, profileConfig
}

func TestApplyWritesCredentials(t *testing.T) {
	injector, installConfig, profileConfig := testInjector(t, true)

	s := &session.Session{Login: 50012345, Password: "secret", Server: "Broker-Live"}
	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, path := range []string{installConfig, profileConfig} {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		text := string(content)
		if !strings.Contains(text, "Login=50012345") {
			t.Errorf("%s missing injected login:\n%s", path, text)
		}
		if !strings.Contains(text, "Server=Broker-Live") {
			t.Errorf("%s missing injected server:\n%s", path, text)
		}
		if !strings.Contains(text, "Enabled=1") {
			t.Errorf("%s autotrading not forced:\n%s", path, text)
		}
		if strings.Contains(text, "secret") {
			t.Errorf("%s contains the password:\n%s", path, text)
		}
	}
}

func TestApplyIdempotent(t *testing.T) {
	injector, installConfig, profileConfig := testInjector(t, true)
	s := &session.Session{
		Login:  50012345,
		Server: "Broker-Live",
		Proxy:  &session.Proxy{Kind: session.ProxySOCKS5, Address: "127.0.0.1:1080"},
	}

	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	firstInstall, _ := os.ReadFile(installConfig)
	firstProfile, _ := os.ReadFile(profileConfig)

	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	secondInstall, _ := os.ReadFile(installConfig)
	secondProfile, _ := os.ReadFile(profileConfig)

	if !bytes.Equal(firstInstall, secondInstall) {
		t.Errorf("install config not byte-identical after second Apply:\nfirst:  %q\nsecond: %q", firstInstall, secondInstall)
	}
	if !bytes.Equal(firstProfile, secondProfile) {
		t.Errorf("profile config not byte-identical after second Apply:\nfirst:  %q\nsecond: %q", firstProfile, secondProfile)
	}
}

func TestApplyAbsentAttributesDoNotMutate(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)

	// Login only: the existing Server line and proxy absence must
	// survive untouched.
	s := &session.Session{Login: 99999}
	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _ := os.ReadFile(installConfig)
	text := string(content)
	if !strings.Contains(text, "Login=99999") {
		t.Errorf("login not injected:\n%s", text)
	}
	if !strings.Contains(text, "Server=Old-Server") {
		t.Errorf("absent server attribute mutated the Server key:\n%s", text)
	}
	if strings.Contains(text, "ProxyEnable") {
		t.Errorf("absent proxy attribute created proxy keys:\n%s", text)
	}
}

func TestApplyNilSessionForcesAutotradingOnly(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)

	if err := injector.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _ := os.ReadFile(installConfig)
	text := string(content)
	if !strings.Contains(text, "Enabled=1") {
		t.Errorf("autotrading not forced:\n%s", text)
	}
	if !strings.Contains(text, "Login=11111") || !strings.Contains(text, "Server=Old-Server") {
		t.Errorf("nil session mutated credentials:\n%s", text)
	}
}

func TestApplyForcesAutotradingWhenSectionMissing(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)
	if err := os.WriteFile(installConfig, []byte("[Common]\r\nLogin=1\r\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := injector.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _ := os.ReadFile(installConfig)
	if !strings.Contains(string(content), "[Experts]") || !strings.Contains(string(content), "Enabled=1") {
		t.Errorf("missing Experts section not created:\n%s", content)
	}
}

func TestApplyWritesProxyTrio(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)

	s := &session.Session{
		Proxy: &session.Proxy{Kind: session.ProxySOCKS5, Address: "10.1.2.3:1080"},
	}
	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _ := os.ReadFile(installConfig)
	text := string(content)
	for _, want := range []string{"ProxyEnable=1", "ProxyType=2", "ProxyAddress=10.1.2.3:1080"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q:\n%s", want, text)
		}
	}
}

func TestApplySkipsMissingConfigFiles(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)
	if err := os.Remove(installConfig); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	// No config files anywhere: Apply succeeds doing nothing.
	if err := injector.Apply(context.Background(), &session.Session{Login: 1}); err != nil {
		t.Fatalf("Apply with no targets present: %v", err)
	}
}

func TestApplyDeletesAccountsArtifacts(t *testing.T) {
	injector, installConfig, profileConfig := testInjector(t, true)

	installArtifact := filepath.Join(filepath.Dir(installConfig), "accounts.dat")
	profileArtifact := filepath.Join(filepath.Dir(profileConfig), "accounts.dat")
	for _, path := range []string{installArtifact, profileArtifact} {
		if err := os.WriteFile(path, []byte("cached"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	if err := injector.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, path := range []string{installArtifact, profileArtifact} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should be deleted", path)
		}
	}

	// Second Apply with the artifacts already gone is not an error.
	if err := injector.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply with artifacts absent: %v", err)
	}
}

func TestApplyPurgesArtifactInProfileWithoutConfig(t *testing.T) {
	injector, _, profileConfig := testInjector(t, false)

	// The profile directory exists with cached authorizations but the
	// terminal has not written its common.ini yet. The artifact must
	// still go, or the terminal reuses the stale account.
	profileDir := filepath.Dir(profileConfig)
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	artifact := filepath.Join(profileDir, "accounts.dat")
	if err := os.WriteFile(artifact, []byte("cached"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := injector.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Errorf("accounts.dat in a config-less profile directory should be deleted")
	}
}

func TestApplyDiscoversProfileCreatedLater(t *testing.T) {
	injector, _, profileConfig := testInjector(t, false)
	s := &session.Session{Login: 777}

	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	// The terminal starts and creates its profile directory.
	if err := os.MkdirAll(filepath.Dir(profileConfig), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(profileConfig, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := injector.Apply(context.Background(), s); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	content, _ := os.ReadFile(profileConfig)
	if !strings.Contains(string(content), "Login=777") {
		t.Errorf("late-created profile not rewritten:\n%s", content)
	}
}

func TestApplyPreservesFileMode(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)
	if err := os.Chmod(installConfig, 0600); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	if err := injector.Apply(context.Background(), &session.Session{Login: 1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	info, err := os.Stat(installConfig)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %04o, want 0600 preserved", info.Mode().Perm())
	}
}

func TestApplyLeavesNoTemporaryFiles(t *testing.T) {
	injector, installConfig, _ := testInjector(t, false)

	if err := injector.Apply(context.Background(), &session.Session{Login: 42}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(installConfig + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind")
	}
}
