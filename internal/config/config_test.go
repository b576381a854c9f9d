/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SKULD_DB_DSN", "file::memory:")
	t.Setenv("SKULD_DB_BACKEND", "sqlite")
	t.Setenv("SKULD_JWT_SIGNING_KEY", "test-signing-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("environment = %q, want development", cfg.Environment)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("http port = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.Network.GasCeiling != 3_141_592 {
		t.Fatalf("gas ceiling = %d, want 3141592", cfg.Network.GasCeiling)
	}
	if cfg.Network.BlockTime != 14 {
		t.Fatalf("block time = %d, want 14", cfg.Network.BlockTime)
	}
	if cfg.CacheEnabled || cfg.EventBusEnabled || cfg.TracingEnabled {
		t.Fatal("optional subsystems should default off")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("SKULD_DB_DSN", "")
	t.Setenv("SKULD_JWT_SIGNING_KEY", "key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("SKULD_DB_DSN", "file::memory:")
	t.Setenv("SKULD_DB_BACKEND", "sqlite")
	t.Setenv("SKULD_JWT_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing signing key")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("SKULD_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SKULD_HTTP_PORT", "9999")
	t.Setenv("SKULD_TRACING_ENABLED", "yes")
	t.Setenv("SKULD_TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("SKULD_EVENTBUS_ENABLED", "1")
	t.Setenv("SKULD_NATS_URL", "nats://broker:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != 9999 {
		t.Fatalf("http port = %d, want 9999", cfg.HTTPPort)
	}
	if !cfg.TracingEnabled || cfg.TracingSampleRate != 0.25 {
		t.Fatalf("tracing = (%v, %v)", cfg.TracingEnabled, cfg.TracingSampleRate)
	}
	if !cfg.EventBusEnabled || cfg.NATSURL != "nats://broker:4222" {
		t.Fatalf("event bus = (%v, %q)", cfg.EventBusEnabled, cfg.NATSURL)
	}
}

func TestLoadNetworkParamsFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "network.yaml")
	body := []byte("gas_ceiling: 8000000\ngas_price: 5\nblock_time_seconds: 12\nconfirmation_latency_blocks: 3\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write params file: %v", err)
	}
	t.Setenv("SKULD_NETWORK_PARAMS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.GasCeiling != 8_000_000 || cfg.Network.GasPrice != 5 {
		t.Fatalf("network = %+v", cfg.Network)
	}
	if cfg.Network.ConfirmationBlocks != 3 {
		t.Fatalf("confirmation blocks = %d, want 3", cfg.Network.ConfirmationBlocks)
	}
}

func TestLoadNetworkParamsFileRejectsZeroCeiling(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "network.yaml")
	if err := os.WriteFile(path, []byte("gas_ceiling: 0\nblock_time_seconds: 12\n"), 0o600); err != nil {
		t.Fatalf("write params file: %v", err)
	}
	t.Setenv("SKULD_NETWORK_PARAMS_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero gas ceiling")
	}
}
