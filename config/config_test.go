package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vitrine/crypto"
	"vitrine/native/common"
)

func TestLoadCreatesDefaultWithPlatformAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if _, err := crypto.DecodeAddress(cfg.Market.PlatformAccount); err != nil {
		t.Fatalf("expected generated platform account: %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Market.PlatformAccount != cfg.Market.PlatformAccount {
		t.Fatalf("platform account not persisted")
	}
}

func TestLoadParsesSections(t *testing.T) {
	var raw [20]byte
	raw[19] = 0xEE
	platform := crypto.BytesToAddress(raw[:]).String()
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/vitrine"

[market]
PlatformAccount = "` + platform + `"
PlatformFeeBps = 300
LockTimeoutMillis = 500
AttributionWindowSeconds = 3600

[pauses]
Market = true

[content_store]
Backend = "http"
GatewayURL = "https://gateway.example"

[log]
Level = "debug"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Market.SellerThreshold != 10 || cfg.Market.SnapshotRetention != 16 {
		t.Fatalf("expected defaults to survive partial file: %+v", cfg.Market)
	}

	rt, err := cfg.Runtime()
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if rt.Market.Fees.PlatformFeeBps != 300 {
		t.Fatalf("unexpected fee %d", rt.Market.Fees.PlatformFeeBps)
	}
	if rt.Market.LockTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected lock timeout %s", rt.Market.LockTimeout)
	}
	if rt.Affiliate.AttributionWindow != time.Hour {
		t.Fatalf("unexpected window %s", rt.Affiliate.AttributionWindow)
	}
	if rt.Market.PlatformAccount.String() != platform {
		t.Fatalf("unexpected platform account")
	}
	if !cfg.Pauses.PauseMap()[common.ModuleMarket] || cfg.Pauses.PauseMap()[common.ModuleLedger] {
		t.Fatalf("unexpected pauses %v", cfg.Pauses.PauseMap())
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Fatalf("unexpected level %v", cfg.Log.SlogLevel())
	}
	if got := cfg.ResolvePath("content.db"); got != filepath.Join("/var/lib/vitrine", "content.db") {
		t.Fatalf("unexpected resolved path %q", got)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	var raw [20]byte
	raw[0] = 1
	base := func() *Config {
		cfg := Default()
		cfg.Market.PlatformAccount = crypto.BytesToAddress(raw[:]).String()
		return cfg
	}
	cases := map[string]func(*Config){
		"missing platform": func(c *Config) { c.Market.PlatformAccount = "" },
		"fee too high":     func(c *Config) { c.Market.PlatformFeeBps = 10_001 },
		"lock timeout":     func(c *Config) { c.Market.LockTimeoutMillis = 1 },
		"window":           func(c *Config) { c.Market.AttributionWindowSeconds = 0 },
		"retention":        func(c *Config) { c.Market.SnapshotRetention = 0 },
		"backend":          func(c *Config) { c.ContentStore.Backend = "s3" },
		"gateway url":      func(c *Config) { c.ContentStore.Backend = "http" },
		"audit driver":     func(c *Config) { c.Audit.DSN = "x"; c.Audit.Driver = "mysql" },
		"sample ratio":     func(c *Config) { c.Telemetry.SampleRatio = 2 },
	}
	if err := ValidateConfig(base()); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSecretReadsEnvironment(t *testing.T) {
	t.Setenv("VITRINE_TEST_SECRET", "  s3cret ")
	if got := string(Secret("VITRINE_TEST_SECRET")); got != "s3cret" {
		t.Fatalf("unexpected secret %q", got)
	}
	if Secret(" ") != nil {
		t.Fatalf("expected nil for blank env name")
	}
	if !strings.HasPrefix(Default().Auth.HMACSecretEnv, "VITRINE_") {
		t.Fatalf("unexpected default secret env")
	}
}
