package config

import (
	"fmt"
	"strings"

	"vitrine/crypto"
	"vitrine/native/fees"
)

var (
	MinLockTimeoutMillis = uint64(10)
	MaxSnapshotRetention = 1024
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	m := cfg.Market
	if _, err := crypto.DecodeAddress(strings.TrimSpace(m.PlatformAccount)); err != nil {
		return fmt.Errorf("market: platform account: %w", err)
	}
	if m.PlatformFeeBps > fees.BpsDenominator {
		return fmt.Errorf("market: platform_fee_bps > %d", fees.BpsDenominator)
	}
	if m.LockTimeoutMillis < MinLockTimeoutMillis {
		return fmt.Errorf("market: lock_timeout_ms too small")
	}
	if m.AttributionWindowSeconds == 0 {
		return fmt.Errorf("market: attribution_window_seconds must be positive")
	}
	if m.SnapshotIntervalSeconds == 0 {
		return fmt.Errorf("market: snapshot_interval_seconds must be positive")
	}
	if m.SnapshotRetention <= 0 || m.SnapshotRetention > MaxSnapshotRetention {
		return fmt.Errorf("market: snapshot_retention out of range")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: negative limits")
	}
	if cfg.Webhook.RateLimitPerMinute < 0 {
		return fmt.Errorf("webhook: rate_limit_per_minute must not be negative")
	}
	switch strings.ToLower(cfg.ContentStore.Backend) {
	case "bolt", "":
	case "http":
		if strings.TrimSpace(cfg.ContentStore.GatewayURL) == "" {
			return fmt.Errorf("content_store: gateway_url required for http backend")
		}
	default:
		return fmt.Errorf("content_store: unknown backend %q", cfg.ContentStore.Backend)
	}
	if dsn := strings.TrimSpace(cfg.Audit.DSN); dsn != "" {
		switch strings.ToLower(cfg.Audit.Driver) {
		case "sqlite", "postgres", "":
		default:
			return fmt.Errorf("audit: unknown driver %q", cfg.Audit.Driver)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	return nil
}
