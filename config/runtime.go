package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/common"
	"vitrine/native/fees"
	"vitrine/native/identity"
	"vitrine/native/market"
)

// Runtime bundles the parameters the daemon hands to the marketplace.
type Runtime struct {
	Market    market.Params
	Identity  identity.Params
	Affiliate affiliate.Params
}

// Runtime parses the marketplace section into aggregate parameters.
func (c *Config) Runtime() (Runtime, error) {
	platform, err := crypto.DecodeAddress(strings.TrimSpace(c.Market.PlatformAccount))
	if err != nil {
		return Runtime{}, fmt.Errorf("market.PlatformAccount: %w", err)
	}
	m := c.Market
	return Runtime{
		Market: market.Params{
			PlatformAccount:      platform,
			Fees:                 fees.Policy{PlatformFeeBps: m.PlatformFeeBps},
			SellerThreshold:      m.SellerThreshold,
			SaleReputationReward: m.SaleReputationReward,
			LockTimeout:          time.Duration(m.LockTimeoutMillis) * time.Millisecond,
		},
		Identity: identity.Params{
			BaseReputation:    m.BaseReputation,
			RegistrationBonus: m.RegistrationBonus,
		},
		Affiliate: affiliate.Params{
			PromoterThreshold: m.PromoterThreshold,
			AttributionWindow: time.Duration(m.AttributionWindowSeconds) * time.Second,
		},
	}, nil
}

// PauseMap returns the pause flags keyed by module name.
func (p Pauses) PauseMap() map[string]bool {
	return map[string]bool{
		common.ModuleIdentity:  p.Identity,
		common.ModuleCatalog:   p.Catalog,
		common.ModuleMarket:    p.Market,
		common.ModuleAffiliate: p.Affiliate,
		common.ModuleLedger:    p.Ledger,
	}
}

// SnapshotInterval returns the periodic snapshot cadence.
func (m Market) SnapshotInterval() time.Duration {
	return time.Duration(m.SnapshotIntervalSeconds) * time.Second
}

// CacheTTL returns the content cache lifetime.
func (c ContentStore) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ResolvePath anchors a relative path under the data directory.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// SlogLevel parses the configured log level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Secret reads a secret from the named environment variable.
func Secret(env string) []byte {
	env = strings.TrimSpace(env)
	if env == "" {
		return nil
	}
	return []byte(strings.TrimSpace(os.Getenv(env)))
}
