package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vitrine/crypto"
)

const (
	DefaultListenAddress = ":8080"
	DefaultNetworkName   = "vitrine-local"
)

type Config struct {
	ListenAddress string       `toml:"ListenAddress"`
	DataDir       string       `toml:"DataDir"`
	NetworkName   string       `toml:"NetworkName"`
	Market        Market       `toml:"market"`
	Pauses        Pauses       `toml:"pauses"`
	Auth          Auth         `toml:"auth"`
	RateLimit     RateLimit    `toml:"rate_limit"`
	ContentStore  ContentStore `toml:"content_store"`
	Audit         Audit        `toml:"audit"`
	Webhook       Webhook      `toml:"webhook"`
	Telemetry     Telemetry    `toml:"telemetry"`
	Log           Log          `toml:"log"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(cfg.Market.PlatformAccount) == "" {
		if err := ensurePlatformAccount(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Default returns the configuration used for freshly created files. Values
// absent from a file keep these defaults.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       "./vitrine-data",
		NetworkName:   DefaultNetworkName,
		Market: Market{
			PlatformFeeBps:           250,
			PromoterThreshold:        10,
			SellerThreshold:          10,
			SaleReputationReward:     1,
			BaseReputation:           10,
			RegistrationBonus:        5,
			AttributionWindowSeconds: 7 * 24 * 3600,
			LockTimeoutMillis:        2000,
			SnapshotIntervalSeconds:  60,
			SnapshotRetention:        16,
		},
		Auth: Auth{
			HMACSecretEnv: "VITRINE_JWT_SECRET",
			Issuer:        "vitrine",
			Audience:      "vitrine-rpc",
			AdminScope:    "admin",
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		ContentStore: ContentStore{
			Backend:         "bolt",
			Path:            "content.db",
			CacheTTLSeconds: 24 * 3600,
			CacheEntries:    1000,
		},
		Audit:     Audit{Driver: "sqlite"},
		Webhook:   Webhook{SecretEnv: "VITRINE_WEBHOOK_SECRET"},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
		Log:       Log{Level: "info"},
	}
}

// ensurePlatformAccount generates a platform fee account and records it in
// the config file.
func ensurePlatformAccount(configPath string, cfg *Config) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	cfg.Market.PlatformAccount = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := ensurePlatformAccount(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
