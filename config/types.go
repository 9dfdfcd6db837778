package config

// Market captures the marketplace economics and aggregate tuning.
type Market struct {
	PlatformAccount          string `toml:"PlatformAccount"`
	PlatformFeeBps           uint32 `toml:"PlatformFeeBps"`
	PromoterThreshold        uint64 `toml:"PromoterThreshold"`
	SellerThreshold          uint64 `toml:"SellerThreshold"`
	SaleReputationReward     int64  `toml:"SaleReputationReward"`
	BaseReputation           uint64 `toml:"BaseReputation"`
	RegistrationBonus        uint64 `toml:"RegistrationBonus"`
	AttributionWindowSeconds uint64 `toml:"AttributionWindowSeconds"`
	LockTimeoutMillis        uint64 `toml:"LockTimeoutMillis"`
	SnapshotIntervalSeconds  uint64 `toml:"SnapshotIntervalSeconds"`
	SnapshotRetention        int    `toml:"SnapshotRetention"`
	// StrictRail requires buyers to be funded on the in-process rail.
	StrictRail bool `toml:"StrictRail"`
}

// Pauses toggles individual modules off without a restart of the process
// configuration.
type Pauses struct {
	Identity  bool
	Catalog   bool
	Market    bool
	Affiliate bool
	Ledger    bool
}

// Auth configures bearer token verification for RPC callers.
type Auth struct {
	HMACSecretEnv string `toml:"HMACSecretEnv"`
	Issuer        string `toml:"Issuer"`
	Audience      string `toml:"Audience"`
	AdminScope    string `toml:"AdminScope"`
	// Optional disables authentication entirely; intended for local use.
	Optional bool `toml:"Optional"`
}

// RateLimit bounds requests per client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// ContentStore selects the persona and metadata storage backend.
type ContentStore struct {
	Backend         string `toml:"Backend"`
	Path            string `toml:"Path"`
	GatewayURL      string `toml:"GatewayURL"`
	Territory       string `toml:"Territory"`
	Account         string `toml:"Account"`
	CacheTTLSeconds uint64 `toml:"CacheTTLSeconds"`
	CacheEntries    int    `toml:"CacheEntries"`
}

// Audit configures the relational audit trail. An empty DSN disables it.
type Audit struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Webhook configures outbound event deliveries. An empty URL disables them.
type Webhook struct {
	URL       string   `toml:"URL"`
	SecretEnv string   `toml:"SecretEnv"`
	Topics    []string `toml:"Topics"`
	// RateLimitPerMinute caps deliveries per event type; zero is unlimited.
	RateLimitPerMinute int `toml:"RateLimitPerMinute"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Log configures structured log output.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}
