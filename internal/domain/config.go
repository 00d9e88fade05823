package domain

import "time"

// Config holds the complete Lendguard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Decision policy
	Scoring ScoringConfig `json:"scoring"`

	// Operator identity
	Auth AuthConfig `json:"auth"`

	// AsyncWorker enables evaluation of applications submitted on the bus.
	AsyncWorker bool `json:"asyncWorker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig holds the decision constants.
type ScoringConfig struct {
	// BaseScore is the starting score before penalties.
	BaseScore int `json:"baseScore"`

	// ApprovalThreshold is the minimum final score that is approved.
	ApprovalThreshold int `json:"approvalThreshold"`

	// MaterialityThreshold is the minimum penalty for a triggered rule to
	// produce a blacklist entry on rejection.
	MaterialityThreshold int `json:"materialityThreshold"`

	// BlacklistRiskLevel is the risk level written on derived entries.
	BlacklistRiskLevel int `json:"blacklistRiskLevel"`

	// SeedDefaultRules runs the idempotent default rule seed at startup.
	SeedDefaultRules bool `json:"seedDefaultRules"`
}

// AuthConfig holds operator token settings.
// When JWTSecret is empty operators are identified by the X-Operator header.
type AuthConfig struct {
	JWTSecret string        `json:"-"`
	Issuer    string        `json:"issuer"`
	TokenTTL  time.Duration `json:"tokenTtl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS/Kafka + Redis
	TierPro Tier = "pro"
)

// DefaultScoringConfig returns the standard decision policy.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BaseScore:            DefaultBaseScore,
		ApprovalThreshold:    DefaultApprovalThreshold,
		MaterialityThreshold: DefaultMaterialityThreshold,
		BlacklistRiskLevel:   MaxRiskLevel,
		SeedDefaultRules:     true,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:       "sqlite",
			SQLitePath:   "./lendguard.db",
			MaxOpenConns: 5,
			MaxIdleConns: 5,
			QueryTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			HitTTL:       time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: DefaultScoringConfig(),
		Auth: AuthConfig{
			Issuer:   "lendguard",
			TokenTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "lendguard",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "lendguard",
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    3 * time.Second,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
		HitTTL:         time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}
