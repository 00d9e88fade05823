package domain

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "LENDGUARD"

// LoadFromEnv overlays LENDGUARD_* environment variables, and the optional
// file named by LENDGUARD_CONFIG, onto cfg. Keys that are not set leave the
// corresponding field untouched.
func LoadFromEnv(cfg *Config) error {
	return loadFrom(newViper(), cfg)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func loadFrom(v *viper.Viper, cfg *Config) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	setString(v, "server.host", &cfg.Server.Host)
	setInt(v, "server.port", &cfg.Server.Port)
	setInt(v, "server.read_timeout", &cfg.Server.ReadTimeout)
	setInt(v, "server.write_timeout", &cfg.Server.WriteTimeout)

	if v.IsSet("async_worker") {
		cfg.AsyncWorker = v.GetBool("async_worker")
	}

	setString(v, "db.driver", &cfg.Repository.Driver)
	setString(v, "db.sqlite_path", &cfg.Repository.SQLitePath)
	setString(v, "db.host", &cfg.Repository.PostgresHost)
	setInt(v, "db.port", &cfg.Repository.PostgresPort)
	setString(v, "db.user", &cfg.Repository.PostgresUser)
	setString(v, "db.password", &cfg.Repository.PostgresPassword)
	setString(v, "db.name", &cfg.Repository.PostgresDB)
	setString(v, "db.sslmode", &cfg.Repository.PostgresSSLMode)
	setInt(v, "db.max_pool_size", &cfg.Repository.MaxOpenConns)
	setInt(v, "db.max_idle", &cfg.Repository.MaxIdleConns)
	if v.IsSet("db.query_timeout") {
		cfg.Repository.QueryTimeout = v.GetDuration("db.query_timeout")
	}

	setString(v, "cache.type", &cfg.Cache.Type)
	setString(v, "cache.redis_addr", &cfg.Cache.RedisAddr)
	setString(v, "cache.redis_password", &cfg.Cache.RedisPassword)
	setInt(v, "cache.redis_db", &cfg.Cache.RedisDB)
	if v.IsSet("cache.two_phase") {
		cfg.Cache.EnableTwoPhase = v.GetBool("cache.two_phase")
	}
	if v.IsSet("cache.hit_ttl") {
		cfg.Cache.HitTTL = v.GetDuration("cache.hit_ttl")
	}

	setString(v, "bus.type", &cfg.EventBus.Type)
	setString(v, "bus.nats_url", &cfg.EventBus.NATSUrl)
	setString(v, "bus.nats_token", &cfg.EventBus.NATSToken)
	if v.IsSet("bus.kafka_brokers") {
		cfg.EventBus.KafkaBrokers = splitList(v.GetString("bus.kafka_brokers"))
	}
	setString(v, "bus.kafka_group", &cfg.EventBus.KafkaGroupID)

	setInt(v, "scoring.base_score", &cfg.Scoring.BaseScore)
	setInt(v, "scoring.approval_threshold", &cfg.Scoring.ApprovalThreshold)
	setInt(v, "scoring.materiality_threshold", &cfg.Scoring.MaterialityThreshold)
	setInt(v, "scoring.blacklist_risk_level", &cfg.Scoring.BlacklistRiskLevel)
	if v.IsSet("scoring.seed_defaults") {
		cfg.Scoring.SeedDefaultRules = v.GetBool("scoring.seed_defaults")
	}

	setString(v, "auth.jwt_secret", &cfg.Auth.JWTSecret)
	setString(v, "auth.issuer", &cfg.Auth.Issuer)
	if v.IsSet("auth.token_ttl") {
		cfg.Auth.TokenTTL = v.GetDuration("auth.token_ttl")
	}

	setString(v, "log.level", &cfg.Logging.Level)
	setString(v, "log.format", &cfg.Logging.Format)
	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}
	if v.IsSet("tracing.enabled") {
		cfg.Tracing.Enabled = v.GetBool("tracing.enabled")
	}

	return cfg.Validate()
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", c.Repository.Driver)
	}
	if c.Scoring.BlacklistRiskLevel < 1 || c.Scoring.BlacklistRiskLevel > MaxRiskLevel {
		return fmt.Errorf("blacklist risk level must be 1..%d, got %d", MaxRiskLevel, c.Scoring.BlacklistRiskLevel)
	}
	if c.Repository.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
