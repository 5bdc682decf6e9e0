package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Read strategies supported by the analytics engine.
const (
	StrategyLiveOnly          = "live_only"
	StrategyAggregateFallback = "aggregate_fallback"
	StrategyShadowCompare     = "shadow_compare"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
	Analytics AnalyticsConfig
	Backfill  BackfillConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig holds the platform JWT verification key and the ops token hash
// guarding the backfill trigger.
type AuthConfig struct {
	JWTSecret    string
	OpsTokenHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnalyticsConfig governs the read path of the metric engine.
type AnalyticsConfig struct {
	ReadStrategy        string
	CacheEnabled        bool
	CacheTTL            time.Duration
	ComplianceGraceDays int
}

// BackfillConfig bounds asynchronous aggregate recomputation.
type BackfillConfig struct {
	MaxRangeDays int
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// ExportsConfig toggles report downloads.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:    v.GetString("JWT_SECRET"),
		OpsTokenHash: v.GetString("OPS_TOKEN_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Analytics = AnalyticsConfig{
		ReadStrategy:        normaliseStrategy(v.GetString("READ_STRATEGY")),
		CacheEnabled:        v.GetBool("ANALYTICS_CACHE_ENABLED"),
		CacheTTL:            parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		ComplianceGraceDays: v.GetInt("COMPLIANCE_GRACE_DAYS"),
	}
	if cfg.Analytics.ComplianceGraceDays < 0 {
		cfg.Analytics.ComplianceGraceDays = 0
	}

	cfg.Backfill = BackfillConfig{
		MaxRangeDays: v.GetInt("BACKFILL_MAX_RANGE_DAYS"),
		Workers:      v.GetInt("BACKFILL_WORKERS"),
		QueueSize:    v.GetInt("BACKFILL_QUEUE_SIZE"),
		MaxRetries:   v.GetInt("BACKFILL_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("BACKFILL_RETRY_DELAY"), 5*time.Second),
	}
	if cfg.Backfill.MaxRangeDays <= 0 {
		cfg.Backfill.MaxRangeDays = 90
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pulse_metrics")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("OPS_TOKEN_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("READ_STRATEGY", StrategyLiveOnly)
	v.SetDefault("ANALYTICS_CACHE_ENABLED", false)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("COMPLIANCE_GRACE_DAYS", 0)

	v.SetDefault("BACKFILL_MAX_RANGE_DAYS", 90)
	v.SetDefault("BACKFILL_WORKERS", 1)
	v.SetDefault("BACKFILL_QUEUE_SIZE", 16)
	v.SetDefault("BACKFILL_MAX_RETRIES", 3)
	v.SetDefault("BACKFILL_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_EXPORTS", false)
}

func normaliseStrategy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StrategyAggregateFallback:
		return StrategyAggregateFallback
	case StrategyShadowCompare:
		return StrategyShadowCompare
	default:
		return StrategyLiveOnly
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
