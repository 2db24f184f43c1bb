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

// Flag and work task source modes.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
	SourceFixture  = "fixture"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Upstream   UpstreamConfig
	Flags      FlagsConfig
	HHD        HHDConfig
	AuditTrail AuditTrailConfig
}

type DatabaseConfig struct {
	Enabled      bool
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UpstreamConfig points at the WMS backend that owns flags and work tasks.
type UpstreamConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RetryMaxElapsed  time.Duration
	UserID           string
	WarehouseID      string
	MaxIdleConns     int
	MaxIdleConnsHost int
}

// FlagsConfig selects the flag source and the recovery cache behaviour.
type FlagsConfig struct {
	Source              string
	FallbackEnabled     bool
	SeedFixtures        bool
	RecoveryCacheEnable bool
	RecoveryCheckTTL    time.Duration
}

// HHDConfig selects where work tasks come from.
type HHDConfig struct {
	Source string
}

// AuditTrailConfig tunes the asynchronous audit log writer.
type AuditTrailConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Upstream = UpstreamConfig{
		BaseURL:          strings.TrimRight(v.GetString("UPSTREAM_BASE_URL"), "/"),
		Timeout:          parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 10*time.Second),
		RetryMaxElapsed:  parseDuration(v.GetString("UPSTREAM_RETRY_MAX_ELAPSED"), 5*time.Second),
		UserID:           v.GetString("UPSTREAM_USER_ID"),
		WarehouseID:      v.GetString("UPSTREAM_WAREHOUSE_ID"),
		MaxIdleConns:     v.GetInt("UPSTREAM_MAX_IDLE_CONNS"),
		MaxIdleConnsHost: v.GetInt("UPSTREAM_MAX_IDLE_CONNS_PER_HOST"),
	}

	cfg.Flags = FlagsConfig{
		Source:              normaliseSource(v.GetString("FLAG_SOURCE"), SourceFixture),
		FallbackEnabled:     v.GetBool("FLAG_FALLBACK_ENABLED"),
		SeedFixtures:        v.GetBool("FLAG_SEED_FIXTURES"),
		RecoveryCacheEnable: v.GetBool("ENABLE_RECOVERY_CACHE"),
		RecoveryCheckTTL:    parseDuration(v.GetString("RECOVERY_CHECK_TTL"), 15*time.Minute),
	}

	cfg.HHD = HHDConfig{
		Source: normaliseSource(v.GetString("HHD_SOURCE"), SourceFixture),
	}

	cfg.AuditTrail = AuditTrailConfig{
		Workers:    v.GetInt("AUDIT_TRAIL_WORKERS"),
		Retries:    v.GetInt("AUDIT_TRAIL_RETRIES"),
		RetryDelay: parseDuration(v.GetString("AUDIT_TRAIL_RETRY_DELAY"), time.Second),
	}

	if cfg.Flags.Source == SourcePostgres && !cfg.Database.Enabled {
		return nil, errors.New("FLAG_SOURCE=postgres requires DB_ENABLED=true")
	}
	if (cfg.Flags.Source == SourceHTTP || cfg.HHD.Source == SourceHTTP) && cfg.Upstream.BaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required for http sources")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "wms_audit")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPSTREAM_BASE_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("UPSTREAM_RETRY_MAX_ELAPSED", "5s")
	v.SetDefault("UPSTREAM_USER_ID", "101")
	v.SetDefault("UPSTREAM_WAREHOUSE_ID", "7")
	v.SetDefault("UPSTREAM_MAX_IDLE_CONNS", 100)
	v.SetDefault("UPSTREAM_MAX_IDLE_CONNS_PER_HOST", 10)

	v.SetDefault("FLAG_SOURCE", SourceFixture)
	v.SetDefault("FLAG_FALLBACK_ENABLED", true)
	v.SetDefault("FLAG_SEED_FIXTURES", false)
	v.SetDefault("ENABLE_RECOVERY_CACHE", false)
	v.SetDefault("RECOVERY_CHECK_TTL", "15m")

	v.SetDefault("HHD_SOURCE", SourceFixture)

	v.SetDefault("AUDIT_TRAIL_WORKERS", 1)
	v.SetDefault("AUDIT_TRAIL_RETRIES", 3)
	v.SetDefault("AUDIT_TRAIL_RETRY_DELAY", "1s")
}

func normaliseSource(raw, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SourceHTTP:
		return SourceHTTP
	case SourcePostgres:
		return SourcePostgres
	case SourceFixture:
		return SourceFixture
	default:
		return fallback
	}
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
