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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Actor      ActorConfig
	Compliance ComplianceConfig
	Solver     SolverConfig
	Swap       SwapConfig
	Batch      BatchConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ActorConfig governs how the pre-authenticated actor identity is read.
// The service performs no authentication itself; the upstream gateway signs
// the token this service merely decodes.
type ActorConfig struct {
	TokenSecret string
	Header      string
}

// ComplianceConfig holds the default duty-hour thresholds. The live values
// are data (constraint configuration rows) and hot-reloadable; these seed
// the engine when no row overrides them.
type ComplianceConfig struct {
	WeeklyHourCeiling float64
	AveragingWeeks    int
	CacheTTL          time.Duration
}

// SolverConfig bounds solver runs.
type SolverConfig struct {
	DefaultTimeout     time.Duration
	NodeBudget         int
	HeuristicThreshold int
}

// SwapConfig governs the swap subsystem.
type SwapConfig struct {
	RollbackWindow time.Duration
	MatchLimit     int
}

// BatchConfig bounds bulk mutation and sweep behaviour.
type BatchConfig struct {
	MaxSize      int
	SweepWorkers int
	SweepRetries int
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Actor = ActorConfig{
		TokenSecret: v.GetString("ACTOR_TOKEN_SECRET"),
		Header:      v.GetString("ACTOR_HEADER"),
	}

	cfg.Compliance = ComplianceConfig{
		WeeklyHourCeiling: v.GetFloat64("COMPLIANCE_WEEKLY_HOUR_CEILING"),
		AveragingWeeks:    v.GetInt("COMPLIANCE_AVERAGING_WEEKS"),
		CacheTTL:          parseDuration(v.GetString("COMPLIANCE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Solver = SolverConfig{
		DefaultTimeout:     parseDuration(v.GetString("SOLVER_DEFAULT_TIMEOUT"), 30*time.Second),
		NodeBudget:         v.GetInt("SOLVER_NODE_BUDGET"),
		HeuristicThreshold: v.GetInt("SOLVER_HEURISTIC_THRESHOLD"),
	}

	cfg.Swap = SwapConfig{
		RollbackWindow: parseDuration(v.GetString("SWAP_ROLLBACK_WINDOW"), 24*time.Hour),
		MatchLimit:     v.GetInt("SWAP_MATCH_LIMIT"),
	}

	cfg.Batch = BatchConfig{
		MaxSize:      v.GetInt("BATCH_MAX_SIZE"),
		SweepWorkers: v.GetInt("BATCH_SWEEP_WORKERS"),
		SweepRetries: v.GetInt("BATCH_SWEEP_RETRIES"),
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
	v.SetDefault("DB_NAME", "clinrota")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ACTOR_TOKEN_SECRET", "dev_secret")
	v.SetDefault("ACTOR_HEADER", "X-Actor-ID")

	v.SetDefault("COMPLIANCE_WEEKLY_HOUR_CEILING", 80.0)
	v.SetDefault("COMPLIANCE_AVERAGING_WEEKS", 4)
	v.SetDefault("COMPLIANCE_CACHE_TTL", "5m")

	v.SetDefault("SOLVER_DEFAULT_TIMEOUT", "30s")
	v.SetDefault("SOLVER_NODE_BUDGET", 2_000_000)
	v.SetDefault("SOLVER_HEURISTIC_THRESHOLD", 5000)

	v.SetDefault("SWAP_ROLLBACK_WINDOW", "24h")
	v.SetDefault("SWAP_MATCH_LIMIT", 10)

	v.SetDefault("BATCH_MAX_SIZE", 1000)
	v.SetDefault("BATCH_SWEEP_WORKERS", 4)
	v.SetDefault("BATCH_SWEEP_RETRIES", 1)
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
