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
	Cache      CacheConfig
	Attendance AttendanceConfig
	Risk       RiskConfig
	Alternance AlternanceConfig
	Ingest     IngestConfig
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

// CacheConfig governs the read-model cache.
type CacheConfig struct {
	Enabled     bool
	ProgressTTL time.Duration
	AlertsTTL   time.Duration
}

// AttendanceConfig tunes attendance-rate computation.
type AttendanceConfig struct {
	// LateWeight is the present-equivalent credit for a Late record.
	LateWeight float64
}

// RiskConfig holds the weighted scoring model. Weights are explicit
// configuration so coordinators can audit and re-balance the model.
type RiskConfig struct {
	StagnationWeight   float64
	AttendanceWeight   float64
	VelocityWeight     float64
	CoordinationWeight float64

	// The alternance-specific model has its own weights: attendance,
	// company-side feedback and schedule drift.
	AlternanceAttendanceWeight float64
	AlternanceCompanyWeight    float64
	AlternanceDriftWeight      float64

	// StagnationLimitDays is the inactivity span that saturates the
	// stagnation factor at 1.0.
	StagnationLimitDays int
	// DropoutThreshold is the riskScore at which atRiskOfDropout flips.
	DropoutThreshold float64
	// SignalHalfLife controls coordination-signal decay.
	SignalHalfLife time.Duration
	// MaxSignalContribution bounds a single coordination event's pull.
	MaxSignalContribution float64
	// EngagementWindowDays is the lookback for activity frequency.
	EngagementWindowDays int
	// EngagementFrequencyBoost scales per-event frequency credit so a
	// student does not need an event every day to max the frequency half.
	EngagementFrequencyBoost float64

	// BatchHour is the local hour for the nightly recompute sweep.
	BatchHour int
}

// AlternanceConfig tunes calendar generation and drift detection.
type AlternanceConfig struct {
	// DriftTolerancePct is the allowed deviation between scheduled and
	// declared center/company share, in percentage points.
	DriftTolerancePct float64
	// DefaultWeekHours is assumed when a contract omits weekly hours.
	DefaultWeekHours float64
}

// IngestConfig sizes the partitioned ingestion worker pool.
type IngestConfig struct {
	Lanes          int
	LaneBuffer     int
	MaxRetries     int
	RetryDelay     time.Duration
	DebounceWindow time.Duration
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

	cfg.Cache = CacheConfig{
		Enabled:     v.GetBool("ENABLE_CACHE"),
		ProgressTTL: parseDuration(v.GetString("CACHE_PROGRESS_TTL"), 5*time.Minute),
		AlertsTTL:   parseDuration(v.GetString("CACHE_ALERTS_TTL"), 10*time.Minute),
	}

	cfg.Attendance = AttendanceConfig{
		LateWeight: v.GetFloat64("ATTENDANCE_LATE_WEIGHT"),
	}

	cfg.Risk = RiskConfig{
		StagnationWeight:           v.GetFloat64("RISK_WEIGHT_STAGNATION"),
		AttendanceWeight:           v.GetFloat64("RISK_WEIGHT_ATTENDANCE"),
		VelocityWeight:             v.GetFloat64("RISK_WEIGHT_VELOCITY"),
		CoordinationWeight:         v.GetFloat64("RISK_WEIGHT_COORDINATION"),
		AlternanceAttendanceWeight: v.GetFloat64("RISK_ALTERNANCE_WEIGHT_ATTENDANCE"),
		AlternanceCompanyWeight:    v.GetFloat64("RISK_ALTERNANCE_WEIGHT_COMPANY"),
		AlternanceDriftWeight:      v.GetFloat64("RISK_ALTERNANCE_WEIGHT_DRIFT"),
		StagnationLimitDays:        v.GetInt("RISK_STAGNATION_LIMIT_DAYS"),
		DropoutThreshold:           v.GetFloat64("RISK_DROPOUT_THRESHOLD"),
		SignalHalfLife:             parseDuration(v.GetString("RISK_SIGNAL_HALF_LIFE"), 60*24*time.Hour),
		MaxSignalContribution:      v.GetFloat64("RISK_MAX_SIGNAL_CONTRIBUTION"),
		EngagementWindowDays:       v.GetInt("RISK_ENGAGEMENT_WINDOW_DAYS"),
		EngagementFrequencyBoost:   v.GetFloat64("RISK_ENGAGEMENT_FREQUENCY_BOOST"),
		BatchHour:                  v.GetInt("RISK_BATCH_HOUR"),
	}

	cfg.Alternance = AlternanceConfig{
		DriftTolerancePct: v.GetFloat64("ALTERNANCE_DRIFT_TOLERANCE_PCT"),
		DefaultWeekHours:  v.GetFloat64("ALTERNANCE_DEFAULT_WEEK_HOURS"),
	}

	cfg.Ingest = IngestConfig{
		Lanes:          v.GetInt("INGEST_LANES"),
		LaneBuffer:     v.GetInt("INGEST_LANE_BUFFER"),
		MaxRetries:     v.GetInt("INGEST_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("INGEST_RETRY_DELAY"), time.Second),
		DebounceWindow: parseDuration(v.GetString("INGEST_DEBOUNCE_WINDOW"), time.Minute),
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
	v.SetDefault("DB_NAME", "progression")
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

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_PROGRESS_TTL", "5m")
	v.SetDefault("CACHE_ALERTS_TTL", "10m")

	v.SetDefault("ATTENDANCE_LATE_WEIGHT", 0.8)

	v.SetDefault("RISK_WEIGHT_STAGNATION", 0.3)
	v.SetDefault("RISK_WEIGHT_ATTENDANCE", 0.25)
	v.SetDefault("RISK_WEIGHT_VELOCITY", 0.3)
	v.SetDefault("RISK_WEIGHT_COORDINATION", 0.15)
	v.SetDefault("RISK_ALTERNANCE_WEIGHT_ATTENDANCE", 0.5)
	v.SetDefault("RISK_ALTERNANCE_WEIGHT_COMPANY", 0.3)
	v.SetDefault("RISK_ALTERNANCE_WEIGHT_DRIFT", 0.2)
	v.SetDefault("RISK_STAGNATION_LIMIT_DAYS", 30)
	v.SetDefault("RISK_DROPOUT_THRESHOLD", 70)
	v.SetDefault("RISK_SIGNAL_HALF_LIFE", "1440h")
	v.SetDefault("RISK_MAX_SIGNAL_CONTRIBUTION", 0.25)
	v.SetDefault("RISK_ENGAGEMENT_WINDOW_DAYS", 30)
	v.SetDefault("RISK_ENGAGEMENT_FREQUENCY_BOOST", 6)
	v.SetDefault("RISK_BATCH_HOUR", 2)

	v.SetDefault("ALTERNANCE_DRIFT_TOLERANCE_PCT", 5)
	v.SetDefault("ALTERNANCE_DEFAULT_WEEK_HOURS", 35)

	v.SetDefault("INGEST_LANES", 8)
	v.SetDefault("INGEST_LANE_BUFFER", 64)
	v.SetDefault("INGEST_MAX_RETRIES", 3)
	v.SetDefault("INGEST_RETRY_DELAY", "1s")
	v.SetDefault("INGEST_DEBOUNCE_WINDOW", "1m")
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
