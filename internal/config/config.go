// backend-go/internal/config/config.go
package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Forecast ForecastConfig
	Policy   PolicyConfig
	Accuracy AccuracyConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int `validate:"gte=0"`
	WriteTimeout   int `validate:"gte=0"`
	AllowedOrigins []string
}

type LogConfig struct {
	Format string `validate:"oneof=console json"`
	Level  string
}

type DatabaseConfig struct {
	Driver                string `validate:"oneof=postgres pgx memory"`
	Host                  string
	Port                  string
	User                  string
	Password              string
	DBName                string
	SSLMode               string
	ConnectTimeoutSeconds int `validate:"gte=0"`
}

type CacheConfig struct {
	Enabled                bool
	RedisURL               string
	RedisHost              string
	RedisPort              string
	RedisPassword          string
	RedisDB                int
	ResultTTLSeconds       int `validate:"gt=0"`
	CoalesceTimeoutSeconds int `validate:"gte=0"`
	Shards                 int `validate:"gte=1,lte=1024"`
}

// ForecastConfig selects the forecasting model and its tuning constants.
type ForecastConfig struct {
	Model                     string  `validate:"oneof=naive linear seasonal"`
	ModelVersion              string  `validate:"required"`
	DefaultBaseRate           float64 `validate:"gte=0"`
	NaiveConfidence           float64 `validate:"gte=0,lte=1"`
	MaxConfidence             float64 `validate:"gte=0,lte=1"`
	TrendHorizonDays          float64 `validate:"gte=0"`
	SeasonalFullCoverageWeeks float64 `validate:"gt=0"`
	SeasonalMinWeight         float64 `validate:"gte=0,lte=1"`
	HistoryWindowDays         int     `validate:"gte=1"`
}

// PolicyConfig holds the safety margin table and the risk threshold table.
type PolicyConfig struct {
	SafetyMargin              float64 `validate:"gte=0"`
	HighCompetitionMargin     float64 `validate:"gte=0"`
	PoorInfrastructureMargin  float64 `validate:"gte=0"`
	HighRiskConfidenceBelow   float64 `validate:"gte=0,lte=1"`
	MediumRiskConfidenceBelow float64 `validate:"gte=0,lte=1,gtefield=HighRiskConfidenceBelow"`
}

type AccuracyConfig struct {
	Window                 int     `validate:"gte=1"`
	DefaultModelAccuracy   float64 `validate:"gte=0,lte=1"`
	ReconcileWorkers       int     `validate:"gte=1"`
	ReconcileRatePerSecond float64 `validate:"gte=0"`
	ReconcileIntervalMins  int     `validate:"gte=1"`
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// Load reads the process configuration once from .env and the environment.
func Load() (*Config, error) {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		SetDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance, loadErr = FromViper(v)
	})

	return instance, loadErr
}

// SetDefaults registers the default value of every known key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "stoforecast")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_CONNECT_TIMEOUT_SECONDS", 30)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_RESULT_TTL_SECONDS", 3600)
	v.SetDefault("CACHE_COALESCE_TIMEOUT_SECONDS", 30)
	v.SetDefault("CACHE_SHARDS", 32)
	v.SetDefault("FORECAST_MODEL", "linear")
	v.SetDefault("FORECAST_MODEL_VERSION", "1.0.0")
	v.SetDefault("FORECAST_DEFAULT_BASE_RATE", 4.0)
	v.SetDefault("FORECAST_NAIVE_CONFIDENCE", 0.5)
	v.SetDefault("FORECAST_MAX_CONFIDENCE", 0.95)
	v.SetDefault("FORECAST_TREND_HORIZON_DAYS", 1.0)
	v.SetDefault("FORECAST_SEASONAL_FULL_COVERAGE_WEEKS", 4.0)
	v.SetDefault("FORECAST_SEASONAL_MIN_WEIGHT", 0.5)
	v.SetDefault("FORECAST_HISTORY_WINDOW_DAYS", 90)
	v.SetDefault("POLICY_SAFETY_MARGIN", 0.2)
	v.SetDefault("POLICY_HIGH_COMPETITION_MARGIN", 0.1)
	v.SetDefault("POLICY_POOR_INFRASTRUCTURE_MARGIN", 0.1)
	v.SetDefault("POLICY_HIGH_RISK_CONFIDENCE", 0.6)
	v.SetDefault("POLICY_MEDIUM_RISK_CONFIDENCE", 0.85)
	v.SetDefault("ACCURACY_WINDOW", 30)
	v.SetDefault("ACCURACY_DEFAULT_MODEL_ACCURACY", 0.94)
	v.SetDefault("RECONCILE_WORKERS", 4)
	v.SetDefault("RECONCILE_RATE_PER_SECOND", 20.0)
	v.SetDefault("RECONCILE_INTERVAL_MINUTES", 60)
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
}

// FromViper builds and validates a Config from the keys set on v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Format: v.GetString("LOG_FORMAT"),
			Level:  v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Driver:                v.GetString("DB_DRIVER"),
			Host:                  v.GetString("DB_HOST"),
			Port:                  v.GetString("DB_PORT"),
			User:                  v.GetString("DB_USER"),
			Password:              v.GetString("DB_PASSWORD"),
			DBName:                v.GetString("DB_NAME"),
			SSLMode:               v.GetString("DB_SSLMODE"),
			ConnectTimeoutSeconds: v.GetInt("DB_CONNECT_TIMEOUT_SECONDS"),
		},
		Cache: CacheConfig{
			Enabled:                v.GetBool("CACHE_ENABLED"),
			RedisURL:               v.GetString("REDIS_URL"),
			RedisHost:              v.GetString("REDIS_HOST"),
			RedisPort:              v.GetString("REDIS_PORT"),
			RedisPassword:          v.GetString("REDIS_PASSWORD"),
			RedisDB:                v.GetInt("REDIS_DB"),
			ResultTTLSeconds:       v.GetInt("CACHE_RESULT_TTL_SECONDS"),
			CoalesceTimeoutSeconds: v.GetInt("CACHE_COALESCE_TIMEOUT_SECONDS"),
			Shards:                 v.GetInt("CACHE_SHARDS"),
		},
		Forecast: ForecastConfig{
			Model:                     v.GetString("FORECAST_MODEL"),
			ModelVersion:              v.GetString("FORECAST_MODEL_VERSION"),
			DefaultBaseRate:           v.GetFloat64("FORECAST_DEFAULT_BASE_RATE"),
			NaiveConfidence:           v.GetFloat64("FORECAST_NAIVE_CONFIDENCE"),
			MaxConfidence:             v.GetFloat64("FORECAST_MAX_CONFIDENCE"),
			TrendHorizonDays:          v.GetFloat64("FORECAST_TREND_HORIZON_DAYS"),
			SeasonalFullCoverageWeeks: v.GetFloat64("FORECAST_SEASONAL_FULL_COVERAGE_WEEKS"),
			SeasonalMinWeight:         v.GetFloat64("FORECAST_SEASONAL_MIN_WEIGHT"),
			HistoryWindowDays:         v.GetInt("FORECAST_HISTORY_WINDOW_DAYS"),
		},
		Policy: PolicyConfig{
			SafetyMargin:              v.GetFloat64("POLICY_SAFETY_MARGIN"),
			HighCompetitionMargin:     v.GetFloat64("POLICY_HIGH_COMPETITION_MARGIN"),
			PoorInfrastructureMargin:  v.GetFloat64("POLICY_POOR_INFRASTRUCTURE_MARGIN"),
			HighRiskConfidenceBelow:   v.GetFloat64("POLICY_HIGH_RISK_CONFIDENCE"),
			MediumRiskConfidenceBelow: v.GetFloat64("POLICY_MEDIUM_RISK_CONFIDENCE"),
		},
		Accuracy: AccuracyConfig{
			Window:                 v.GetInt("ACCURACY_WINDOW"),
			DefaultModelAccuracy:   v.GetFloat64("ACCURACY_DEFAULT_MODEL_ACCURACY"),
			ReconcileWorkers:       v.GetInt("RECONCILE_WORKERS"),
			ReconcileRatePerSecond: v.GetFloat64("RECONCILE_RATE_PER_SECOND"),
			ReconcileIntervalMins:  v.GetInt("RECONCILE_INTERVAL_MINUTES"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults are invalid: %v", err))
	}
	return cfg
}

// Validate checks every group against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
