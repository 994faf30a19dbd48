package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	LogLevel                  string        `mapstructure:"LOG_LEVEL"`
	WebPort                   int           `mapstructure:"WEB_PORT"`
	DatabaseURL               string        `mapstructure:"DATABASE_URL"`
	BackendLLMHost            string        `mapstructure:"BACKEND_LLM_HOST"`
	BackendModel              string        `mapstructure:"BACKEND_MODEL"`
	MaxRetries                int           `mapstructure:"MAX_RETRIES"`
	RetryDelaySeconds         time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	LLMRequestTimeout         time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`
	MessageChunkLimit         int           `mapstructure:"MESSAGE_CHUNK_LIMIT"`
	CacheFile                 string        `mapstructure:"CACHE_FILE"`
	CacheMaxSize              int           `mapstructure:"CACHE_MAX_SIZE"`
	CacheHighWater            int           `mapstructure:"CACHE_HIGH_WATER"`
	CacheTargetSize           int           `mapstructure:"CACHE_TARGET_SIZE"`
	CacheSimilarityThreshold  float64       `mapstructure:"CACHE_SIMILARITY_THRESHOLD"`
	CacheStalenessAge         time.Duration `mapstructure:"CACHE_STALENESS_DAYS"`
	CacheFastPathSize         int           `mapstructure:"CACHE_FASTPATH_SIZE"`
	CacheMaxQuestionLength    int           `mapstructure:"CACHE_MAX_QUESTION_LENGTH"`
	CacheDuplicateWindow      time.Duration `mapstructure:"CACHE_DUPLICATE_WINDOW_SECONDS"`
	MaintenanceInterval       time.Duration `mapstructure:"MAINTENANCE_INTERVAL_SECONDS"`
	FlushMinInterval          time.Duration `mapstructure:"FLUSH_MIN_INTERVAL_SECONDS"`
	ReminderPollInterval      time.Duration `mapstructure:"REMINDER_POLL_INTERVAL_SECONDS"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // For running locally
	viper.AddConfigPath("../")      // For running from docker subdir
	viper.AddConfigPath("./config") // Common config folder
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("WEB_PORT", 8090)
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("BACKEND_LLM_HOST", "http://localhost:8080")
	viper.SetDefault("BACKEND_MODEL", "sonar")
	viper.SetDefault("MAX_RETRIES", 5)
	viper.SetDefault("RETRY_DELAY_SECONDS", 2)
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 120)
	viper.SetDefault("MESSAGE_CHUNK_LIMIT", 2000)
	viper.SetDefault("CACHE_FILE", "data/question_cache.json")
	viper.SetDefault("CACHE_MAX_SIZE", 1000)
	viper.SetDefault("CACHE_HIGH_WATER", 900)
	viper.SetDefault("CACHE_TARGET_SIZE", 700)
	viper.SetDefault("CACHE_SIMILARITY_THRESHOLD", 0.85)
	viper.SetDefault("CACHE_STALENESS_DAYS", 30)
	viper.SetDefault("CACHE_FASTPATH_SIZE", 128)
	viper.SetDefault("CACHE_MAX_QUESTION_LENGTH", 2000)
	viper.SetDefault("CACHE_DUPLICATE_WINDOW_SECONDS", 5)
	viper.SetDefault("MAINTENANCE_INTERVAL_SECONDS", 60)
	viper.SetDefault("FLUSH_MIN_INTERVAL_SECONDS", 10)
	viper.SetDefault("REMINDER_POLL_INTERVAL_SECONDS", 30)

	if err := viper.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			// Fallback if logger not available (should not happen in practice)
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	config.BackendLLMHost = strings.TrimSpace(config.BackendLLMHost)

	// Keep the eviction thresholds coherent: target < high water <= max.
	if config.CacheHighWater > config.CacheMaxSize {
		config.CacheHighWater = config.CacheMaxSize
	}
	if config.CacheTargetSize >= config.CacheHighWater {
		config.CacheTargetSize = config.CacheHighWater * 3 / 4
	}

	// Convert seconds/days to proper time.Duration
	config.RetryDelaySeconds = config.RetryDelaySeconds * time.Second
	config.LLMRequestTimeout = config.LLMRequestTimeout * time.Second
	config.CacheStalenessAge = config.CacheStalenessAge * 24 * time.Hour
	config.CacheDuplicateWindow = config.CacheDuplicateWindow * time.Second
	config.MaintenanceInterval = config.MaintenanceInterval * time.Second
	config.FlushMinInterval = config.FlushMinInterval * time.Second
	config.ReminderPollInterval = config.ReminderPollInterval * time.Second

	return &config
}
