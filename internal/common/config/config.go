package config

import (
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// GatewayConfig is the root configuration of the realtime gateway.
	GatewayConfig struct {
		Server  ServerConfig  `yaml:"server"`
		Logger  LoggerConfig  `yaml:"logger"`
		Session SessionConfig `yaml:"session"`
		AI      AIConfig      `yaml:"ai"`
		I18n    I18nConfig    `yaml:"i18n"`
		Metrics MetricsConfig `yaml:"metrics"`
	}

	// ServerConfig holds the shared HTTP listener settings.
	ServerConfig struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	}

	// SessionConfig describes how the session validator reaches the
	// platform session store.
	SessionConfig struct {
		Type  string             `yaml:"type"`  // "memory" or "redis"
		Redis SessionRedisConfig `yaml:"redis"` // Redis configuration
	}

	// SessionRedisConfig represents the Redis connection for session lookups
	SessionRedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"` // key prefix, default "session:"
	}

	// AIConfig configures the upstream chat-completion provider.
	AIConfig struct {
		BaseURL    string        `yaml:"base_url"`
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model"`
		Timeout    time.Duration `yaml:"timeout"`     // per-request timeout, streaming included
		MaxHistory int           `yaml:"max_history"` // history turns forwarded upstream
	}

	// I18nConfig points at the locale resource directory.
	I18nConfig struct {
		Path        string `yaml:"path"`
		DefaultLang string `yaml:"default_lang"`
	}

	// MetricsConfig configures the Prometheus registry.
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(path string) (*GatewayConfig, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *GatewayConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3500
	}
	if cfg.Session.Type == "" {
		cfg.Session.Type = "memory"
	}
	if cfg.Session.Redis.Prefix == "" {
		cfg.Session.Redis.Prefix = "session:"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "openai"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxHistory <= 0 {
		cfg.AI.MaxHistory = 10
	}
	if cfg.I18n.Path == "" {
		cfg.I18n.Path = "configs/i18n"
	}
	if cfg.I18n.DefaultLang == "" {
		cfg.I18n.DefaultLang = "en"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "yektayar_gateway"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
