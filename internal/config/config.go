package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// globalConfig stores the configuration loaded with command-line overrides
// so other packages can access the same configuration the server loaded.
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Animations AnimationsConfig `json:"animations"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	Host          string
	Port          string
	LogLevel      string
	AnimationsDir string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// AnimationsConfig holds animation-library configuration
type AnimationsConfig struct {
	Dir           string `json:"dir" env:"ANIMATIONS_DIR" default:"./animations"`
	MaxFileSizeMB int    `json:"maxFileSizeMB" env:"ANIMATIONS_MAX_FILE_SIZE_MB" default:"64"`
	MaxFrameRate  int    `json:"maxFrameRate" env:"ANIMATIONS_MAX_FRAME_RATE" default:"60"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins     []string `json:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxConnections     int      `json:"maxConnections" env:"MAX_CONNECTIONS" default:"100"`
	EnableRateLimit    bool     `json:"enableRateLimit" env:"ENABLE_RATE_LIMIT" default:"true"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE" default:"60"`
	EnableTLS          bool     `json:"enableTLS" env:"ENABLE_TLS" default:"false"`
	TLSCertFile        string   `json:"tlsCertFile" env:"TLS_CERT_FILE" default:""`
	TLSKeyFile         string   `json:"tlsKeyFile" env:"TLS_KEY_FILE" default:""`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := &Config{}

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", "0.0.0.0")
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", "8080")
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)

	// Animations config
	config.Animations.Dir = getOverrideOrEnv(opts.AnimationsDir, "ANIMATIONS_DIR", "./animations")
	config.Animations.MaxFileSizeMB = getIntWithDefault("ANIMATIONS_MAX_FILE_SIZE_MB", 64)
	config.Animations.MaxFrameRate = getIntWithDefault("ANIMATIONS_MAX_FRAME_RATE", 60)

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", []string{})
	config.Security.MaxConnections = getIntWithDefault("MAX_CONNECTIONS", 100)
	config.Security.EnableRateLimit = getBoolWithDefault("ENABLE_RATE_LIMIT", true)
	config.Security.RateLimitPerMinute = getIntWithDefault("RATE_LIMIT_PER_MINUTE", 60)
	config.Security.EnableTLS = getBoolWithDefault("ENABLE_TLS", false)
	config.Security.TLSCertFile = getEnvWithDefault("TLS_CERT_FILE", "")
	config.Security.TLSKeyFile = getEnvWithDefault("TLS_KEY_FILE", "")

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the globally stored configuration loaded by the
// server with command-line overrides.
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Animations.Dir == "" {
		return fmt.Errorf("animations directory cannot be empty")
	}

	if c.Animations.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max file size must be positive")
	}

	if c.Animations.MaxFrameRate <= 0 {
		return fmt.Errorf("max frame rate must be positive")
	}

	if c.Security.EnableTLS {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS certificate and key files must be specified when TLS is enabled")
		}

		if _, err := os.Stat(c.Security.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", c.Security.TLSCertFile)
		}

		if _, err := os.Stat(c.Security.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", c.Security.TLSKeyFile)
		}
	}

	if c.Security.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}

	if c.Security.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// Helper functions for environment variable parsing

func getOverrideOrEnv(override, key, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(key, defaultValue)
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
