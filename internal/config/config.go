package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Geolocation service
	ServiceURL     string        `json:"service_url" validate:"required,url"`
	ConnectTimeout time.Duration `json:"connect_timeout" validate:"gt=0"`
	ReadTimeout    time.Duration `json:"read_timeout" validate:"gt=0"`

	// Output and logging
	OutputFormat string `json:"output_format" validate:"oneof=text json"`
	LogLevel     string `json:"log_level"`

	// HTTP front end
	Port      int  `json:"port" validate:"min=1,max=65535"`
	HTTPSPort int  `json:"https_port" validate:"min=1,max=65535"`
	EnableTLS bool `json:"enable_tls"`

	// TLS configuration
	CertFile      string `json:"cert_file"`
	KeyFile       string `json:"key_file"`
	CertPath      string `json:"cert_path"`
	CertHosts     string `json:"cert_hosts"`
	CertValidDays int    `json:"cert_valid_days" validate:"min=1"`
	GenerateCerts bool   `json:"generate_certs"`

	// Public IP watcher
	WatchSchedule string `json:"watch_schedule" validate:"required"`
}

// LoadConfig loads configuration from environment variables, reading a .env
// file in the working directory first when one exists
func LoadConfig() *Config {
	// Variables already set in the environment take precedence over .env
	_ = godotenv.Load()

	return &Config{
		ServiceURL:     getEnvStr("SERVICE_URL", "http://ip-api.com/json/"),
		ConnectTimeout: getEnvDuration("CONNECT_TIMEOUT", 5*time.Second),
		ReadTimeout:    getEnvDuration("READ_TIMEOUT", 10*time.Second),
		OutputFormat:   getEnvStr("OUTPUT_FORMAT", "text"),
		LogLevel:       getEnvStr("LOG_LEVEL", "info"),
		Port:           getEnvInt("HTTP_PORT", 8080),
		HTTPSPort:      getEnvInt("HTTPS_PORT", 8443),
		EnableTLS:      getEnvBool("ENABLE_TLS", false),
		CertFile:       getEnvStr("CERT_FILE", ""),
		KeyFile:        getEnvStr("KEY_FILE", ""),
		CertPath:       getEnvStr("CERT_PATH", "./certs"),
		CertHosts:      getEnvStr("CERT_HOSTS", "localhost,127.0.0.1"),
		CertValidDays:  getEnvInt("CERT_VALID_DAYS", 365),
		GenerateCerts:  getEnvBool("GENERATE_CERTS", false),
		WatchSchedule:  getEnvStr("WATCH_SCHEDULE", "@every 5m"),
	}
}

// Validate checks field constraints declared in the struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// getEnvStr gets string value from environment variable with default
func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets integer value from environment variable with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets boolean value from environment variable with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets duration value from environment variable with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
