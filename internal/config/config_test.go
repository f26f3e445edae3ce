package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnvVars()

	cfg := LoadConfig()

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"ServiceURL", cfg.ServiceURL, "http://ip-api.com/json/"},
		{"ConnectTimeout", cfg.ConnectTimeout, 5 * time.Second},
		{"ReadTimeout", cfg.ReadTimeout, 10 * time.Second},
		{"OutputFormat", cfg.OutputFormat, "text"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Port", cfg.Port, 8080},
		{"HTTPSPort", cfg.HTTPSPort, 8443},
		{"EnableTLS", cfg.EnableTLS, false},
		{"CertFile", cfg.CertFile, ""},
		{"KeyFile", cfg.KeyFile, ""},
		{"CertPath", cfg.CertPath, "./certs"},
		{"CertHosts", cfg.CertHosts, "localhost,127.0.0.1"},
		{"CertValidDays", cfg.CertValidDays, 365},
		{"GenerateCerts", cfg.GenerateCerts, false},
		{"WatchSchedule", cfg.WatchSchedule, "@every 5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("Expected %s to be %v, got %v", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration should be valid: %v", err)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	clearConfigEnvVars()

	envVars := map[string]string{
		"SERVICE_URL":     "http://localhost:9999/json/",
		"CONNECT_TIMEOUT": "2s",
		"READ_TIMEOUT":    "3s",
		"OUTPUT_FORMAT":   "json",
		"LOG_LEVEL":       "debug",
		"HTTP_PORT":       "9090",
		"HTTPS_PORT":      "9443",
		"ENABLE_TLS":      "true",
		"CERT_FILE":       "/custom/cert.pem",
		"KEY_FILE":        "/custom/key.pem",
		"CERT_PATH":       "/custom/certs",
		"CERT_HOSTS":      "example.com,192.168.1.1",
		"CERT_VALID_DAYS": "30",
		"GENERATE_CERTS":  "true",
		"WATCH_SCHEDULE":  "@every 1m",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg := LoadConfig()

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"ServiceURL", cfg.ServiceURL, "http://localhost:9999/json/"},
		{"ConnectTimeout", cfg.ConnectTimeout, 2 * time.Second},
		{"ReadTimeout", cfg.ReadTimeout, 3 * time.Second},
		{"OutputFormat", cfg.OutputFormat, "json"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"Port", cfg.Port, 9090},
		{"HTTPSPort", cfg.HTTPSPort, 9443},
		{"EnableTLS", cfg.EnableTLS, true},
		{"CertFile", cfg.CertFile, "/custom/cert.pem"},
		{"KeyFile", cfg.KeyFile, "/custom/key.pem"},
		{"CertPath", cfg.CertPath, "/custom/certs"},
		{"CertHosts", cfg.CertHosts, "example.com,192.168.1.1"},
		{"CertValidDays", cfg.CertValidDays, 30},
		{"GenerateCerts", cfg.GenerateCerts, true},
		{"WatchSchedule", cfg.WatchSchedule, "@every 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("Expected %s to be %v, got %v", tt.name, tt.expected, tt.actual)
			}
		})
	}
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	clearConfigEnvVars()

	dir := t.TempDir()
	content := "SERVICE_URL=http://localhost:9000/json/\nREAD_TIMEOUT=7s\nOUTPUT_FORMAT=json\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write .env file: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	defer func() {
		_ = os.Chdir(wd)
		clearConfigEnvVars()
	}()

	// Explicit environment wins over the file
	t.Setenv("OUTPUT_FORMAT", "text")

	cfg := LoadConfig()

	if cfg.ServiceURL != "http://localhost:9000/json/" {
		t.Errorf("Expected ServiceURL from .env, got %q", cfg.ServiceURL)
	}
	if cfg.ReadTimeout != 7*time.Second {
		t.Errorf("Expected ReadTimeout from .env to be 7s, got %v", cfg.ReadTimeout)
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("Expected environment to override .env, got %q", cfg.OutputFormat)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantError string
	}{
		{"Valid defaults", func(cfg *Config) {}, ""},
		{"Missing service URL", func(cfg *Config) { cfg.ServiceURL = "" }, "ServiceURL"},
		{"Malformed service URL", func(cfg *Config) { cfg.ServiceURL = "not a url" }, "ServiceURL"},
		{"Zero connect timeout", func(cfg *Config) { cfg.ConnectTimeout = 0 }, "ConnectTimeout"},
		{"Negative read timeout", func(cfg *Config) { cfg.ReadTimeout = -time.Second }, "ReadTimeout"},
		{"Unknown output format", func(cfg *Config) { cfg.OutputFormat = "yaml" }, "OutputFormat"},
		{"Port out of range", func(cfg *Config) { cfg.Port = 70000 }, "Port"},
		{"Zero certificate validity", func(cfg *Config) { cfg.CertValidDays = 0 }, "CertValidDays"},
		{"Empty watch schedule", func(cfg *Config) { cfg.WatchSchedule = "" }, "WatchSchedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnvVars()
			cfg := LoadConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantError == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Expected validation error for %s", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Expected error to mention %s, got %v", tt.wantError, err)
			}
		})
	}
}

func TestGetEnvStr(t *testing.T) {
	t.Setenv("TEST_STRING", "custom_value")

	if got := getEnvStr("TEST_STRING", "default_value"); got != "custom_value" {
		t.Errorf("Expected custom_value, got %s", got)
	}
	if got := getEnvStr("TEST_STRING_NOTSET", "default_value"); got != "default_value" {
		t.Errorf("Expected default_value, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{"Valid integer", "42", 42},
		{"Invalid integer", "not_a_number", 10},
		{"Empty string", "", 10},
		{"Negative integer", "-5", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)

			if got := getEnvInt("TEST_INT", 10); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"True value", "true", false, true},
		{"False value", "false", true, false},
		{"1 as true", "1", false, true},
		{"Invalid boolean", "maybe", true, true},
		{"Empty string", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)

			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.expected {
				t.Errorf("Expected %t, got %t", tt.expected, got)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"Seconds", "45s", 45 * time.Second},
		{"Milliseconds", "250ms", 250 * time.Millisecond},
		{"Invalid duration", "invalid_duration", time.Second},
		{"Empty string", "", time.Second},
		{"Complex duration", "1m30s", 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)

			if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// Helper function to clear all config-related environment variables
func clearConfigEnvVars() {
	envVars := []string{
		"SERVICE_URL", "CONNECT_TIMEOUT", "READ_TIMEOUT", "OUTPUT_FORMAT", "LOG_LEVEL",
		"HTTP_PORT", "HTTPS_PORT", "ENABLE_TLS", "CERT_FILE", "KEY_FILE", "CERT_PATH",
		"CERT_HOSTS", "CERT_VALID_DAYS", "GENERATE_CERTS", "WATCH_SCHEDULE",
	}

	for _, envVar := range envVars {
		// Ignore errors for cleanup as environment variables might not have been set
		_ = os.Unsetenv(envVar)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	clearConfigEnvVars()

	for i := 0; i < b.N; i++ {
		LoadConfig()
	}
}
