package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// FUNCTIONAL VALIDATION TEST: Defaults match the documented protocol
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != 13750 {
		t.Errorf("Expected default port 13750, got %d", config.Server.Port)
	}
	if config.Server.Password != "1234" {
		t.Errorf("Expected default password 1234, got %q", config.Server.Password)
	}
	if config.Server.AcceptTimeout != time.Second {
		t.Errorf("Expected 1s accept timeout, got %v", config.Server.AcceptTimeout)
	}
	if config.Server.ReadBuffer != 4096 {
		t.Errorf("Expected 4096 read buffer, got %d", config.Server.ReadBuffer)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should pass validation: %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Validation prevents invalid settings
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty password", func(c *Config) { c.Server.Password = "" }},
		{"marker in password", func(c *Config) { c.Server.Password = "12†34" }},
		{"zero accept timeout", func(c *Config) { c.Server.AcceptTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }},
		{"zero queue", func(c *Config) { c.Server.QueueSize = 0 }},
		{"enabled db without path", func(c *Config) { c.Database.Enabled = true; c.Database.Path = "" }},
		{"enabled http bad timeout", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.ReadTimeout = 0 }},
		{"rate limit without burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"missing log", func(c *Config) { c.Log = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}

	config := DefaultConfig()
	config.Database.Path = ""
	if err := config.Validate(); err != nil {
		t.Errorf("Disabled database should not require a path: %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variable configuration loading
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TACBOARD_PORT", "9999")
	t.Setenv("TACBOARD_PASSWORD", "sekrit")
	t.Setenv("TACBOARD_WRITE_TIMEOUT", "2s")
	t.Setenv("TACBOARD_HTTP_ENABLED", "true")
	t.Setenv("TACBOARD_RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("TACBOARD_LOG_LEVEL", "detail")
	t.Setenv("TACBOARD_QUEUE_SIZE", "not-a-number")

	config := LoadFromEnv()

	if config.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", config.Server.Port)
	}
	if config.Server.Password != "sekrit" {
		t.Errorf("Expected password from env, got %q", config.Server.Password)
	}
	if config.Server.WriteTimeout != 2*time.Second {
		t.Errorf("Expected 2s write timeout, got %v", config.Server.WriteTimeout)
	}
	if !config.HTTP.Enabled {
		t.Error("Expected HTTP enabled from env")
	}
	if config.RateLimit.MessagesPerSecond != 2.5 {
		t.Errorf("Expected rate 2.5, got %v", config.RateLimit.MessagesPerSecond)
	}
	if config.Log.Level != "detail" {
		t.Errorf("Expected log level detail, got %q", config.Log.Level)
	}
	if config.Server.QueueSize != 1000 {
		t.Errorf("Invalid env value should keep default, got %d", config.Server.QueueSize)
	}
}

// FUNCTIONAL VALIDATION TEST: File configuration with duration strings
func TestConfig_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tacboard.json")
	content := `{
		"server": {"port": 14000, "password": "alpha", "accept_timeout": "500ms"},
		"http": {"enabled": true, "port": 8181},
		"database": {"enabled": true, "path": "/tmp/board.db"},
		"rate_limit": {"enabled": false},
		"log": {"level": "debug"}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Server.Port != 14000 || config.Server.Password != "alpha" {
		t.Errorf("Unexpected server config: %+v", config.Server)
	}
	if config.Server.AcceptTimeout != 500*time.Millisecond {
		t.Errorf("Expected 500ms accept timeout, got %v", config.Server.AcceptTimeout)
	}
	if !config.HTTP.Enabled || config.HTTP.Port != 8181 {
		t.Errorf("Unexpected HTTP config: %+v", config.HTTP)
	}
	if !config.Database.Enabled || config.Database.Path != "/tmp/board.db" {
		t.Errorf("Unexpected database config: %+v", config.Database)
	}
	if config.RateLimit.Enabled {
		t.Error("Expected rate limit disabled by file")
	}
	if config.Server.WriteTimeout != 5*time.Second {
		t.Errorf("Unset values should keep defaults, got %v", config.Server.WriteTimeout)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte(`{"server": {"accept_timeout": "soon"}}`), 0644)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("Expected error for bad duration")
	}
}

// FUNCTIONAL VALIDATION TEST: file > env > .env > defaults
func TestConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer func() { _ = os.Chdir(wd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	_ = os.WriteFile(".env", []byte("TACBOARD_HOST=10.0.0.1\nTACBOARD_PASSWORD=fromdotenv\n"), 0644)
	t.Setenv("TACBOARD_PASSWORD", "fromenv")
	t.Setenv("TACBOARD_PORT", "15000")
	defer os.Unsetenv("TACBOARD_HOST")

	path := filepath.Join(dir, "c.json")
	_ = os.WriteFile(path, []byte(`{"server": {"port": 16000}}`), 0644)

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}

	if config.Server.Host != "10.0.0.1" {
		t.Errorf("Expected host from .env, got %q", config.Server.Host)
	}
	if config.Server.Password != "fromenv" {
		t.Errorf("Environment should win over .env, got %q", config.Server.Password)
	}
	if config.Server.Port != 16000 {
		t.Errorf("File should win over environment, got %d", config.Server.Port)
	}
}
