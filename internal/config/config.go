package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tacboard/pkg/types"
)

// Config holds every tunable of the tacboard server.
type Config struct {
	Server    *ServerConfig    `json:"server"`
	HTTP      *HTTPConfig      `json:"http"`
	Database  *DatabaseConfig  `json:"database"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
	Log       *LogConfig       `json:"log"`
}

// ServerConfig covers the TCP board listener.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	Password      string        `json:"password"`
	AcceptTimeout time.Duration `json:"accept_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	ReadBuffer    int           `json:"read_buffer"`
	QueueSize     int           `json:"queue_size"`
}

// HTTPConfig covers the admin API and the WebSocket bridge.
type HTTPConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DatabaseConfig covers the audit journal.
type DatabaseConfig struct {
	Enabled bool          `json:"enabled"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	Burst             int     `json:"burst"`
}

type LogConfig struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// DefaultConfig listens on port 13750 with password "1234" and a one second
// accept timeout. HTTP and the journal are off.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:          "0.0.0.0",
			Port:          13750,
			Password:      "1234",
			AcceptTimeout: time.Second,
			WriteTimeout:  5 * time.Second,
			ReadBuffer:    4096,
			QueueSize:     1000,
		},
		HTTP: &HTTPConfig{
			Enabled:      false,
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Enabled: false,
			Path:    "./tacboard.db",
			Timeout: 30 * time.Second,
		},
		RateLimit: &RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 20,
			Burst:             40,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535")
	}
	if c.Server.Password == "" {
		return fmt.Errorf("server password cannot be empty")
	}
	if types.ContainsMarker(c.Server.Password) {
		return fmt.Errorf("server password cannot contain protocol markers")
	}
	if c.Server.AcceptTimeout <= 0 {
		return fmt.Errorf("server accept timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.ReadBuffer <= 0 {
		return fmt.Errorf("server read buffer must be positive")
	}
	if c.Server.QueueSize <= 0 {
		return fmt.Errorf("server queue size must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
			return fmt.Errorf("HTTP port must be between 0 and 65535")
		}
		if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
			return fmt.Errorf("HTTP timeouts must be positive")
		}
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return fmt.Errorf("database timeout must be positive")
		}
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit must have positive rate and burst")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding values already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// LoadFromEnv overlays TACBOARD_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("TACBOARD_HOST", &config.Server.Host)
	envInt("TACBOARD_PORT", &config.Server.Port)
	envString("TACBOARD_PASSWORD", &config.Server.Password)
	envDuration("TACBOARD_ACCEPT_TIMEOUT", &config.Server.AcceptTimeout)
	envDuration("TACBOARD_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envInt("TACBOARD_READ_BUFFER", &config.Server.ReadBuffer)
	envInt("TACBOARD_QUEUE_SIZE", &config.Server.QueueSize)

	envBool("TACBOARD_HTTP_ENABLED", &config.HTTP.Enabled)
	envString("TACBOARD_HTTP_HOST", &config.HTTP.Host)
	envInt("TACBOARD_HTTP_PORT", &config.HTTP.Port)
	envDuration("TACBOARD_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("TACBOARD_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envBool("TACBOARD_DATABASE_ENABLED", &config.Database.Enabled)
	envString("TACBOARD_DATABASE_PATH", &config.Database.Path)
	envDuration("TACBOARD_DATABASE_TIMEOUT", &config.Database.Timeout)

	envBool("TACBOARD_RATE_LIMIT_ENABLED", &config.RateLimit.Enabled)
	if v := os.Getenv("TACBOARD_RATE_LIMIT_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimit.MessagesPerSecond = f
		}
	}
	envInt("TACBOARD_RATE_LIMIT_BURST", &config.RateLimit.Burst)

	envString("TACBOARD_LOG_LEVEL", &config.Log.Level)
	envString("TACBOARD_LOG_PATH", &config.Log.Path)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile is the JSON file layout. Durations are strings such as "5s".
type ConfigFile struct {
	Server *struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		Password      string `json:"password"`
		AcceptTimeout string `json:"accept_timeout"`
		WriteTimeout  string `json:"write_timeout"`
		ReadBuffer    int    `json:"read_buffer"`
		QueueSize     int    `json:"queue_size"`
	} `json:"server"`
	HTTP *struct {
		Enabled      *bool  `json:"enabled"`
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Database *struct {
		Enabled *bool  `json:"enabled"`
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	RateLimit *struct {
		Enabled           *bool   `json:"enabled"`
		MessagesPerSecond float64 `json:"messages_per_second"`
		Burst             int     `json:"burst"`
	} `json:"rate_limit"`
	Log *struct {
		Level string `json:"level"`
		Path  string `json:"path"`
	} `json:"log"`
}

// LoadFromFile overlays a JSON file on the defaults and validates the result.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if s := file.Server; s != nil {
		setString(&config.Server.Host, s.Host)
		setInt(&config.Server.Port, s.Port)
		setString(&config.Server.Password, s.Password)
		if err := setDuration(&config.Server.AcceptTimeout, s.AcceptTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.Server.WriteTimeout, s.WriteTimeout); err != nil {
			return err
		}
		setInt(&config.Server.ReadBuffer, s.ReadBuffer)
		setInt(&config.Server.QueueSize, s.QueueSize)
	}

	if h := file.HTTP; h != nil {
		if h.Enabled != nil {
			config.HTTP.Enabled = *h.Enabled
		}
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.Port, h.Port)
		if err := setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout); err != nil {
			return err
		}
	}

	if d := file.Database; d != nil {
		if d.Enabled != nil {
			config.Database.Enabled = *d.Enabled
		}
		setString(&config.Database.Path, d.Path)
		if err := setDuration(&config.Database.Timeout, d.Timeout); err != nil {
			return err
		}
	}

	if r := file.RateLimit; r != nil {
		if r.Enabled != nil {
			config.RateLimit.Enabled = *r.Enabled
		}
		if r.MessagesPerSecond > 0 {
			config.RateLimit.MessagesPerSecond = r.MessagesPerSecond
		}
		setInt(&config.RateLimit.Burst, r.Burst)
	}

	if l := file.Log; l != nil {
		setString(&config.Log.Level, l.Level)
		setString(&config.Log.Path, l.Path)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", v, err)
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence builds the runtime config.
// Precedence: file > environment > .env > defaults.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	LoadDotEnv()
	config := LoadFromEnv()

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
