package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to every constructor.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	HTTP        HTTPConfig        `yaml:"http"`
	Relay       RelayConfig       `yaml:"relay"`
	Log         LogConfig         `yaml:"log"`
}

type CoordinatorConfig struct {
	Listen        string        `yaml:"listen"`
	SyncThreshold float64       `yaml:"sync_threshold"`
	SendQueue     int           `yaml:"send_queue"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
	ChatHistory   int           `yaml:"chat_history"`
}

type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Engine          string        `yaml:"engine"`
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RelayConfig struct {
	// Server is "host:port" for the TCP protocol or a ws:// / wss:// URL.
	Server         string        `yaml:"server"`
	Username       string        `yaml:"username"`
	Host           bool          `yaml:"host"`
	ReportInterval time.Duration `yaml:"report_interval"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	ReportTick     time.Duration `yaml:"report_tick"`
	AutoSync       bool          `yaml:"auto_sync"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	AllowedHosts   []string      `yaml:"allowed_hosts"`
	SendQueue      int           `yaml:"send_queue"`
	InboxSize      int           `yaml:"inbox_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Listen:        ":5555",
			SyncThreshold: 1.0,
			SendQueue:     64,
			WriteTimeout:  10 * time.Second,
			MaxFrameBytes: 64 * 1024,
			ChatHistory:   100,
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			Engine:          "echo",
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Relay: RelayConfig{
			Server:         "localhost:5555",
			Username:       fmt.Sprintf("User%d", time.Now().Unix()%1000),
			ReportInterval: 5 * time.Second,
			SyncInterval:   2 * time.Second,
			ReportTick:     time.Second,
			AutoSync:       true,
			DialTimeout:    10 * time.Second,
			AllowedHosts:   []string{"youtube.com", "youtu.be"},
			SendQueue:      64,
			InboxSize:      256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers, in order: defaults, the YAML file at path (skipped when path
// is empty), a .env file in the working directory, and WATCHPARTY_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Coordinator.SyncThreshold <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.sync_threshold must be > 0, got %v", c.Coordinator.SyncThreshold))
	}
	if c.Coordinator.Listen == "" {
		errs = append(errs, errors.New("coordinator.listen is required"))
	}
	switch c.HTTP.Engine {
	case "echo", "hertz":
	default:
		errs = append(errs, fmt.Errorf("http.engine must be echo or hertz, got %q", c.HTTP.Engine))
	}
	if c.Relay.ReportInterval <= 0 || c.Relay.SyncInterval <= 0 || c.Relay.ReportTick <= 0 {
		errs = append(errs, errors.New("relay intervals must be > 0"))
	}
	return errors.Join(errs...)
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.Coordinator.Listen = getEnv("WATCHPARTY_LISTEN", cfg.Coordinator.Listen)
	cfg.Coordinator.SyncThreshold = getEnvFloat("WATCHPARTY_SYNC_THRESHOLD", cfg.Coordinator.SyncThreshold)
	cfg.HTTP.Address = getEnv("WATCHPARTY_HTTP_ADDRESS", cfg.HTTP.Address)
	cfg.HTTP.Engine = getEnv("WATCHPARTY_HTTP_ENGINE", cfg.HTTP.Engine)
	cfg.HTTP.Enabled = getEnvBool("WATCHPARTY_HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.Relay.Server = getEnv("WATCHPARTY_SERVER", cfg.Relay.Server)
	cfg.Relay.Username = getEnv("WATCHPARTY_USERNAME", cfg.Relay.Username)
	cfg.Relay.Host = getEnvBool("WATCHPARTY_HOST", cfg.Relay.Host)
	cfg.Log.Level = getEnv("WATCHPARTY_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("WATCHPARTY_LOG_FORMAT", cfg.Log.Format)
}

func getEnv(key, fallback string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
