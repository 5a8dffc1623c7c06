package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes
const (
	ModeReconnect = "reconnect"
	ModeRestart   = "restart"
	ModeWait      = "wait"
)

// Config holds the application configuration
type Config struct {
	// Web UI backend
	WebUIURL       string        `yaml:"webui_url"`
	ProgressPath   string        `yaml:"progress_path"`
	AnchorID       string        `yaml:"anchor_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Session state
	StatePath string `yaml:"state_path"`

	// Watchdog configuration
	Mode              string        `yaml:"mode"` // "reconnect", "restart" or "wait"
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	RestartInterval   time.Duration `yaml:"restart_interval"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`

	// Progress tracking
	ProgressInterval  time.Duration `yaml:"progress_interval"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// ETA indicator
	LoadingHideAfter     time.Duration `yaml:"loading_hide_after"`
	LoadingCheckInterval time.Duration `yaml:"loading_check_interval"`

	// Observability
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		WebUIURL:             "http://127.0.0.1:7860",
		ProgressPath:         "/sdapi/v1/progress",
		AnchorID:             "txt2img_gallery",
		RequestTimeout:       10 * time.Second,
		StatePath:            "webui-watchdog.db",
		Mode:                 ModeReconnect,
		ReconnectInterval:    100 * time.Millisecond,
		RestartInterval:      1000 * time.Millisecond,
		ShutdownGrace:        500 * time.Millisecond,
		ProgressInterval:     1 * time.Second,
		InactivityTimeout:    60 * time.Second,
		LoadingHideAfter:     3 * time.Second,
		LoadingCheckInterval: 5 * time.Second,
		LogLevel:             "info",
		MetricsPort:          9090,
		HealthPort:           8080,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads the optional YAML file at path, then applies environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	if c.WebUIURL == "" {
		return fmt.Errorf("WEBUI_URL is required")
	}

	if c.AnchorID == "" {
		return fmt.Errorf("ANCHOR_ID is required")
	}

	switch c.Mode {
	case ModeReconnect, ModeRestart, ModeWait:
	default:
		return fmt.Errorf("MODE must be one of 'reconnect', 'restart' or 'wait', got: %s", c.Mode)
	}

	for name, d := range map[string]time.Duration{
		"RECONNECT_INTERVAL":     c.ReconnectInterval,
		"RESTART_INTERVAL":       c.RestartInterval,
		"PROGRESS_INTERVAL":      c.ProgressInterval,
		"LOADING_CHECK_INTERVAL": c.LoadingCheckInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got: %s", name, d)
		}
	}

	return nil
}

func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.WebUIURL = getEnvOrDefault("WEBUI_URL", c.WebUIURL)
	c.ProgressPath = getEnvOrDefault("PROGRESS_PATH", c.ProgressPath)
	c.AnchorID = getEnvOrDefault("ANCHOR_ID", c.AnchorID)
	c.RequestTimeout = parseDuration(os.Getenv("REQUEST_TIMEOUT"), c.RequestTimeout)
	c.StatePath = getEnvOrDefault("STATE_PATH", c.StatePath)
	c.Mode = getEnvOrDefault("MODE", c.Mode)
	c.ReconnectInterval = parseDuration(os.Getenv("RECONNECT_INTERVAL"), c.ReconnectInterval)
	c.RestartInterval = parseDuration(os.Getenv("RESTART_INTERVAL"), c.RestartInterval)
	c.ShutdownGrace = parseDuration(os.Getenv("SHUTDOWN_GRACE"), c.ShutdownGrace)
	c.ProgressInterval = parseDuration(os.Getenv("PROGRESS_INTERVAL"), c.ProgressInterval)
	c.InactivityTimeout = parseDuration(os.Getenv("INACTIVITY_TIMEOUT"), c.InactivityTimeout)
	c.LoadingHideAfter = parseDuration(os.Getenv("LOADING_HIDE_AFTER"), c.LoadingHideAfter)
	c.LoadingCheckInterval = parseDuration(os.Getenv("LOADING_CHECK_INTERVAL"), c.LoadingCheckInterval)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.MetricsPort = parseInt(os.Getenv("METRICS_PORT"), c.MetricsPort)
	c.HealthPort = parseInt(os.Getenv("HEALTH_PORT"), c.HealthPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result == 0 {
		return defaultValue
	}
	return result
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
