package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "DEVIPC_CONFIG_FILE"

// Config holds all daemon configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Devices DeviceConfig `yaml:"devices"`
	MsgBox  MsgBoxConfig `yaml:"msgbox"`
	Logging LogConfig    `yaml:"logging"`
}

// ServerConfig holds dispatch daemon settings.
type ServerConfig struct {
	Socket            string `envconfig:"DEVIPC_SOCKET" yaml:"socket"`
	RequestsPerSecond int    `envconfig:"DEVIPC_RATE_LIMIT_RPS" yaml:"rate_limit_rps"`
	Burst             int    `envconfig:"DEVIPC_RATE_LIMIT_BURST" yaml:"rate_limit_burst"`
	RateLimitEnabled  bool   `envconfig:"DEVIPC_RATE_LIMIT_ENABLED" yaml:"rate_limit_enabled"`
	MetricsEnabled    bool   `envconfig:"DEVIPC_METRICS_ENABLED" yaml:"metrics_enabled"`

	// GlobalRequestsPerSecond caps the whole daemon across clients; 0 disables it.
	GlobalRequestsPerSecond int `envconfig:"DEVIPC_GLOBAL_RATE_LIMIT_RPS" yaml:"global_rate_limit_rps"`
	GlobalBurst             int `envconfig:"DEVIPC_GLOBAL_RATE_LIMIT_BURST" yaml:"global_rate_limit_burst"`
}

// DeviceConfig holds channel endpoint settings.
type DeviceConfig struct {
	Count      int `envconfig:"DEVIPC_DEVICE_COUNT" yaml:"count"`
	BufferSize int `envconfig:"DEVIPC_BUFFER_SIZE" yaml:"buffer_size"`
	MaxReaders int `envconfig:"DEVIPC_MAX_READERS" yaml:"max_readers"`
}

// MsgBoxConfig holds message stack settings.
type MsgBoxConfig struct {
	ByteBudget int64 `envconfig:"DEVIPC_MSGBOX_BUDGET" yaml:"byte_budget"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"DEVIPC_LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"DEVIPC_LOG_DEV" yaml:"development"`
}

// Load builds configuration from defaults, then the YAML file named by
// DEVIPC_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds configuration from defaults and the given YAML file only.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration: two 1 KiB endpoints, no reader
// limit and a 16 MiB message budget.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Socket:            "/tmp/devipc.sock",
			RequestsPerSecond: 1000,
			Burst:             2000,
			RateLimitEnabled:  true,
			MetricsEnabled:    true,
		},
		Devices: DeviceConfig{
			Count:      2,
			BufferSize: 1024,
			MaxReaders: 0,
		},
		MsgBox: MsgBoxConfig{
			ByteBudget: 16 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate rejects configurations the daemon cannot start with. Every
// violation is reported; each wraps errno.ErrInvalidArgument.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("invalid config: "+format+": %w", append(args, errno.ErrInvalidArgument)...))
	}

	if c.Server.Socket == "" {
		bad("socket path is empty")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RequestsPerSecond <= 0 {
			bad("rate limit %d must be positive", c.Server.RequestsPerSecond)
		}
		if c.Server.Burst <= 0 {
			bad("rate limit burst %d must be positive", c.Server.Burst)
		}
	}
	if c.Server.GlobalRequestsPerSecond < 0 {
		bad("global rate limit %d must not be negative", c.Server.GlobalRequestsPerSecond)
	}
	if c.Server.GlobalRequestsPerSecond > 0 && c.Server.GlobalBurst <= 0 {
		bad("global rate limit burst %d must be positive", c.Server.GlobalBurst)
	}
	if c.Devices.Count <= 0 {
		bad("device count %d must be positive", c.Devices.Count)
	}
	if c.Devices.BufferSize <= 0 || c.Devices.BufferSize > device.MaxBufferSize {
		bad("buffer size %d must be in 1..%d", c.Devices.BufferSize, device.MaxBufferSize)
	}
	if c.Devices.MaxReaders < 0 {
		bad("max readers %d must not be negative", c.Devices.MaxReaders)
	}
	if c.MsgBox.ByteBudget <= 0 {
		bad("msgbox budget %d must be positive", c.MsgBox.ByteBudget)
	}
	return errors.Join(errs...)
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalWithOptions(data, c, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
