// Package config holds the server settings and loads them from a JSON file
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Config is the full server configuration
type Config struct {
	Host            string `json:"host" validate:"omitempty,hostname|ip"`
	Port            int    `json:"port" validate:"min=1,max=65535"`
	DataDir         string `json:"data_dir" validate:"required"`
	StatusAddr      string `json:"status_addr" validate:"omitempty,hostname_port"`
	AcceptTimeoutMS int    `json:"accept_timeout_ms" validate:"min=10,max=60000"`
	LogLevel        string `json:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFile         string `json:"log_file"`
	Game            Game   `json:"game"`
}

// Game tunes every engine the server creates
type Game struct {
	Level       int `json:"level" validate:"min=1,max=20"`
	LockDelayMS int `json:"lock_delay_ms" validate:"min=1"`
	// RefillBags is the number of bags below which a session's queue is refilled
	RefillBags int `json:"refill_bags" validate:"min=1,max=10"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		DataDir:         "data",
		StatusAddr:      ":8081",
		AcceptTimeoutMS: 500,
		LogLevel:        "INFO",
		Game: Game{
			Level:       3,
			LockDelayMS: 500,
			RefillBags:  1,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. Fields missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address is the TCP listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AcceptTimeout bounds each blocking accept
func (c *Config) AcceptTimeout() time.Duration {
	return time.Duration(c.AcceptTimeoutMS) * time.Millisecond
}

// LockDelay is the lock-down window of every engine
func (c *Config) LockDelay() time.Duration {
	return time.Duration(c.Game.LockDelayMS) * time.Millisecond
}
