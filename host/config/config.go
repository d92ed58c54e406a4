// Package config loads crumbs-leader settings from TOML
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Driver kinds
const (
	DriverDev    = "i2cdev"
	DriverBridge = "bridge"
)

var ErrInvalidConfig = errors.New("config: invalid")

// SerialConfig configures the bridge serial link
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Address string
}

// Config is the resolved leader configuration
type Config struct {
	Driver          string
	Bus             uint8
	Rate            uint32
	Serial          SerialConfig
	ResponseTimeout time.Duration
	Log             LogConfig
	Metrics         MetricsConfig
}

// Default returns the settings used when no file is given
func Default() Config {
	return Config{
		Driver: DriverDev,
		Bus:    1,
		Rate:   100000,
		Serial: SerialConfig{
			Baud:        250000,
			ReadTimeout: 100 * time.Millisecond,
		},
		ResponseTimeout: time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

type fileConfig struct {
	Driver          string `toml:"driver"`
	Bus             int    `toml:"bus"`
	Rate            int64  `toml:"rate"`
	ResponseTimeout string `toml:"response_timeout"`

	Serial struct {
		Device      string `toml:"device"`
		Baud        int    `toml:"baud"`
		ReadTimeout string `toml:"read_timeout"`
	} `toml:"serial"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Metrics struct {
		Address string `toml:"address"`
	} `toml:"metrics"`
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("driver") {
		cfg.Driver = strings.ToLower(strings.TrimSpace(raw.Driver))
	}
	if meta.IsDefined("bus") {
		if raw.Bus < 0 || raw.Bus > 0xFF {
			return Config{}, fmt.Errorf("%w: bus %d out of range", ErrInvalidConfig, raw.Bus)
		}
		cfg.Bus = uint8(raw.Bus)
	}
	if meta.IsDefined("rate") {
		if raw.Rate <= 0 || raw.Rate > 1<<32-1 {
			return Config{}, fmt.Errorf("%w: rate %d out of range", ErrInvalidConfig, raw.Rate)
		}
		cfg.Rate = uint32(raw.Rate)
	}
	if meta.IsDefined("response_timeout") {
		d, err := parseDuration("response_timeout", raw.ResponseTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.ResponseTimeout = d
	}

	if meta.IsDefined("serial", "device") {
		cfg.Serial.Device = strings.TrimSpace(raw.Serial.Device)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = raw.Serial.Baud
	}
	if meta.IsDefined("serial", "read_timeout") {
		d, err := parseDuration("serial.read_timeout", raw.Serial.ReadTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Serial.ReadTimeout = d
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("metrics", "address") {
		cfg.Metrics.Address = strings.TrimSpace(raw.Metrics.Address)
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidConfig, key)
	}
	return d, nil
}

// Validate checks that the configuration can open a bus
func (c Config) Validate() error {
	switch c.Driver {
	case DriverDev:
	case DriverBridge:
		if c.Serial.Device == "" {
			return fmt.Errorf("%w: bridge driver needs serial.device", ErrInvalidConfig)
		}
		if c.Serial.Baud <= 0 {
			return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
		}
		if c.ResponseTimeout <= 0 {
			return fmt.Errorf("%w: response_timeout must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.Rate == 0 {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
