// Package config loads and validates the gateway configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "700ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the gateway configuration.
type Config struct {
	// Serial is the radio-controller serial device.
	Serial string `yaml:"serial"`

	// CredentialFile holds the network credentials and sequence counters.
	CredentialFile string `yaml:"credential_file"`

	// HandleCacheDir holds the per-firmware attribute handle maps.
	HandleCacheDir string `yaml:"handle_cache_dir"`

	// LogPath is the protocol event log. Empty disables protocol logging.
	LogPath string `yaml:"log_path"`

	// GroupMask limits which devices the gateway manages, in dotted
	// notation with 255 as wildcard. Empty means all.
	GroupMask string `yaml:"group_mask"`

	Control    ControlConfig    `yaml:"control"`
	Connection ConnectionConfig `yaml:"connection"`
	Groups     GroupConfig      `yaml:"groups"`
	Commands   CommandConfig    `yaml:"commands"`
}

// ControlConfig carries broadcast-operation defaults.
type ControlConfig struct {
	// DefaultFade applies when a light command names no fade time.
	DefaultFade Duration `yaml:"default_fade"`

	// IndicateCount and IndicatePeriod shape the identify blink pattern.
	IndicateCount  int      `yaml:"indicate_count"`
	IndicatePeriod Duration `yaml:"indicate_period"`

	// IndicateIntensity is the blink level in percent.
	IndicateIntensity float64 `yaml:"indicate_intensity"`

	// ConnectWindow is how long a device stays connectable after it is
	// asked to open its window.
	ConnectWindow Duration `yaml:"connect_window"`

	// AdvertiseRepetitions is how often each broadcast frame is re-sent.
	AdvertiseRepetitions int `yaml:"advertise_repetitions"`
}

// ConnectionConfig bounds the connection machine.
type ConnectionConfig struct {
	ConnectTimeout      Duration `yaml:"connect_timeout"`
	StepTimeout         Duration `yaml:"step_timeout"`
	MaxConnectionFails  int      `yaml:"max_connection_fails"`
	BadConnectionRetest Duration `yaml:"bad_connection_retest"`
}

// GroupConfig bounds group-table polling.
type GroupConfig struct {
	RetryLimit    int      `yaml:"retry_limit"`
	RetryInterval Duration `yaml:"retry_interval"`
	SlowInterval  Duration `yaml:"slow_interval"`
}

// CommandConfig bounds connected attribute traffic.
type CommandConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CredentialFile: "credentials.conf",
		HandleCacheDir: "handle-cache",
		Control: ControlConfig{
			DefaultFade:          Duration(700 * time.Millisecond),
			IndicateCount:        3,
			IndicatePeriod:       Duration(time.Second),
			IndicateIntensity:    25,
			ConnectWindow:        Duration(30 * time.Second),
			AdvertiseRepetitions: 3,
		},
		Connection: ConnectionConfig{
			ConnectTimeout:      Duration(10 * time.Second),
			StepTimeout:         Duration(5 * time.Second),
			MaxConnectionFails:  3,
			BadConnectionRetest: Duration(60 * time.Second),
		},
		Groups: GroupConfig{
			RetryLimit:    5,
			RetryInterval: Duration(10 * time.Second),
			SlowInterval:  Duration(10 * time.Minute),
		},
		Commands: CommandConfig{
			Timeout: Duration(5 * time.Second),
		},
	}
}

// Load reads the file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.CredentialFile == "" {
		return fmt.Errorf("%w: credential_file is required", ErrInvalidConfig)
	}
	if c.Control.IndicateIntensity < 0 || c.Control.IndicateIntensity > 100 {
		return fmt.Errorf("%w: indicate_intensity %.1f out of range", ErrInvalidConfig, c.Control.IndicateIntensity)
	}
	if c.Control.IndicateCount < 0 {
		return fmt.Errorf("%w: indicate_count must not be negative", ErrInvalidConfig)
	}
	if c.Connection.MaxConnectionFails < 0 || c.Groups.RetryLimit < 0 {
		return fmt.Errorf("%w: retry ceilings must not be negative", ErrInvalidConfig)
	}
	if _, err := c.GroupMaskAddress(); err != nil {
		return err
	}
	return nil
}

// GroupMaskAddress parses the group mask into a logical address, or nil
// when no mask is configured.
func (c *Config) GroupMaskAddress() (frame.LogicalAddress, error) {
	if c.GroupMask == "" {
		return nil, nil
	}
	addr, err := frame.ParseLogicalAddress(c.GroupMask)
	if err != nil {
		return nil, fmt.Errorf("%w: group_mask: %v", ErrInvalidConfig, err)
	}
	return addr, nil
}
