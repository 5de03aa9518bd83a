// Package config loads the simulator configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/wire"
)

// Config is the top-level configuration file
type Config struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`

	Push       PushConfig       `yaml:"push" toml:"push"`
	Simulation SimulationConfig `yaml:"simulation" toml:"simulation"`
	App        AppConfig        `yaml:"app" toml:"app"`
	Trace      TraceConfig      `yaml:"trace" toml:"trace"`
}

// PushConfig configures the flow-control layer
type PushConfig struct {
	Capacity            int  `yaml:"capacity" toml:"capacity"`
	DisconnectOnTimeout bool `yaml:"disconnect_on_timeout" toml:"disconnect_on_timeout"`
}

// SimulationConfig configures the simulated stack
type SimulationConfig struct {
	QueueSize          int           `yaml:"queue_size" toml:"queue_size"`
	ConnectionInterval time.Duration `yaml:"connection_interval" toml:"connection_interval"`
	TransactionTimeout time.Duration `yaml:"transaction_timeout" toml:"transaction_timeout"`
	SubmitFailureRate  float64       `yaml:"submit_failure_rate" toml:"submit_failure_rate"`
	AckLossRate        float64       `yaml:"ack_loss_rate" toml:"ack_loss_rate"`
	ConfirmLossRate    float64       `yaml:"confirm_loss_rate" toml:"confirm_loss_rate"`
	Seed               int64         `yaml:"seed" toml:"seed"`
}

// AppConfig configures the application timers
type AppConfig struct {
	HelloInterval time.Duration `yaml:"hello_interval" toml:"hello_interval"`
	Char1Interval time.Duration `yaml:"char1_interval" toml:"char1_interval"`
	PeerName      string        `yaml:"peer_name" toml:"peer_name"`
}

// TraceConfig configures the CBOR link trace. An empty path writes to the
// data directory, one file per session.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoadError describes a configuration file that could not be used
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Push: PushConfig{
			Capacity: push.DefaultCapacity,
		},
		Simulation: SimulationConfig{
			QueueSize:          wire.DefaultQueueSize,
			ConnectionInterval: wire.DefaultConnectionInterval,
			TransactionTimeout: wire.DefaultTransactionTimeout,
		},
		App: AppConfig{
			HelloInterval: time.Second,
			Char1Interval: 5 * time.Second,
			PeerName:      "central",
		},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, &LoadError{File: path, Message: fmt.Sprintf("unsupported config format %q", ext)}
	}
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to parse", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{File: path, Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Validate checks the assembled configuration
func (c *Config) Validate() error {
	if _, ok := parseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	pc := c.DispatcherConfig()
	if err := pc.Validate(); err != nil {
		return err
	}
	if err := c.StackConfig().Validate(); err != nil {
		return err
	}
	if c.Push.Capacity > c.Simulation.QueueSize {
		return fmt.Errorf("push capacity %d exceeds stack queue size %d", c.Push.Capacity, c.Simulation.QueueSize)
	}
	if c.App.HelloInterval <= 0 {
		return fmt.Errorf("hello interval must be positive")
	}
	return nil
}

// Level returns the configured log level
func (c *Config) Level() logger.LogLevel {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (logger.LogLevel, bool) {
	switch strings.ToUpper(s) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
		return logger.ParseLevel(s), true
	default:
		return logger.INFO, false
	}
}

// DispatcherConfig maps the file onto the dispatcher configuration. Unset
// fields are left for the owner of the dispatcher to default.
func (c *Config) DispatcherConfig() push.Config {
	return push.Config{
		Capacity:            c.Push.Capacity,
		DisconnectOnTimeout: c.Push.DisconnectOnTimeout,
	}
}

// StackConfig maps the file onto the simulated stack configuration.
// A non-zero seed makes the run reproducible.
func (c *Config) StackConfig() *wire.SimulationConfig {
	return &wire.SimulationConfig{
		QueueSize:          c.Simulation.QueueSize,
		ConnectionInterval: c.Simulation.ConnectionInterval,
		TransactionTimeout: c.Simulation.TransactionTimeout,
		SubmitFailureRate:  c.Simulation.SubmitFailureRate,
		AckLossRate:        c.Simulation.AckLossRate,
		ConfirmLossRate:    c.Simulation.ConfirmLossRate,
		Deterministic:      c.Simulation.Seed != 0,
		Seed:               c.Simulation.Seed,
	}
}
