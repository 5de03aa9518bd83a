package push

import (
	"fmt"

	"github.com/user/estc-blue/trace"
)

const (
	// DefaultCapacity matches the default HVN TX queue size of the stack.
	DefaultCapacity = 2
	// MaxCapacity is the largest queue a connection can be configured with.
	MaxCapacity = 255
)

// Config holds configuration for a Dispatcher
type Config struct {
	// Capacity is the credit ceiling (stack push queue size).
	Capacity int
	// DisconnectOnTimeout forces the tracker to Disconnected when a timeout
	// for the current link arrives, without waiting for the disconnect event.
	DisconnectOnTimeout bool
	// OnTimeout is called, outside the dispatcher lock, for every timeout.
	OnTimeout func(ev Event)
	// Recorder receives a trace record per event and push attempt.
	Recorder trace.Recorder
	// Name prefixes log lines.
	Name string
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Recorder == nil {
		c.Recorder = trace.NoopRecorder{}
	}
	if c.Name == "" {
		c.Name = "push"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Capacity < 1 || c.Capacity > MaxCapacity {
		return fmt.Errorf("push: capacity %d out of range [1, %d]", c.Capacity, MaxCapacity)
	}
	return nil
}
