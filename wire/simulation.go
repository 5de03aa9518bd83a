package wire

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of the simulated stack.
// Default: a lossless link with the stack's default queue size
type SimulationConfig struct {
	// QueueSize is the hardware push queue depth (HVN TX queue). Default: 2
	QueueSize int

	// ConnectionInterval is how often queued pushes go over the air. Default: 30ms
	ConnectionInterval time.Duration

	// TransactionTimeout bounds the wait for an indication confirmation.
	// Default: 30s (ATT transaction timeout)
	TransactionTimeout time.Duration

	// SubmitFailureRate is the chance a submission is refused even though
	// the queue has room (stack busy). Default: 0
	SubmitFailureRate float64

	// AckLossRate is the chance a completed transmission is never reported
	// back. Lost reports leak credits until the next connect. Default: 0
	AckLossRate float64

	// ConfirmLossRate is the chance the peer never confirms an indication,
	// which ends in an ATT timeout. Default: 0
	ConfirmLossRate float64

	// Deterministic mode for testing
	Deterministic bool  // Default: false (use for reproducible scenarios)
	Seed          int64 // Random seed when Deterministic=true
}

// DefaultSimulationConfig returns the simulation parameters used by the CLI
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		QueueSize:          DefaultQueueSize,
		ConnectionInterval: DefaultConnectionInterval,
		TransactionTimeout: DefaultTransactionTimeout,
	}
}

// PerfectSimulationConfig returns a 100% reliable, reproducible config for testing
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.Deterministic = true
	cfg.Seed = 1
	return cfg
}

// Validate checks if the configuration is valid
func (c *SimulationConfig) Validate() error {
	if c.QueueSize < 1 || c.QueueSize > MaxQueueSize {
		return fmt.Errorf("wire: queue size %d out of range [1, %d]", c.QueueSize, MaxQueueSize)
	}
	if c.ConnectionInterval < MinConnectionInterval || c.ConnectionInterval > MaxConnectionInterval {
		return fmt.Errorf("wire: connection interval %v out of range [%v, %v]",
			c.ConnectionInterval, MinConnectionInterval, MaxConnectionInterval)
	}
	for name, rate := range map[string]float64{
		"submit failure": c.SubmitFailureRate,
		"ack loss":       c.AckLossRate,
		"confirm loss":   c.ConfirmLossRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("wire: %s rate %v out of range [0, 1]", name, rate)
		}
	}
	return nil
}

// Simulator draws the random outcomes of a simulated link
type Simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulator creates a new simulator
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{
		config: config,
		rng:    rng,
	}
}

func (s *Simulator) chance(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

// ShouldRefuseSubmit returns true if the stack should report itself busy
func (s *Simulator) ShouldRefuseSubmit() bool {
	return s.chance(s.config.SubmitFailureRate)
}

// ShouldLoseAck returns true if a completion report should be dropped
func (s *Simulator) ShouldLoseAck() bool {
	return s.chance(s.config.AckLossRate)
}

// ShouldLoseConfirm returns true if the peer should ignore an indication
func (s *Simulator) ShouldLoseConfirm() bool {
	return s.chance(s.config.ConfirmLossRate)
}
