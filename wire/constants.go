package wire

import "time"

// Stack limits and timing used by the simulated stack
const (
	// DefaultQueueSize is the default HVN TX queue depth of the stack
	DefaultQueueSize = 2
	MaxQueueSize     = 255

	// Connection interval bounds (7.5ms .. 4s)
	MinConnectionInterval     = 7500 * time.Microsecond
	MaxConnectionInterval     = 4 * time.Second
	DefaultConnectionInterval = 30 * time.Millisecond

	DefaultTransactionTimeout = 30 * time.Second

	// DefaultMTU is the BLE 4.0 ATT MTU: 3 bytes of header, 20 of value
	DefaultMTU = 23
)

// HCI disconnect reasons reported with disconnect events
const (
	ReasonConnectionTimeout      uint8 = 0x08
	ReasonRemoteUserTerminated   uint8 = 0x13
	ReasonLocalHostTerminated    uint8 = 0x16
	ReasonLMPResponseTimeout     uint8 = 0x22
	ReasonConnectionFailedToSync uint8 = 0x3E
)

// ReasonName returns a short name for an HCI disconnect reason
func ReasonName(reason uint8) string {
	switch reason {
	case ReasonConnectionTimeout:
		return "connection timeout"
	case ReasonRemoteUserTerminated:
		return "remote user terminated"
	case ReasonLocalHostTerminated:
		return "local host terminated"
	case ReasonLMPResponseTimeout:
		return "response timeout"
	case ReasonConnectionFailedToSync:
		return "failed to establish"
	default:
		return "unknown"
	}
}
