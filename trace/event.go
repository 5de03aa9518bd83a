package trace

import "time"

// Event is one record in a link trace: a stack event delivered to the
// flow-control layer, or the outcome of a push attempt.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Session identifies the run that produced the trace (UUID).
	Session string `cbor:"2,keyasint,omitempty"`

	// Kind classifies the record.
	Kind Kind `cbor:"3,keyasint"`

	// Conn is the connection handle the record refers to.
	Conn uint16 `cbor:"4,keyasint"`

	// Attr is the characteristic value handle (push records only).
	Attr uint16 `cbor:"5,keyasint,omitempty"`

	// Mode is the push mode (1 notify, 2 indicate).
	Mode uint8 `cbor:"6,keyasint,omitempty"`

	// Count is the number of completed transmissions (transmit-complete only).
	Count uint32 `cbor:"7,keyasint,omitempty"`

	// Credits is the number of available credits after the record was applied.
	Credits uint32 `cbor:"8,keyasint"`

	// Outcome is "ok" or the error text for push records, or a short note
	// ("stale", "forced-disconnect") for stack events.
	Outcome string `cbor:"9,keyasint,omitempty"`

	// Size is the pushed value length in bytes.
	Size int `cbor:"10,keyasint,omitempty"`
}

// Kind classifies trace records.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConnect
	KindDisconnect
	KindTransmitComplete
	KindTimeout
	KindPush
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "CONNECT"
	case KindDisconnect:
		return "DISCONNECT"
	case KindTransmitComplete:
		return "TX_COMPLETE"
	case KindTimeout:
		return "TIMEOUT"
	case KindPush:
		return "PUSH"
	default:
		return "UNKNOWN"
	}
}
