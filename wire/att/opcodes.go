package att

// ATT opcodes used between the peripheral and its single peer
// (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.4)
const (
	OpErrorResponse = 0x01

	OpReadRequest  = 0x0A
	OpReadResponse = 0x0B

	OpWriteRequest  = 0x12
	OpWriteResponse = 0x13
	OpWriteCommand  = 0x52

	// Server-initiated
	OpHandleValueNotification = 0x1B
	OpHandleValueIndication   = 0x1D
	OpHandleValueConfirmation = 0x1E
)

// OpcodeNames maps opcodes to human-readable names (useful for debugging)
var OpcodeNames = map[uint8]string{
	OpErrorResponse:           "Error Response",
	OpReadRequest:             "Read Request",
	OpReadResponse:            "Read Response",
	OpWriteRequest:            "Write Request",
	OpWriteResponse:           "Write Response",
	OpWriteCommand:            "Write Command",
	OpHandleValueNotification: "Handle Value Notification",
	OpHandleValueIndication:   "Handle Value Indication",
	OpHandleValueConfirmation: "Handle Value Confirmation",
}

// IsServerInitiated returns true for the two push opcodes
func IsServerInitiated(opcode uint8) bool {
	return opcode == OpHandleValueNotification || opcode == OpHandleValueIndication
}

// NeedsConfirmation returns true if the peer must answer the opcode with a
// Handle Value Confirmation
func NeedsConfirmation(opcode uint8) bool {
	return opcode == OpHandleValueIndication
}

// GetResponseOpcode returns the expected response opcode for a given request opcode
// Returns 0 if the opcode doesn't have a response
func GetResponseOpcode(requestOpcode uint8) uint8 {
	switch requestOpcode {
	case OpReadRequest:
		return OpReadResponse
	case OpWriteRequest:
		return OpWriteResponse
	case OpHandleValueIndication:
		return OpHandleValueConfirmation
	default:
		return 0
	}
}
