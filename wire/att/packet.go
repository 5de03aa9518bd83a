package att

import (
	"encoding/binary"
	"fmt"
)

// Error Response (Opcode 0x01)
type ErrorResponse struct {
	RequestOpcode uint8  // The opcode that caused the error
	Handle        uint16 // The handle that caused the error
	ErrorCode     uint8  // The error code
}

// Read Request/Response (Opcodes 0x0A/0x0B)
type ReadRequest struct {
	Handle uint16
}

type ReadResponse struct {
	Value []byte
}

// Write Request/Response (Opcodes 0x12/0x13)
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

type WriteResponse struct{}

// Write Command (Opcode 0x52) - no response
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

// Handle Value Notification (Opcode 0x1B) - no confirmation
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

// Handle Value Indication (Opcode 0x1D) - requires confirmation
type HandleValueIndication struct {
	Handle uint16
	Value  []byte
}

// Handle Value Confirmation (Opcode 0x1E)
type HandleValueConfirmation struct{}

func encodeHandleValue(opcode uint8, handle uint16, value []byte) []byte {
	buf := make([]byte, 3+len(value))
	buf[0] = opcode
	binary.LittleEndian.PutUint16(buf[1:3], handle)
	copy(buf[3:], value)
	return buf
}

// EncodePacket encodes an ATT packet to binary format
func EncodePacket(pkt interface{}) ([]byte, error) {
	switch p := pkt.(type) {
	case *ErrorResponse:
		buf := make([]byte, 5)
		buf[0] = OpErrorResponse
		buf[1] = p.RequestOpcode
		binary.LittleEndian.PutUint16(buf[2:4], p.Handle)
		buf[4] = p.ErrorCode
		return buf, nil

	case *ReadRequest:
		buf := make([]byte, 3)
		buf[0] = OpReadRequest
		binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
		return buf, nil

	case *ReadResponse:
		return append([]byte{OpReadResponse}, p.Value...), nil

	case *WriteRequest:
		return encodeHandleValue(OpWriteRequest, p.Handle, p.Value), nil

	case *WriteResponse:
		return []byte{OpWriteResponse}, nil

	case *WriteCommand:
		return encodeHandleValue(OpWriteCommand, p.Handle, p.Value), nil

	case *HandleValueNotification:
		return encodeHandleValue(OpHandleValueNotification, p.Handle, p.Value), nil

	case *HandleValueIndication:
		return encodeHandleValue(OpHandleValueIndication, p.Handle, p.Value), nil

	case *HandleValueConfirmation:
		return []byte{OpHandleValueConfirmation}, nil

	default:
		return nil, fmt.Errorf("att: unknown packet type %T", pkt)
	}
}

// DecodePacket decodes binary data into an ATT packet
func DecodePacket(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("att: packet too short (need at least 1 byte)")
	}

	opcode := data[0]
	switch opcode {
	case OpErrorResponse:
		if len(data) < 5 {
			return nil, fmt.Errorf("att: ErrorResponse too short")
		}
		return &ErrorResponse{
			RequestOpcode: data[1],
			Handle:        binary.LittleEndian.Uint16(data[2:4]),
			ErrorCode:     data[4],
		}, nil

	case OpReadRequest:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: ReadRequest too short")
		}
		return &ReadRequest{Handle: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpReadResponse:
		return &ReadResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpWriteRequest, OpWriteCommand, OpHandleValueNotification, OpHandleValueIndication:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: %s too short", OpcodeNames[opcode])
		}
		handle := binary.LittleEndian.Uint16(data[1:3])
		value := append([]byte{}, data[3:]...)
		switch opcode {
		case OpWriteRequest:
			return &WriteRequest{Handle: handle, Value: value}, nil
		case OpWriteCommand:
			return &WriteCommand{Handle: handle, Value: value}, nil
		case OpHandleValueNotification:
			return &HandleValueNotification{Handle: handle, Value: value}, nil
		default:
			return &HandleValueIndication{Handle: handle, Value: value}, nil
		}

	case OpWriteResponse:
		return &WriteResponse{}, nil

	case OpHandleValueConfirmation:
		return &HandleValueConfirmation{}, nil

	default:
		return nil, fmt.Errorf("att: unknown opcode 0x%02X", opcode)
	}
}
