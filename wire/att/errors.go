package att

import (
	"errors"
	"fmt"
)

// ATT Error Codes (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.4.1.1)
const (
	ErrInvalidHandle               = 0x01
	ErrReadNotPermitted            = 0x02
	ErrWriteNotPermitted           = 0x03
	ErrInvalidPDU                  = 0x04
	ErrRequestNotSupported         = 0x06
	ErrInvalidOffset               = 0x07
	ErrAttributeNotFound           = 0x0A
	ErrInvalidAttributeValueLength = 0x0D
	ErrUnlikelyError               = 0x0E
	ErrInsufficientResources       = 0x11

	// Application Error codes (0x80 - 0x9F)
	ErrApplicationErrorStart = 0x80
	ErrApplicationErrorEnd   = 0x9F

	// Common Profile and Service Error Codes (0xE0 - 0xFF)
	ErrCommonErrorStart = 0xE0
	ErrCommonErrorEnd   = 0xFF

	ErrWriteRequestRejected       = 0xFC
	ErrCCCDImproperlyConfigured   = 0xFD
	ErrProcedureAlreadyInProgress = 0xFE
	ErrOutOfRange                 = 0xFF
)

// ErrorNames maps error codes to human-readable names
var ErrorNames = map[uint8]string{
	ErrInvalidHandle:               "Invalid Handle",
	ErrReadNotPermitted:            "Read Not Permitted",
	ErrWriteNotPermitted:           "Write Not Permitted",
	ErrInvalidPDU:                  "Invalid PDU",
	ErrRequestNotSupported:         "Request Not Supported",
	ErrInvalidOffset:               "Invalid Offset",
	ErrAttributeNotFound:           "Attribute Not Found",
	ErrInvalidAttributeValueLength: "Invalid Attribute Value Length",
	ErrUnlikelyError:               "Unlikely Error",
	ErrInsufficientResources:       "Insufficient Resources",
	ErrWriteRequestRejected:        "Write Request Rejected",
	ErrCCCDImproperlyConfigured:    "CCCD Improperly Configured",
	ErrProcedureAlreadyInProgress:  "Procedure Already in Progress",
	ErrOutOfRange:                  "Out of Range",
}

// Error represents an ATT error
type Error struct {
	Code          uint8
	RequestOpcode uint8
	Handle        uint16
}

// Error implements the error interface
func (e *Error) Error() string {
	name, ok := ErrorNames[e.Code]
	if !ok {
		if e.Code >= ErrApplicationErrorStart && e.Code <= ErrApplicationErrorEnd {
			name = fmt.Sprintf("Application Error (0x%02X)", e.Code)
		} else if e.Code >= ErrCommonErrorStart && e.Code <= ErrCommonErrorEnd {
			name = fmt.Sprintf("Common Profile Error (0x%02X)", e.Code)
		} else {
			name = fmt.Sprintf("Unknown Error (0x%02X)", e.Code)
		}
	}

	opcodeName, ok := OpcodeNames[e.RequestOpcode]
	if !ok {
		opcodeName = fmt.Sprintf("0x%02X", e.RequestOpcode)
	}

	return fmt.Sprintf("ATT Error: %s (handle 0x%04X, request %s)", name, e.Handle, opcodeName)
}

// NewError creates a new ATT error
func NewError(code uint8, requestOpcode uint8, handle uint16) *Error {
	return &Error{
		Code:          code,
		RequestOpcode: requestOpcode,
		Handle:        handle,
	}
}

// FromResponse converts a decoded Error Response PDU into an *Error
func FromResponse(resp *ErrorResponse) *Error {
	return NewError(resp.ErrorCode, resp.RequestOpcode, resp.Handle)
}

// IsATTError checks if an error (or anything it wraps) is an ATT error with a
// specific code
func IsATTError(err error, code uint8) bool {
	var attErr *Error
	if errors.As(err, &attErr) {
		return attErr.Code == code
	}
	return false
}

// GetErrorCode returns the ATT error code from an error, or 0 if not an ATT error
func GetErrorCode(err error) uint8 {
	var attErr *Error
	if errors.As(err, &attErr) {
		return attErr.Code
	}
	return 0
}
