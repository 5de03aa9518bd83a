package push

import (
	"errors"
	"fmt"

	"github.com/user/estc-blue/wire/gatt"
)

// Mode is the push mode of a target.
type Mode = gatt.Mode

const (
	Notify   = gatt.ModeNotify
	Indicate = gatt.ModeIndicate
)

// SubscriptionSource reads the peer's raw subscription-config (CCCD) value.
// It returns gatt.ErrSystemAttributesMissing when the peer has not written
// the value on this connection. Any other error is a store failure and is
// not treated as backpressure.
type SubscriptionSource interface {
	ReadSubscriptionConfig(conn, cccdHandle uint16) ([]byte, error)
}

// Wants reports whether the peer on conn currently wants pushes of exactly
// mode for char. A peer that enabled both modes wants neither. The value is
// read on every call; nothing is cached across connections.
func Wants(src SubscriptionSource, conn ConnHandle, char gatt.CharHandles, mode Mode) (bool, error) {
	if !char.CanPush() {
		return false, nil
	}

	raw, err := src.ReadSubscriptionConfig(uint16(conn), char.CCCD)
	if err != nil {
		if errors.Is(err, gatt.ErrSystemAttributesMissing) {
			return false, fmt.Errorf("%w (cccd 0x%04X)", ErrSubscriptionUnavailable, char.CCCD)
		}
		return false, fmt.Errorf("read cccd 0x%04X: %w", char.CCCD, err)
	}

	if len(raw) != gatt.CCCDLen {
		return false, fmt.Errorf("%w: cccd 0x%04X holds %d bytes, want %d",
			ErrMalformedSubscriptionValue, char.CCCD, len(raw), gatt.CCCDLen)
	}

	got, err := gatt.DecodeMode(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedSubscriptionValue, err)
	}
	return got == mode, nil
}
