package gatt

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/user/estc-blue/wire/att"
)

// CCCD (Client Characteristic Configuration Descriptor) values
// These are written by clients to enable/disable notifications and indications
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
	CCCDBothEnabled           = 0x0003

	// CCCDLen is the width of the control point value
	CCCDLen = 2
)

// Mode is the push mode a CCCD value selects
type Mode uint8

const (
	ModeNone Mode = iota
	ModeNotify
	ModeIndicate
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeNotify:
		return "notify"
	case ModeIndicate:
		return "indicate"
	case ModeBoth:
		return "notify+indicate"
	default:
		return "unknown"
	}
}

// ErrSystemAttributesMissing is returned when the peer has not written a
// CCCD on the current connection, so there is no value to read back.
var ErrSystemAttributesMissing = errors.New("gatt: system attributes missing")

// SubscriptionState represents the subscription state for a characteristic
type SubscriptionState struct {
	Handle          uint16 // CCCD handle
	NotifyEnabled   bool
	IndicateEnabled bool
}

// SubscriptionStore holds the raw CCCD values written by each connection.
// Values are never shared across connections and are dropped with Clear when
// the connection goes away (no bonding).
type SubscriptionStore struct {
	mu sync.RWMutex
	// conn handle -> CCCD handle -> raw value
	values map[uint16]map[uint16][]byte
}

// NewSubscriptionStore creates an empty store
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		values: make(map[uint16]map[uint16][]byte),
	}
}

// WriteSubscriptionConfig stores a peer write to a CCCD
func (s *SubscriptionStore) WriteSubscriptionConfig(conn, cccdHandle uint16, value []byte) error {
	if len(value) != CCCDLen {
		return att.NewError(att.ErrInvalidAttributeValueLength, att.OpWriteRequest, cccdHandle)
	}
	s.set(conn, cccdHandle, value)
	return nil
}

// RestoreSystemAttributes installs previously saved CCCD values for a
// connection without validating them.
func (s *SubscriptionStore) RestoreSystemAttributes(conn uint16, values map[uint16][]byte) {
	for h, v := range values {
		s.set(conn, h, v)
	}
}

func (s *SubscriptionStore) set(conn, cccdHandle uint16, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perConn, ok := s.values[conn]
	if !ok {
		perConn = make(map[uint16][]byte)
		s.values[conn] = perConn
	}
	perConn[cccdHandle] = append([]byte{}, value...)
}

// ReadSubscriptionConfig returns a copy of the raw CCCD value, or
// ErrSystemAttributesMissing if the peer never wrote it on this connection.
func (s *SubscriptionStore) ReadSubscriptionConfig(conn, cccdHandle uint16) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[conn][cccdHandle]
	if !ok {
		return nil, ErrSystemAttributesMissing
	}
	return append([]byte{}, value...), nil
}

// GetSubscription returns the decoded subscription state for a CCCD
func (s *SubscriptionStore) GetSubscription(conn, cccdHandle uint16) (SubscriptionState, bool) {
	value, err := s.ReadSubscriptionConfig(conn, cccdHandle)
	if err != nil {
		return SubscriptionState{}, false
	}
	notify, indicate, err := DecodeCCCDValue(value)
	if err != nil {
		return SubscriptionState{}, false
	}
	return SubscriptionState{Handle: cccdHandle, NotifyEnabled: notify, IndicateEnabled: indicate}, true
}

// IsNotifyEnabled returns true if notifications are enabled for a CCCD
func (s *SubscriptionStore) IsNotifyEnabled(conn, cccdHandle uint16) bool {
	state, ok := s.GetSubscription(conn, cccdHandle)
	return ok && state.NotifyEnabled
}

// IsIndicateEnabled returns true if indications are enabled for a CCCD
func (s *SubscriptionStore) IsIndicateEnabled(conn, cccdHandle uint16) bool {
	state, ok := s.GetSubscription(conn, cccdHandle)
	return ok && state.IndicateEnabled
}

// Subscriptions returns the decodable subscription states of a connection
func (s *SubscriptionStore) Subscriptions(conn uint16) []SubscriptionState {
	s.mu.RLock()
	handles := make([]uint16, 0, len(s.values[conn]))
	for h := range s.values[conn] {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	subs := make([]SubscriptionState, 0, len(handles))
	for _, h := range handles {
		if state, ok := s.GetSubscription(conn, h); ok {
			subs = append(subs, state)
		}
	}
	return subs
}

// Clear removes every CCCD value written by a connection
func (s *SubscriptionStore) Clear(conn uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, conn)
}

// EncodeCCCDValue converts subscription state to CCCD value bytes (little-endian)
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}

	cccdValue := make([]byte, CCCDLen)
	binary.LittleEndian.PutUint16(cccdValue, value)
	return cccdValue
}

// EncodeMode returns the CCCD bytes selecting mode
func EncodeMode(mode Mode) []byte {
	return EncodeCCCDValue(mode == ModeNotify || mode == ModeBoth, mode == ModeIndicate || mode == ModeBoth)
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != CCCDLen {
		return false, false, att.NewError(att.ErrInvalidAttributeValueLength, att.OpReadRequest, 0)
	}

	value := binary.LittleEndian.Uint16(cccdValue)
	notifyEnabled = (value & CCCDNotificationsEnabled) != 0
	indicateEnabled = (value & CCCDIndicationsEnabled) != 0

	return notifyEnabled, indicateEnabled, nil
}

// DecodeMode parses CCCD value bytes into a Mode. Reserved bits are ignored.
func DecodeMode(cccdValue []byte) (Mode, error) {
	notify, indicate, err := DecodeCCCDValue(cccdValue)
	if err != nil {
		return ModeNone, err
	}
	switch {
	case notify && indicate:
		return ModeBoth, nil
	case notify:
		return ModeNotify, nil
	case indicate:
		return ModeIndicate, nil
	default:
		return ModeNone, nil
	}
}
