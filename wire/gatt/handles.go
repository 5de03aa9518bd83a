package gatt

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/estc-blue/wire/att"
)

// Well-known GATT UUIDs (16-bit, little-endian)
var (
	UUIDPrimaryService   = []byte{0x00, 0x28} // 0x2800
	UUIDSecondaryService = []byte{0x01, 0x28} // 0x2801
	UUIDCharacteristic   = []byte{0x03, 0x28} // 0x2803

	UUIDCharUserDescription        = []byte{0x01, 0x29} // 0x2901
	UUIDClientCharacteristicConfig = []byte{0x02, 0x29} // 0x2902 (CCCD)
	UUIDCharPresentationFormat     = []byte{0x04, 0x29} // 0x2904
)

// Characteristic Properties (bitmask)
const (
	PropBroadcast            = 0x01
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
	PropIndicate             = 0x20
)

// Attribute permissions (not transmitted over the air, server-side only)
const (
	PermReadable = 0x01
	PermWritable = 0x02
)

// Attribute represents a single GATT attribute with a handle
type Attribute struct {
	Handle      uint16 // ATT handle (1-based, 0x0000 is reserved)
	Type        []byte // UUID (2 or 16 bytes, little-endian)
	Value       []byte // Current value
	MaxLen      int    // Maximum value length, 0 means len(initial value)
	Permissions uint8  // Read/Write permissions
}

// AttributeDatabase is the attribute store: handle-addressed values
// registered once at setup and updated in place afterwards.
type AttributeDatabase struct {
	mu         sync.RWMutex
	attributes map[uint16]*Attribute
	nextHandle uint16
}

// NewAttributeDatabase creates an empty attribute database
func NewAttributeDatabase() *AttributeDatabase {
	return &AttributeDatabase{
		attributes: make(map[uint16]*Attribute),
		nextHandle: 0x0001,
	}
}

// AddAttribute adds an attribute whose maximum length is its initial length
func (db *AttributeDatabase) AddAttribute(attrType []byte, value []byte, permissions uint8) uint16 {
	return db.Register(attrType, permissions, value, len(value))
}

// Register adds an attribute and assigns it the next handle
func (db *AttributeDatabase) Register(attrType []byte, permissions uint8, initial []byte, maxLen int) uint16 {
	db.mu.Lock()
	defer db.mu.Unlock()

	if maxLen < len(initial) {
		maxLen = len(initial)
	}

	handle := db.nextHandle
	db.nextHandle++

	db.attributes[handle] = &Attribute{
		Handle:      handle,
		Type:        append([]byte{}, attrType...),
		Value:       append([]byte{}, initial...),
		MaxLen:      maxLen,
		Permissions: permissions,
	}

	return handle
}

// GetAttribute retrieves a copy of an attribute by handle
func (db *AttributeDatabase) GetAttribute(handle uint16) (*Attribute, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return nil, att.NewError(att.ErrInvalidHandle, att.OpReadRequest, handle)
	}

	return &Attribute{
		Handle:      attr.Handle,
		Type:        append([]byte{}, attr.Type...),
		Value:       append([]byte{}, attr.Value...),
		MaxLen:      attr.MaxLen,
		Permissions: attr.Permissions,
	}, nil
}

// ReadValue returns a copy of the attribute's current value
func (db *AttributeDatabase) ReadValue(handle uint16) ([]byte, error) {
	attr, err := db.GetAttribute(handle)
	if err != nil {
		return nil, err
	}
	return attr.Value, nil
}

// WriteValue writes data at offset. The resulting value is truncated to
// offset+len(data), the same way a stack-held value is replaced.
func (db *AttributeDatabase) WriteValue(handle uint16, offset int, data []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return att.NewError(att.ErrInvalidHandle, att.OpWriteRequest, handle)
	}
	if offset < 0 || offset > len(attr.Value) {
		return att.NewError(att.ErrInvalidOffset, att.OpWriteRequest, handle)
	}
	if offset+len(data) > attr.MaxLen {
		return att.NewError(att.ErrInvalidAttributeValueLength, att.OpWriteRequest, handle)
	}

	value := make([]byte, offset+len(data))
	copy(value, attr.Value[:offset])
	copy(value[offset:], data)
	attr.Value = value
	return nil
}

// SetAttributeValue replaces an attribute's value
func (db *AttributeDatabase) SetAttributeValue(handle uint16, value []byte) error {
	return db.WriteValue(handle, 0, value)
}

// FindAttributesByType returns all handles with matching type UUID in a range
func (db *AttributeDatabase) FindAttributesByType(startHandle, endHandle uint16, attrType []byte) []uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var handles []uint16
	for h := startHandle; h <= endHandle && h < db.nextHandle; h++ {
		if attr, ok := db.attributes[h]; ok && bytes.Equal(attr.Type, attrType) {
			handles = append(handles, h)
		}
	}
	return handles
}

// GetAllHandles returns all handles in the database (sorted)
func (db *AttributeDatabase) GetAllHandles() []uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	handles := make([]uint16, 0, len(db.attributes))
	for h := uint16(0x0001); h < db.nextHandle; h++ {
		if _, ok := db.attributes[h]; ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// Count returns the number of attributes in the database
func (db *AttributeDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.attributes)
}

// lastHandle returns the most recently assigned handle
func (db *AttributeDatabase) lastHandle() uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextHandle - 1
}

// UUID16 creates a 16-bit UUID in little-endian format
func UUID16(val uint16) []byte {
	return []byte{byte(val), byte(val >> 8)}
}

// VendorUUID derives a 128-bit UUID from a vendor base by placing short in
// bytes 2-3 of the canonical form (the "xxxx" in A5DBxxxx-...).
func VendorUUID(base uuid.UUID, short uint16) uuid.UUID {
	u := base
	u[2] = byte(short >> 8)
	u[3] = byte(short)
	return u
}

// UUIDBytes converts a canonical UUID to the little-endian byte order ATT uses
func UUIDBytes(u uuid.UUID) []byte {
	b := make([]byte, len(u))
	for i := range u {
		b[i] = u[len(u)-1-i]
	}
	return b
}

// UUIDString formats an attribute type for display and map keys
func UUIDString(attrType []byte) string {
	switch len(attrType) {
	case 2:
		return fmt.Sprintf("0x%04X", uint16(attrType[0])|uint16(attrType[1])<<8)
	case 16:
		var u uuid.UUID
		for i := range u {
			u[i] = attrType[len(attrType)-1-i]
		}
		return u.String()
	default:
		return fmt.Sprintf("%x", attrType)
	}
}
