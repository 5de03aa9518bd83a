package gatt

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/user/estc-blue/wire/att"
)

func TestAttributeDatabaseBasics(t *testing.T) {
	db := NewAttributeDatabase()

	handle1 := db.AddAttribute(UUIDPrimaryService, []byte{0x01, 0x18}, PermReadable)
	handle2 := db.AddAttribute(UUIDCharacteristic, []byte{0x00}, PermReadable)
	handle3 := db.AddAttribute(UUID16(0x2A00), []byte("Device Name"), PermReadable|PermWritable)

	// Handles are sequential starting from 1
	if handle1 != 0x0001 {
		t.Errorf("First handle = 0x%04X, want 0x0001", handle1)
	}
	if handle2 != 0x0002 {
		t.Errorf("Second handle = 0x%04X, want 0x0002", handle2)
	}
	if handle3 != 0x0003 {
		t.Errorf("Third handle = 0x%04X, want 0x0003", handle3)
	}

	if db.Count() != 3 {
		t.Errorf("Count = %d, want 3", db.Count())
	}

	handles := db.GetAllHandles()
	if len(handles) != 3 || handles[0] != 1 || handles[2] != 3 {
		t.Errorf("GetAllHandles = %v, want [1 2 3]", handles)
	}
}

func TestGetAttribute(t *testing.T) {
	db := NewAttributeDatabase()

	value := []byte("Test Value")
	handle := db.AddAttribute(UUID16(0x2A00), value, PermReadable)

	attr, err := db.GetAttribute(handle)
	if err != nil {
		t.Fatalf("GetAttribute failed: %v", err)
	}
	if attr.Handle != handle {
		t.Errorf("Handle = 0x%04X, want 0x%04X", attr.Handle, handle)
	}
	if string(attr.Value) != string(value) {
		t.Errorf("Value = %s, want %s", string(attr.Value), string(value))
	}
	if attr.Permissions != PermReadable {
		t.Errorf("Permissions = 0x%02X, want 0x%02X", attr.Permissions, PermReadable)
	}

	// Copies must not alias the stored value
	attr.Value[0] = 'X'
	again, _ := db.ReadValue(handle)
	if again[0] != 'T' {
		t.Error("GetAttribute returned an aliased value")
	}

	_, err = db.GetAttribute(0x9999)
	if !att.IsATTError(err, att.ErrInvalidHandle) {
		t.Errorf("GetAttribute(0x9999) error = %v, want Invalid Handle", err)
	}
}

func TestWriteValueWithOffset(t *testing.T) {
	db := NewAttributeDatabase()
	handle := db.Register(UUID16(0xABBB), PermReadable|PermWritable, []byte{0x01, 0x02}, 4)

	if err := db.WriteValue(handle, 1, []byte{0xAA, 0xBB, 0xCC}); err != nil {
		t.Fatalf("WriteValue failed: %v", err)
	}
	value, _ := db.ReadValue(handle)
	if !bytes.Equal(value, []byte{0x01, 0xAA, 0xBB, 0xCC}) {
		t.Errorf("value = %X, want 01AABBCC", value)
	}

	// Shorter write at offset 0 truncates
	if err := db.WriteValue(handle, 0, []byte{0x07}); err != nil {
		t.Fatalf("WriteValue failed: %v", err)
	}
	value, _ = db.ReadValue(handle)
	if !bytes.Equal(value, []byte{0x07}) {
		t.Errorf("value = %X, want 07", value)
	}

	tests := []struct {
		name   string
		handle uint16
		offset int
		data   []byte
		code   uint8
	}{
		{"unknown handle", 0x0099, 0, []byte{1}, att.ErrInvalidHandle},
		{"offset past end", handle, 2, []byte{1}, att.ErrInvalidOffset},
		{"negative offset", handle, -1, []byte{1}, att.ErrInvalidOffset},
		{"too long", handle, 0, []byte{1, 2, 3, 4, 5}, att.ErrInvalidAttributeValueLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.WriteValue(tt.handle, tt.offset, tt.data)
			if !att.IsATTError(err, tt.code) {
				t.Errorf("WriteValue error = %v, want code 0x%02X", err, tt.code)
			}
		})
	}
}

func TestFindAttributesByType(t *testing.T) {
	db := NewAttributeDatabase()
	db.AddAttribute(UUIDPrimaryService, UUID16(0xABBA), PermReadable)
	db.AddAttribute(UUIDCharacteristic, []byte{0x02, 0x03, 0x00}, PermReadable)
	db.AddAttribute(UUIDClientCharacteristicConfig, []byte{0, 0}, PermReadable|PermWritable)
	db.AddAttribute(UUIDClientCharacteristicConfig, []byte{0, 0}, PermReadable|PermWritable)

	found := db.FindAttributesByType(0x0001, 0xFFFF, UUIDClientCharacteristicConfig)
	if len(found) != 2 || found[0] != 3 || found[1] != 4 {
		t.Errorf("FindAttributesByType = %v, want [3 4]", found)
	}
}

func TestVendorUUID(t *testing.T) {
	base := uuid.MustParse("A5DB0000-03AB-450D-B840-4B3F25293BAD")
	got := VendorUUID(base, 0xABBA)

	if got.String() != "a5dbabba-03ab-450d-b840-4b3f25293bad" {
		t.Errorf("VendorUUID = %s", got)
	}

	le := UUIDBytes(got)
	want := []byte{0xAD, 0x3B, 0x29, 0x25, 0x3F, 0x4B, 0x40, 0xB8, 0x0D, 0x45, 0xAB, 0x03, 0xBA, 0xAB, 0xDB, 0xA5}
	if !bytes.Equal(le, want) {
		t.Errorf("UUIDBytes = %X, want %X", le, want)
	}

	if UUIDString(le) != got.String() {
		t.Errorf("UUIDString = %s, want %s", UUIDString(le), got)
	}
	if UUIDString(UUID16(0x2902)) != "0x2902" {
		t.Errorf("UUIDString(0x2902) = %s", UUIDString(UUID16(0x2902)))
	}
}
