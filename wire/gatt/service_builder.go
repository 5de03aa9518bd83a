package gatt

import (
	"encoding/binary"
	"fmt"
)

// Presentation format values (Bluetooth Assigned Numbers, 2.4.1)
const (
	FormatUint16 = 0x06
	FormatSint32 = 0x10
	FormatUTF8S  = 0x19
)

// Service represents a high-level GATT service definition
type Service struct {
	UUID            []byte // Service UUID (2 or 16 bytes, little-endian)
	Primary         bool
	Characteristics []Characteristic
}

// Characteristic represents a high-level GATT characteristic definition
type Characteristic struct {
	UUID       []byte
	Properties uint8
	Value      []byte // Initial value
	MaxLen     int    // 0 means len(Value)

	// UserDescription adds a 0x2901 descriptor when non-empty
	UserDescription string
	// Format adds a 0x2904 descriptor when non-nil
	Format *PresentationFormat

	Descriptors []Descriptor
}

// PresentationFormat is the 7-byte Characteristic Presentation Format value
type PresentationFormat struct {
	Format      uint8
	Exponent    int8
	Unit        uint16
	Namespace   uint8
	Description uint16
}

// Bytes encodes the presentation format descriptor value
func (f PresentationFormat) Bytes() []byte {
	b := make([]byte, 7)
	b[0] = f.Format
	b[1] = byte(f.Exponent)
	binary.LittleEndian.PutUint16(b[2:4], f.Unit)
	b[4] = f.Namespace
	binary.LittleEndian.PutUint16(b[5:7], f.Description)
	return b
}

// Descriptor represents a GATT descriptor
type Descriptor struct {
	UUID  []byte
	Value []byte
}

// CharHandles are the handles assigned to one characteristic
type CharHandles struct {
	Declaration uint16
	Value       uint16
	UserDesc    uint16 // 0 if absent
	CCCD        uint16 // 0 if the characteristic cannot push
	Format      uint16 // 0 if absent
}

// CanPush reports whether the characteristic has a CCCD
func (h CharHandles) CanPush() bool {
	return h.CCCD != 0
}

// ServiceHandles is the registration record for a built service. It is not
// modified after setup.
type ServiceHandles struct {
	Service     uint16
	StartHandle uint16
	EndHandle   uint16
	Chars       map[string]CharHandles // UUIDString(char UUID) -> handles
}

// Char looks up a characteristic's handles by UUID
func (s *ServiceHandles) Char(charUUID []byte) (CharHandles, error) {
	h, ok := s.Chars[UUIDString(charUUID)]
	if !ok {
		return CharHandles{}, fmt.Errorf("gatt: characteristic %s not found in service", UUIDString(charUUID))
	}
	return h, nil
}

// BuildAttributeDatabase converts high-level service definitions into a new attribute database
func BuildAttributeDatabase(services []Service) (*AttributeDatabase, []*ServiceHandles, error) {
	db := NewAttributeDatabase()
	infos := make([]*ServiceHandles, 0, len(services))

	for _, service := range services {
		info, err := AddService(db, service)
		if err != nil {
			return nil, nil, err
		}
		infos = append(infos, info)
	}

	return db, infos, nil
}

// AddService adds a single service and its characteristics to db
func AddService(db *AttributeDatabase, service Service) (*ServiceHandles, error) {
	if len(service.UUID) != 2 && len(service.UUID) != 16 {
		return nil, fmt.Errorf("gatt: service UUID must be 2 or 16 bytes, got %d", len(service.UUID))
	}

	info := &ServiceHandles{
		Chars: make(map[string]CharHandles),
	}

	serviceType := UUIDSecondaryService
	if service.Primary {
		serviceType = UUIDPrimaryService
	}

	info.Service = db.AddAttribute(serviceType, service.UUID, PermReadable)
	info.StartHandle = info.Service

	for _, char := range service.Characteristics {
		key := UUIDString(char.UUID)
		if _, dup := info.Chars[key]; dup {
			return nil, fmt.Errorf("gatt: duplicate characteristic %s", key)
		}
		handles, err := addCharacteristic(db, char)
		if err != nil {
			return nil, err
		}
		info.Chars[key] = handles
	}

	info.EndHandle = db.lastHandle()
	return info, nil
}

// addCharacteristic adds a characteristic and its descriptors to the database
func addCharacteristic(db *AttributeDatabase, char Characteristic) (CharHandles, error) {
	var handles CharHandles

	if len(char.UUID) != 2 && len(char.UUID) != 16 {
		return handles, fmt.Errorf("gatt: characteristic UUID must be 2 or 16 bytes, got %d", len(char.UUID))
	}

	// Declaration: [Properties: 1 byte][Value Handle: 2 bytes][UUID]
	declValue := make([]byte, 3+len(char.UUID))
	declValue[0] = char.Properties
	binary.LittleEndian.PutUint16(declValue[1:3], db.lastHandle()+2)
	copy(declValue[3:], char.UUID)
	handles.Declaration = db.AddAttribute(UUIDCharacteristic, declValue, PermReadable)

	handles.Value = db.Register(char.UUID, determinePermissions(char.Properties), char.Value, char.MaxLen)

	if char.UserDescription != "" {
		handles.UserDesc = db.AddAttribute(UUIDCharUserDescription, []byte(char.UserDescription), PermReadable)
	}

	if char.Format != nil {
		handles.Format = db.AddAttribute(UUIDCharPresentationFormat, char.Format.Bytes(), PermReadable)
	}

	for _, desc := range char.Descriptors {
		db.AddAttribute(desc.UUID, desc.Value, PermReadable|PermWritable)
	}

	// The CCCD's value in the table is only a template; per-connection
	// values live in the SubscriptionStore.
	if char.Properties&(PropNotify|PropIndicate) != 0 {
		handles.CCCD = db.AddAttribute(UUIDClientCharacteristicConfig, EncodeMode(ModeNone), PermReadable|PermWritable)
	}

	return handles, nil
}

// determinePermissions converts characteristic properties to attribute permissions
func determinePermissions(properties uint8) uint8 {
	var perms uint8

	if properties&PropRead != 0 {
		perms |= PermReadable
	}

	if properties&(PropWrite|PropWriteWithoutResponse) != 0 {
		perms |= PermWritable
	}

	return perms
}
