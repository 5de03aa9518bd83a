// Package estc is the ESTC custom GATT service: a read/write characteristic
// holding a 16-bit value and a "hello" characteristic that is pushed to the
// peer as a notification, alternating between "Hello" and "olleH".
package estc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/wire/gatt"
)

// 16-bit aliases placed into the vendor base UUID
const (
	ServiceUUID16 = 0xABBA
	Char1UUID16   = 0xABBB
	HelloUUID16   = 0xABBC
)

// BaseUUID is the vendor-specific base the service UUIDs derive from
var BaseUUID = uuid.MustParse("A5DB0000-03AB-450D-B840-4B3F25293BAD")

const (
	Char1UserDescription = "Custom Characteristic"
	Char1Len             = 2
)

var helloValues = [][]byte{[]byte("Hello"), []byte("olleH")}

// UUID returns the 128-bit UUID for a 16-bit alias, in ATT byte order
func UUID(short uint16) []byte {
	return gatt.UUIDBytes(gatt.VendorUUID(BaseUUID, short))
}

// Definition returns the service layout
func Definition() gatt.Service {
	return gatt.Service{
		UUID:    UUID(ServiceUUID16),
		Primary: true,
		Characteristics: []gatt.Characteristic{
			{
				UUID:            UUID(Char1UUID16),
				Properties:      gatt.PropRead | gatt.PropWrite,
				Value:           make([]byte, Char1Len),
				UserDescription: Char1UserDescription,
			},
			{
				UUID:       UUID(HelloUUID16),
				Properties: gatt.PropRead | gatt.PropNotify,
				Value:      helloValues[0],
				Format:     &gatt.PresentationFormat{Format: gatt.FormatUTF8S},
			},
		},
	}
}

// Service owns the ESTC attributes and the push dispatcher for the hello
// characteristic.
type Service struct {
	db         *gatt.AttributeDatabase
	handles    *gatt.ServiceHandles
	char1      gatt.CharHandles
	hello      gatt.CharHandles
	dispatcher *push.Dispatcher

	mu       sync.Mutex
	helloIdx int
}

// New registers the service in db and creates its dispatcher over the given
// subscription store and transport.
func New(db *gatt.AttributeDatabase, subs push.SubscriptionSource, transport push.Transport, cfg push.Config) (*Service, error) {
	handles, err := gatt.AddService(db, Definition())
	if err != nil {
		return nil, fmt.Errorf("estc: register service: %w", err)
	}

	char1, err := handles.Char(UUID(Char1UUID16))
	if err != nil {
		return nil, err
	}
	hello, err := handles.Char(UUID(HelloUUID16))
	if err != nil {
		return nil, err
	}

	if cfg.Name == "" {
		cfg.Name = "estc"
	}
	dispatcher, err := push.NewDispatcher(cfg, subs, db, transport)
	if err != nil {
		return nil, err
	}

	logger.Debug("estc", "service 0x%04X registered at 0x%04X-0x%04X",
		ServiceUUID16, handles.StartHandle, handles.EndHandle)
	logger.Debug("estc", "char1 value 0x%04X, hello value 0x%04X cccd 0x%04X",
		char1.Value, hello.Value, hello.CCCD)

	return &Service{
		db:         db,
		handles:    handles,
		char1:      char1,
		hello:      hello,
		dispatcher: dispatcher,
	}, nil
}

// Handles returns the registration record
func (s *Service) Handles() *gatt.ServiceHandles { return s.handles }

// Char1 returns the custom characteristic's handles
func (s *Service) Char1() gatt.CharHandles { return s.char1 }

// Hello returns the hello characteristic's handles
func (s *Service) Hello() gatt.CharHandles { return s.hello }

// Dispatcher returns the push dispatcher
func (s *Service) Dispatcher() *push.Dispatcher { return s.dispatcher }

// HandleEvent implements push.EventHandler.
func (s *Service) HandleEvent(ev push.Event) {
	s.OnEvent(ev)
}

// OnEvent forwards a stack event to the dispatcher
func (s *Service) OnEvent(ev push.Event) {
	switch ev.Kind {
	case push.EventConnect:
		logger.Info("estc", "Connected")
	case push.EventDisconnect:
		logger.Info("estc", "Disconnected")
	}
	s.dispatcher.HandleEvent(ev)
}

// HelloNotify pushes the next hello value as a notification. The value only
// advances when the push was accepted, so a skipped push retries the same
// value next time.
func (s *Service) HelloNotify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := helloValues[s.helloIdx]
	err := s.dispatcher.Push(push.Target{Char: s.hello, Mode: push.Notify, Value: value})
	if err != nil {
		return err
	}

	// keep the readable value in step with what the peer was sent
	if err := s.db.SetAttributeValue(s.hello.Value, value); err != nil {
		logger.Warn("estc", "hello value not stored: %v", err)
	}
	logger.Debug("estc", "notified with %q", value)
	s.helloIdx = (s.helloIdx + 1) % len(helloValues)
	return nil
}

// NextHello returns the value the next HelloNotify will send
func (s *Service) NextHello() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(helloValues[s.helloIdx])
}

// UpdateCharacteristic1 stores the low 16 bits of value, little-endian
func (s *Service) UpdateCharacteristic1(value int32) error {
	buf := make([]byte, Char1Len)
	binary.LittleEndian.PutUint16(buf, uint16(value))
	if err := s.db.SetAttributeValue(s.char1.Value, buf); err != nil {
		return fmt.Errorf("estc: update char1: %w", err)
	}
	return nil
}

// Characteristic1 reads back the custom characteristic
func (s *Service) Characteristic1() (uint16, error) {
	value, err := s.db.ReadValue(s.char1.Value)
	if err != nil {
		return 0, err
	}
	if len(value) != Char1Len {
		return 0, fmt.Errorf("estc: char1 holds %d bytes", len(value))
	}
	return binary.LittleEndian.Uint16(value), nil
}

// StatusProto returns a snapshot of the service for logging and the console
func (s *Service) StatusProto() (*structpb.Struct, error) {
	st := s.dispatcher.Stats()
	char1, err := s.Characteristic1()
	if err != nil {
		return nil, err
	}

	handle := float64(-1)
	if st.State == push.StateConnected {
		handle = float64(st.Handle)
	}

	return structpb.NewStruct(map[string]interface{}{
		"state":      st.State.String(),
		"connection": handle,
		"credits":    float64(st.Credits),
		"capacity":   float64(st.Capacity),
		"next_hello": s.NextHello(),
		"char1":      float64(char1),
		"counters": map[string]interface{}{
			"submitted":           float64(st.Submitted),
			"no_connection":       float64(st.NoConnection),
			"not_subscribed":      float64(st.NotSubscribed),
			"subscription_errors": float64(st.SubscriptionErrors),
			"out_of_credits":      float64(st.OutOfCredits),
			"rejected":            float64(st.Rejected),
			"acked":               float64(st.Acked),
			"stale_acks":          float64(st.StaleAcks),
			"timeouts":            float64(st.Timeouts),
		},
	})
}
