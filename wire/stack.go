package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/wire/att"
	"github.com/user/estc-blue/wire/gatt"
)

// ErrNotConnected is returned by SubmitPush when the handle is not the
// active link.
var ErrNotConnected = errors.New("wire: not connected")

// queued is one push PDU waiting in the hardware queue
type queued struct {
	opcode uint8
	handle uint16
	pdu    []byte
}

// Stack is a simulated single-link GATT server stack. It owns the attribute
// and subscription stores, a bounded push queue drained once per connection
// interval, and delivers stack events to a push.EventHandler.
//
// Events are always delivered without holding the stack lock, so handlers
// may call back into SubmitPush.
type Stack struct {
	config      *SimulationConfig
	sim         *Simulator
	db          *gatt.AttributeDatabase
	subs        *gatt.SubscriptionStore
	indications *att.RequestTracker
	events      *eventRouter

	mu         sync.Mutex
	connected  bool
	conn       push.ConnHandle
	nextConn   push.ConnHandle
	peer       *Peer
	queue      []queued
	linkStats  LinkStats
	lastReason uint8
}

// LinkStats counts what the simulated stack did with pushes
type LinkStats struct {
	Queued        uint64
	QueueFull     uint64
	Refused       uint64
	Delivered     uint64
	AcksLost      uint64
	Confirmed     uint64
	IndicationsTO uint64
	Connections   uint64
}

// NewStack creates a stack serving db. config may be nil for defaults.
func NewStack(config *SimulationConfig, db *gatt.AttributeDatabase) (*Stack, error) {
	if config == nil {
		config = DefaultSimulationConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("wire: attribute database is required")
	}

	return &Stack{
		config:      config,
		sim:         NewSimulator(config),
		db:          db,
		subs:        gatt.NewSubscriptionStore(),
		indications: att.NewRequestTracker(config.TransactionTimeout),
		events:      newEventRouter(),
	}, nil
}

// SetClock replaces the time source used for indication timeouts
func (s *Stack) SetClock(now func() time.Time) {
	s.indications.SetClock(now)
}

// SetEventHandler registers the consumer of stack events
func (s *Stack) SetEventHandler(h push.EventHandler) {
	s.events.set(h)
}

// Database returns the attribute store
func (s *Stack) Database() *gatt.AttributeDatabase {
	return s.db
}

// Subscriptions returns the per-connection CCCD store
func (s *Stack) Subscriptions() *gatt.SubscriptionStore {
	return s.subs
}

// Config returns the simulation config
func (s *Stack) Config() *SimulationConfig {
	return s.config
}

// Connection returns the active connection handle, if any
func (s *Stack) Connection() (push.ConnHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.connected
}

// Stats returns a copy of the link counters
func (s *Stack) Stats() LinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkStats
}

// LastDisconnectReason returns the HCI reason of the most recent disconnect
func (s *Stack) LastDisconnectReason() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReason
}

// QueueDepth returns the number of pushes waiting for the next interval
func (s *Stack) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Connect accepts a connection from peer, replacing any current link.
// Subscriptions start empty: nothing is bonded.
func (s *Stack) Connect(peer *Peer) (push.ConnHandle, error) {
	if peer == nil {
		return push.InvalidConnHandle, fmt.Errorf("wire: peer is required")
	}

	s.mu.Lock()
	var dropped []push.Event
	if s.connected {
		dropped = append(dropped, s.dropLocked(ReasonLocalHostTerminated))
	}

	h := s.nextConn
	s.nextConn++
	if s.nextConn == push.InvalidConnHandle {
		s.nextConn = 0
	}
	s.conn = h
	s.connected = true
	s.peer = peer
	s.linkStats.Connections++
	s.mu.Unlock()

	peer.attach(s, h)
	logger.Debug(linkPrefix(h), "connected peer %s", peer.ID())

	s.events.deliver(append(dropped, push.ConnectEvent(h))...)
	return h, nil
}

// Disconnect tears down the active link with an HCI reason
func (s *Stack) Disconnect(reason uint8) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	ev := s.dropLocked(reason)
	s.mu.Unlock()

	s.events.deliver(ev)
	return nil
}

// dropLocked clears link state. Caller holds s.mu.
func (s *Stack) dropLocked(reason uint8) push.Event {
	h := s.conn
	s.connected = false
	s.conn = push.InvalidConnHandle
	s.queue = nil
	s.lastReason = reason
	s.indications.CancelPending()
	s.subs.Clear(uint16(h))
	if s.peer != nil {
		s.peer.detach()
		s.peer = nil
	}

	logger.Debug(linkPrefix(h), "disconnected: %s (0x%02X)", ReasonName(reason), reason)
	return push.DisconnectEvent(h, reason)
}

// SubmitPush queues a notification or indication for the next connection
// interval. Errors are *att.Error values with the usual stack meanings:
// InsufficientResources for a full queue, CCCDImproperlyConfigured when the
// peer is not subscribed, ProcedureAlreadyInProgress for a second
// outstanding indication.
func (s *Stack) SubmitPush(conn push.ConnHandle, handle uint16, mode push.Mode, value []byte) error {
	var opcode uint8
	switch mode {
	case push.Notify:
		opcode = att.OpHandleValueNotification
	case push.Indicate:
		opcode = att.OpHandleValueIndication
	default:
		return fmt.Errorf("wire: cannot push in mode %s", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || conn != s.conn {
		return ErrNotConnected
	}
	if len(value) > DefaultMTU-3 {
		return att.NewError(att.ErrInvalidAttributeValueLength, opcode, handle)
	}
	if !s.subscribedLocked(handle, mode) {
		return att.NewError(att.ErrCCCDImproperlyConfigured, opcode, handle)
	}
	if len(s.queue) >= s.config.QueueSize {
		s.linkStats.QueueFull++
		return att.NewError(att.ErrInsufficientResources, opcode, handle)
	}
	if s.sim.ShouldRefuseSubmit() {
		s.linkStats.Refused++
		return att.NewError(att.ErrUnlikelyError, opcode, handle)
	}
	if mode == push.Indicate {
		if err := s.indications.StartRequest(opcode, handle, 0); err != nil {
			return err
		}
	}

	var pkt interface{}
	if mode == push.Notify {
		pkt = &att.HandleValueNotification{Handle: handle, Value: value}
	} else {
		pkt = &att.HandleValueIndication{Handle: handle, Value: value}
	}
	pdu, err := att.EncodePacket(pkt)
	if err != nil {
		return err
	}

	s.queue = append(s.queue, queued{opcode: opcode, handle: handle, pdu: pdu})
	s.linkStats.Queued++
	return nil
}

// subscribedLocked checks the CCCD that follows the value handle the way
// the stack does before accepting a push. Caller holds s.mu.
func (s *Stack) subscribedLocked(valueHandle uint16, mode push.Mode) bool {
	cccd := s.cccdFor(valueHandle)
	if cccd == 0 {
		return false
	}
	switch mode {
	case push.Notify:
		return s.subs.IsNotifyEnabled(uint16(s.conn), cccd)
	case push.Indicate:
		return s.subs.IsIndicateEnabled(uint16(s.conn), cccd)
	}
	return false
}

// cccdFor finds the CCCD belonging to a characteristic value handle: the
// first CCCD after it and before the next characteristic declaration.
func (s *Stack) cccdFor(valueHandle uint16) uint16 {
	for h := valueHandle + 1; h != 0; h++ {
		attr, err := s.db.GetAttribute(h)
		if err != nil {
			return 0
		}
		switch {
		case bytes.Equal(attr.Type, gatt.UUIDClientCharacteristicConfig):
			return h
		case bytes.Equal(attr.Type, gatt.UUIDCharacteristic),
			bytes.Equal(attr.Type, gatt.UUIDPrimaryService),
			bytes.Equal(attr.Type, gatt.UUIDSecondaryService):
			return 0
		}
	}
	return 0
}

func (s *Stack) isCCCD(handle uint16) bool {
	attr, err := s.db.GetAttribute(handle)
	return err == nil && bytes.Equal(attr.Type, gatt.UUIDClientCharacteristicConfig)
}

// ConnectionEvent runs one connection interval: queued pushes go over the
// air, completed notifications are reported, and an indication whose
// confirmation is overdue is reported as a timeout.
func (s *Stack) ConnectionEvent() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	peer := s.peer
	sent := s.queue
	s.queue = nil
	s.mu.Unlock()

	var completed uint32
	for _, q := range sent {
		loseConfirm := q.opcode == att.OpHandleValueIndication && s.sim.ShouldLoseConfirm()
		peer.receive(q.pdu, !loseConfirm)

		s.mu.Lock()
		s.linkStats.Delivered++
		s.mu.Unlock()

		// indications complete on confirmation
		if q.opcode == att.OpHandleValueNotification {
			completed++
		}
	}

	var events []push.Event
	if completed > 0 {
		if s.sim.ShouldLoseAck() {
			s.mu.Lock()
			s.linkStats.AcksLost++
			s.mu.Unlock()
			logger.Trace(linkPrefix(conn), "dropped completion report for %d pushes", completed)
		} else {
			events = append(events, push.TransmitCompleteEvent(conn, completed))
		}
	}

	if expired, ok := s.indications.Expire(); ok {
		s.mu.Lock()
		s.linkStats.IndicationsTO++
		s.mu.Unlock()
		logger.Debug(linkPrefix(conn), "indication on 0x%04X not confirmed within %v",
			expired.Handle, expired.Deadline.Sub(expired.SentAt))
		events = append(events, push.TimeoutEvent(conn, push.TimeoutATT))
	}

	s.events.deliver(events...)
}

// Run drives connection events every ConnectionInterval until ctx is done
func (s *Stack) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.ConnectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ConnectionEvent()
		}
	}
}

// handleConfirmation completes the outstanding indication for conn
func (s *Stack) handleConfirmation(conn push.ConnHandle) error {
	s.mu.Lock()
	if !s.connected || conn != s.conn {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mu.Unlock()

	req, err := s.indications.CompleteRequest(att.OpHandleValueConfirmation)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.linkStats.Confirmed++
	s.mu.Unlock()
	logger.Trace(linkPrefix(conn), "indication on 0x%04X confirmed", req.Handle)

	s.events.deliver(push.TransmitCompleteEvent(conn, 1))
	return nil
}

// handleRequest serves a client ATT request PDU and returns the response
// PDU, or nil for commands.
func (s *Stack) handleRequest(conn push.ConnHandle, data []byte) ([]byte, error) {
	s.mu.Lock()
	ok := s.connected && conn == s.conn
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotConnected
	}

	pkt, err := att.DecodePacket(data)
	if err != nil {
		return nil, err
	}

	switch p := pkt.(type) {
	case *att.ReadRequest:
		value, err := s.read(conn, p.Handle)
		if err != nil {
			return errorPDU(att.OpReadRequest, p.Handle, err)
		}
		return att.EncodePacket(&att.ReadResponse{Value: value})

	case *att.WriteRequest:
		if err := s.write(conn, p.Handle, p.Value); err != nil {
			return errorPDU(att.OpWriteRequest, p.Handle, err)
		}
		return att.EncodePacket(&att.WriteResponse{})

	case *att.WriteCommand:
		if err := s.write(conn, p.Handle, p.Value); err != nil {
			logger.Debug(linkPrefix(conn), "write command on 0x%04X dropped: %v", p.Handle, err)
		}
		return nil, nil

	case *att.HandleValueConfirmation:
		return nil, s.handleConfirmation(conn)

	default:
		return errorPDU(data[0], 0, att.NewError(att.ErrRequestNotSupported, data[0], 0))
	}
}

func (s *Stack) read(conn push.ConnHandle, handle uint16) ([]byte, error) {
	attr, err := s.db.GetAttribute(handle)
	if err != nil {
		return nil, err
	}
	if attr.Permissions&gatt.PermReadable == 0 {
		return nil, att.NewError(att.ErrReadNotPermitted, att.OpReadRequest, handle)
	}
	if bytes.Equal(attr.Type, gatt.UUIDClientCharacteristicConfig) {
		value, err := s.subs.ReadSubscriptionConfig(uint16(conn), handle)
		if errors.Is(err, gatt.ErrSystemAttributesMissing) {
			return gatt.EncodeMode(gatt.ModeNone), nil
		}
		return value, err
	}
	return attr.Value, nil
}

func (s *Stack) write(conn push.ConnHandle, handle uint16, value []byte) error {
	attr, err := s.db.GetAttribute(handle)
	if err != nil {
		return att.NewError(att.ErrInvalidHandle, att.OpWriteRequest, handle)
	}
	if attr.Permissions&gatt.PermWritable == 0 {
		return att.NewError(att.ErrWriteNotPermitted, att.OpWriteRequest, handle)
	}
	if s.isCCCD(handle) {
		return s.subs.WriteSubscriptionConfig(uint16(conn), handle, value)
	}
	return s.db.WriteValue(handle, 0, value)
}

func errorPDU(opcode uint8, handle uint16, err error) ([]byte, error) {
	code := att.GetErrorCode(err)
	if code == 0 {
		code = att.ErrUnlikelyError
	}
	return att.EncodePacket(&att.ErrorResponse{RequestOpcode: opcode, Handle: handle, ErrorCode: code})
}

func linkPrefix(h push.ConnHandle) string {
	return fmt.Sprintf("<conn %s> wire", h)
}
