package wire

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/wire/att"
	"github.com/user/estc-blue/wire/gatt"
)

// Received is one push the peer got over the air
type Received struct {
	Opcode uint8
	Handle uint16
	Value  []byte
	At     time.Time
}

// Peer is a simulated central. It speaks ATT to the stack it is connected
// to: CCCD writes, reads and writes of values, and confirmations for
// indications.
type Peer struct {
	id   uuid.UUID
	name string

	mu          sync.Mutex
	stack       *Stack
	conn        push.ConnHandle
	received    []Received
	autoConfirm bool
	unconfirmed int
}

// NewPeer creates a peer that confirms indications as soon as it gets them
func NewPeer(name string) *Peer {
	return &Peer{
		id:          uuid.New(),
		name:        name,
		conn:        push.InvalidConnHandle,
		autoConfirm: true,
	}
}

// ID returns the peer's identity
func (p *Peer) ID() string {
	return fmt.Sprintf("%s (%s)", p.name, p.id.String()[:8])
}

// Name returns the peer's display name
func (p *Peer) Name() string {
	return p.name
}

// SetAutoConfirm controls whether indications are confirmed on receipt.
// With it off, call Confirm.
func (p *Peer) SetAutoConfirm(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoConfirm = on
}

// Connected reports whether the peer has a link
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stack != nil
}

func (p *Peer) attach(s *Stack, h push.ConnHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = s
	p.conn = h
	p.unconfirmed = 0
}

func (p *Peer) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = nil
	p.conn = push.InvalidConnHandle
}

func (p *Peer) link() (*Stack, push.ConnHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stack == nil {
		return nil, push.InvalidConnHandle, ErrNotConnected
	}
	return p.stack, p.conn, nil
}

// request sends a client PDU and decodes the server's answer
func (p *Peer) request(pkt interface{}) (interface{}, error) {
	s, conn, err := p.link()
	if err != nil {
		return nil, err
	}

	data, err := att.EncodePacket(pkt)
	if err != nil {
		return nil, err
	}
	respData, err := s.handleRequest(conn, data)
	if err != nil || respData == nil {
		return nil, err
	}

	resp, err := att.DecodePacket(respData)
	if err != nil {
		return nil, err
	}
	if e, ok := resp.(*att.ErrorResponse); ok {
		return nil, att.FromResponse(e)
	}
	return resp, nil
}

// Subscribe writes the CCCD to select mode
func (p *Peer) Subscribe(cccd uint16, mode gatt.Mode) error {
	return p.Write(cccd, gatt.EncodeMode(mode))
}

// Write sends a Write Request
func (p *Peer) Write(handle uint16, value []byte) error {
	resp, err := p.request(&att.WriteRequest{Handle: handle, Value: value})
	if err != nil {
		return err
	}
	if _, ok := resp.(*att.WriteResponse); !ok {
		return fmt.Errorf("wire: unexpected response %T to write", resp)
	}
	return nil
}

// WriteCommand sends a Write Command (no response)
func (p *Peer) WriteCommand(handle uint16, value []byte) error {
	_, err := p.request(&att.WriteCommand{Handle: handle, Value: value})
	return err
}

// Read sends a Read Request
func (p *Peer) Read(handle uint16) ([]byte, error) {
	resp, err := p.request(&att.ReadRequest{Handle: handle})
	if err != nil {
		return nil, err
	}
	r, ok := resp.(*att.ReadResponse)
	if !ok {
		return nil, fmt.Errorf("wire: unexpected response %T to read", resp)
	}
	return r.Value, nil
}

// Confirm confirms the oldest unconfirmed indication
func (p *Peer) Confirm() error {
	p.mu.Lock()
	pending := p.unconfirmed
	p.mu.Unlock()
	if pending == 0 {
		return fmt.Errorf("wire: no indication to confirm")
	}

	if _, err := p.request(&att.HandleValueConfirmation{}); err != nil {
		return err
	}

	p.mu.Lock()
	if p.unconfirmed > 0 {
		p.unconfirmed--
	}
	p.mu.Unlock()
	return nil
}

// receive is called by the stack for each PDU it sends over the air.
// confirm=false models a confirmation lost on the way back.
func (p *Peer) receive(pdu []byte, confirm bool) {
	pkt, err := att.DecodePacket(pdu)
	if err != nil {
		logger.Warn("peer", "%s: bad PDU from server: %v", p.name, err)
		return
	}

	var r Received
	switch v := pkt.(type) {
	case *att.HandleValueNotification:
		r = Received{Opcode: att.OpHandleValueNotification, Handle: v.Handle, Value: v.Value}
	case *att.HandleValueIndication:
		r = Received{Opcode: att.OpHandleValueIndication, Handle: v.Handle, Value: v.Value}
	default:
		logger.Warn("peer", "%s: unexpected %T from server", p.name, pkt)
		return
	}
	r.At = time.Now()

	p.mu.Lock()
	p.received = append(p.received, r)
	sendConfirm := r.Opcode == att.OpHandleValueIndication && confirm && p.autoConfirm
	if r.Opcode == att.OpHandleValueIndication && confirm && !p.autoConfirm {
		p.unconfirmed++
	}
	p.mu.Unlock()

	logger.Trace("peer", "%s got %s on 0x%04X: %q", p.name, att.OpcodeNames[r.Opcode], r.Handle, r.Value)

	if sendConfirm {
		if _, err := p.request(&att.HandleValueConfirmation{}); err != nil {
			logger.Debug("peer", "%s: confirmation failed: %v", p.name, err)
		}
	}
}

// Received returns a copy of everything pushed to the peer
func (p *Peer) Received() []Received {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Received(nil), p.received...)
}

// ReceivedValues returns the values pushed on one handle, in order
func (p *Peer) ReceivedValues(handle uint16) []string {
	var out []string
	for _, r := range p.Received() {
		if r.Handle == handle {
			out = append(out, string(r.Value))
		}
	}
	return out
}

// Reset forgets received pushes
func (p *Peer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = nil
}
