package push

import "fmt"

// ConnHandle identifies the link to the peer.
type ConnHandle uint16

// InvalidConnHandle is the "no connection" sentinel.
const InvalidConnHandle ConnHandle = 0xFFFF

func (h ConnHandle) String() string {
	if h == InvalidConnHandle {
		return "invalid"
	}
	return fmt.Sprintf("0x%04X", uint16(h))
}

// LinkState is the state of the single peer link.
type LinkState uint8

const (
	StateDisconnected LinkState = iota
	StateConnected
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Tracker owns the identity of the single active connection. The epoch
// changes on every transition, so work started on one connection can tell
// whether it is still the same link.
type Tracker struct {
	state  LinkState
	handle ConnHandle
	epoch  uint64
}

// NewTracker returns a tracker in the Disconnected state.
func NewTracker() *Tracker {
	return &Tracker{handle: InvalidConnHandle}
}

// Connect moves to Connected(h). It reports the handle that was replaced if
// a connect arrived without a disconnect for the previous link.
func (t *Tracker) Connect(h ConnHandle) (replaced ConnHandle, wasConnected bool) {
	replaced, wasConnected = t.handle, t.state == StateConnected
	t.state = StateConnected
	t.handle = h
	t.epoch++
	return replaced, wasConnected
}

// Disconnect moves to Disconnected whichever handle is given. It reports
// whether a link was up under a different handle.
func (t *Tracker) Disconnect(h ConnHandle) (mismatch bool) {
	mismatch = t.state == StateConnected && t.handle != h
	if t.state == StateConnected {
		t.epoch++
	}
	t.state = StateDisconnected
	t.handle = InvalidConnHandle
	return mismatch
}

// Current returns the active handle, if any.
func (t *Tracker) Current() (ConnHandle, bool) {
	return t.handle, t.state == StateConnected
}

// State returns the link state.
func (t *Tracker) State() LinkState {
	return t.state
}

// Epoch returns the transition counter.
func (t *Tracker) Epoch() uint64 {
	return t.epoch
}
