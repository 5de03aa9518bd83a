package att

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTransactionTimeout is the ATT transaction timeout (Bluetooth Core Spec Vol 3, Part F, Section 3.3.3).
const DefaultTransactionTimeout = 30 * time.Second

// RequestTracker tracks the single outstanding server-initiated transaction
// (an indication waiting for its confirmation). ATT allows only one at a time
// per bearer. Expiry is polled by the owner on each connection event rather
// than driven by a timer goroutine, so a simulated clock can drive it.
type RequestTracker struct {
	mu             sync.Mutex
	pending        *PendingRequest
	defaultTimeout time.Duration
	now            func() time.Time
}

// PendingRequest represents a single outstanding ATT transaction
type PendingRequest struct {
	Opcode   byte
	Handle   uint16
	SentAt   time.Time
	Deadline time.Time
}

// NewRequestTracker creates a new request tracker
func NewRequestTracker(timeout time.Duration) *RequestTracker {
	if timeout == 0 {
		timeout = DefaultTransactionTimeout
	}
	return &RequestTracker{
		defaultTimeout: timeout,
		now:            time.Now,
	}
}

// SetClock replaces the time source (tests and simulated time)
func (rt *RequestTracker) SetClock(now func() time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.now = now
}

// StartRequest registers a new transaction.
// Returns an ErrProcedureAlreadyInProgress ATT error if one is already pending.
func (rt *RequestTracker) StartRequest(opcode byte, handle uint16, timeout time.Duration) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pending != nil {
		return NewError(ErrProcedureAlreadyInProgress, opcode, rt.pending.Handle)
	}

	if timeout == 0 {
		timeout = rt.defaultTimeout
	}

	sent := rt.now()
	rt.pending = &PendingRequest{
		Opcode:   opcode,
		Handle:   handle,
		SentAt:   sent,
		Deadline: sent.Add(timeout),
	}
	return nil
}

// CompleteRequest matches a response opcode against the pending transaction
// and clears it. The completed request is returned.
func (rt *RequestTracker) CompleteRequest(responseOpcode byte) (PendingRequest, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pending == nil {
		return PendingRequest{}, fmt.Errorf("no pending ATT request for response opcode 0x%02X", responseOpcode)
	}

	expected := GetResponseOpcode(rt.pending.Opcode)
	if responseOpcode != expected && responseOpcode != OpErrorResponse {
		return PendingRequest{}, fmt.Errorf("unexpected response opcode 0x%02X for request 0x%02X (expected 0x%02X)",
			responseOpcode, rt.pending.Opcode, expected)
	}

	done := *rt.pending
	rt.pending = nil
	return done, nil
}

// Expire clears and returns the pending transaction if its deadline passed
func (rt *RequestTracker) Expire() (PendingRequest, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pending == nil || rt.now().Before(rt.pending.Deadline) {
		return PendingRequest{}, false
	}

	expired := *rt.pending
	rt.pending = nil
	return expired, true
}

// HasPending returns true if there is a pending request
func (rt *RequestTracker) HasPending() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.pending != nil
}

// GetPendingInfo returns info about the pending request (for debugging)
func (rt *RequestTracker) GetPendingInfo() (opcode byte, handle uint16, duration time.Duration, hasPending bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pending == nil {
		return 0, 0, 0, false
	}

	return rt.pending.Opcode, rt.pending.Handle, rt.now().Sub(rt.pending.SentAt), true
}

// CancelPending drops any pending request (used during disconnection).
// Returns true if something was pending.
func (rt *RequestTracker) CancelPending() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	had := rt.pending != nil
	rt.pending = nil
	return had
}
