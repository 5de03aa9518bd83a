package push

// Ledger counts push slots the stack will still accept before it must be
// refilled by transmit-complete events. 0 <= Available() <= Capacity() holds
// after every call. Not safe for concurrent use; the Dispatcher serializes
// access.
type Ledger struct {
	capacity  uint32
	available uint32
}

// NewLedger creates a full ledger.
func NewLedger(capacity uint32) *Ledger {
	return &Ledger{capacity: capacity, available: capacity}
}

// Reset refills the ledger to capacity.
func (l *Ledger) Reset() {
	l.available = l.capacity
}

// TryReserve takes one credit, or fails with ErrOutOfCredits.
func (l *Ledger) TryReserve() error {
	if l.available == 0 {
		return ErrOutOfCredits
	}
	l.available--
	return nil
}

// Release returns n credits, saturating at capacity. It reports how many
// were actually applied; duplicate or out-of-order acknowledgements are
// clamped away.
func (l *Ledger) Release(n uint32) uint32 {
	room := l.capacity - l.available
	if n > room {
		n = room
	}
	l.available += n
	return n
}

// Available returns the current credit count.
func (l *Ledger) Available() uint32 {
	return l.available
}

// Capacity returns the credit ceiling.
func (l *Ledger) Capacity() uint32 {
	return l.capacity
}
