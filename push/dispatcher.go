package push

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/trace"
	"github.com/user/estc-blue/wire/gatt"
)

// Target identifies one push: which characteristic and which mode. When
// Value is nil the characteristic's stored value is pushed.
type Target struct {
	Char  gatt.CharHandles
	Mode  Mode
	Value []byte
}

// Transport submits a push to the stack. An error means the stack did not
// queue the push.
type Transport interface {
	SubmitPush(conn ConnHandle, handle uint16, mode Mode, value []byte) error
}

// ValueSource reads a characteristic's stored value.
type ValueSource interface {
	ReadValue(handle uint16) ([]byte, error)
}

// Stats is a point-in-time snapshot of a Dispatcher.
type Stats struct {
	State    LinkState
	Handle   ConnHandle
	Credits  uint32
	Capacity uint32
	Epoch    uint64

	Submitted          uint64
	NoConnection       uint64
	NotSubscribed      uint64
	SubscriptionErrors uint64
	OutOfCredits       uint64
	Rejected           uint64

	Acked             uint64
	StaleAcks         uint64
	Timeouts          uint64
	ForcedDisconnects uint64
}

// Dispatcher serializes push attempts against stack events for a single
// peer. Push and HandleEvent may be called from different goroutines.
type Dispatcher struct {
	cfg       Config
	subs      SubscriptionSource
	values    ValueSource
	transport Transport

	mu      sync.Mutex
	tracker *Tracker
	ledger  *Ledger
	stats   Stats
}

// NewDispatcher creates a dispatcher in the Disconnected state. values may
// be nil if every Target carries its own Value.
func NewDispatcher(cfg Config, subs SubscriptionSource, values ValueSource, transport Transport) (*Dispatcher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if subs == nil || transport == nil {
		return nil, fmt.Errorf("push: subscription source and transport are required")
	}

	return &Dispatcher{
		cfg:       cfg,
		subs:      subs,
		values:    values,
		transport: transport,
		tracker:   NewTracker(),
		ledger:    NewLedger(uint32(cfg.Capacity)),
	}, nil
}

// Push attempts one delivery. It never blocks waiting for credits: a
// backpressure error (see IsBackpressure) means the caller should retry on
// its own schedule.
func (d *Dispatcher) Push(t Target) error {
	if t.Mode != Notify && t.Mode != Indicate {
		return fmt.Errorf("%w: mode %s", ErrInvalidTarget, t.Mode)
	}
	if t.Char.Value == 0 {
		return fmt.Errorf("%w: no value handle", ErrInvalidTarget)
	}

	d.mu.Lock()
	conn, epoch, err := d.admit(t)
	credits := d.ledger.Available()
	d.mu.Unlock()

	if err != nil {
		d.pushDone(t, conn, 0, credits, err)
		return err
	}

	value := t.Value
	if value == nil {
		value, err = d.readValue(t.Char.Value)
		if err != nil {
			credits = d.rollback(epoch)
			d.pushDone(t, conn, 0, credits, err)
			return err
		}
	}

	if err := d.transport.SubmitPush(conn, t.Char.Value, t.Mode, value); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportRejected, err)
		d.mu.Lock()
		d.stats.Rejected++
		d.mu.Unlock()
		credits = d.rollback(epoch)
		d.pushDone(t, conn, len(value), credits, err)
		return err
	}

	d.mu.Lock()
	d.stats.Submitted++
	credits = d.ledger.Available()
	d.mu.Unlock()

	d.pushDone(t, conn, len(value), credits, nil)
	return nil
}

// admit runs the checks that must see a consistent tracker and ledger and
// reserves a credit. Caller holds d.mu.
func (d *Dispatcher) admit(t Target) (ConnHandle, uint64, error) {
	conn, ok := d.tracker.Current()
	if !ok {
		d.stats.NoConnection++
		return conn, 0, ErrNoActiveConnection
	}

	wants, err := Wants(d.subs, conn, t.Char, t.Mode)
	if err != nil {
		d.stats.SubscriptionErrors++
		return conn, 0, fmt.Errorf("%w: %w", ErrSubscriptionCheckFailed, err)
	}
	if !wants {
		d.stats.NotSubscribed++
		return conn, 0, ErrNotSubscribed
	}

	if err := d.ledger.TryReserve(); err != nil {
		d.stats.OutOfCredits++
		return conn, 0, err
	}
	return conn, d.tracker.Epoch(), nil
}

func (d *Dispatcher) readValue(handle uint16) ([]byte, error) {
	if d.values == nil {
		return nil, fmt.Errorf("%w: no value and no value source", ErrInvalidTarget)
	}
	value, err := d.values.ReadValue(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: read 0x%04X: %w", ErrInvalidTarget, handle, err)
	}
	return value, nil
}

// rollback returns a reserved credit if the connection it was reserved on
// is still the current one. A reconnect in between has already reset the
// ledger.
func (d *Dispatcher) rollback(epoch uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tracker.Epoch() == epoch {
		d.ledger.Release(1)
	}
	return d.ledger.Available()
}

func (d *Dispatcher) pushDone(t Target, conn ConnHandle, size int, credits uint32, err error) {
	switch {
	case err == nil:
		logger.Trace(d.cfg.Name, "%s 0x%04X on conn %s (%d bytes, %d credits left)",
			t.Mode, t.Char.Value, conn, size, credits)
	case IsBackpressure(err):
		logger.Trace(d.cfg.Name, "skip 0x%04X: %v", t.Char.Value, err)
	default:
		logger.Warn(d.cfg.Name, "push 0x%04X on conn %s failed: %v", t.Char.Value, conn, err)
	}

	d.cfg.Recorder.Record(trace.Event{
		Timestamp: time.Now(),
		Kind:      trace.KindPush,
		Conn:      uint16(conn),
		Attr:      t.Char.Value,
		Mode:      uint8(t.Mode),
		Credits:   credits,
		Outcome:   outcome(err),
		Size:      size,
	})
}

// HandleEvent applies one stack event. It only updates small state under
// the lock; logging, tracing and the timeout hook run after it is released.
// Unknown kinds are ignored.
func (d *Dispatcher) HandleEvent(ev Event) {
	rec := trace.Event{
		Timestamp: time.Now(),
		Conn:      uint16(ev.Handle),
	}

	d.mu.Lock()
	switch ev.Kind {
	case EventConnect:
		replaced, was := d.tracker.Connect(ev.Handle)
		d.ledger.Reset()
		rec.Kind = trace.KindConnect
		rec.Credits = d.ledger.Available()
		d.mu.Unlock()

		if was {
			logger.Warn(d.cfg.Name, "connect %s while %s still connected, replacing", ev.Handle, replaced)
		}
		logger.Info(d.cfg.Name, "connected %s, %d credits", ev.Handle, rec.Credits)

	case EventDisconnect:
		mismatch := d.tracker.Disconnect(ev.Handle)
		rec.Kind = trace.KindDisconnect
		rec.Credits = d.ledger.Available()
		d.mu.Unlock()

		if mismatch {
			logger.Warn(d.cfg.Name, "disconnect for %s which is not the active link", ev.Handle)
			rec.Outcome = "mismatch"
		}
		logger.Info(d.cfg.Name, "disconnected %s (reason 0x%02X)", ev.Handle, ev.Reason)

	case EventTransmitComplete:
		rec.Kind = trace.KindTransmitComplete
		rec.Count = ev.Count
		cur, ok := d.tracker.Current()
		stale := !ok || cur != ev.Handle
		var applied uint32
		if stale {
			d.stats.StaleAcks++
			rec.Outcome = "stale"
		} else {
			applied = d.ledger.Release(ev.Count)
			d.stats.Acked += uint64(applied)
		}
		rec.Credits = d.ledger.Available()
		d.mu.Unlock()

		if stale {
			logger.Debug(d.cfg.Name, "ignoring %d completions for stale conn %s", ev.Count, ev.Handle)
		} else {
			logger.Trace(d.cfg.Name, "%d completions (%d applied), %d credits", ev.Count, applied, rec.Credits)
		}

	case EventTimeout:
		d.stats.Timeouts++
		rec.Kind = trace.KindTimeout
		cur, ok := d.tracker.Current()
		forced := d.cfg.DisconnectOnTimeout && ok && cur == ev.Handle
		if forced {
			d.tracker.Disconnect(ev.Handle)
			d.stats.ForcedDisconnects++
			rec.Outcome = "forced-disconnect"
		}
		rec.Credits = d.ledger.Available()
		d.mu.Unlock()

		logger.Warn(d.cfg.Name, "%s timeout on conn %s", ev.Source, ev.Handle)
		if d.cfg.OnTimeout != nil {
			d.cfg.OnTimeout(ev)
		}

	default:
		d.mu.Unlock()
		logger.Trace(d.cfg.Name, "ignoring %s", ev.Kind)
		return
	}

	d.cfg.Recorder.Record(rec)
}

// Stats returns a snapshot of link state, credits and counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.State = d.tracker.State()
	s.Handle, _ = d.tracker.Current()
	s.Credits = d.ledger.Available()
	s.Capacity = d.ledger.Capacity()
	s.Epoch = d.tracker.Epoch()
	return s
}

// Connection returns the active connection handle, if any.
func (d *Dispatcher) Connection() (ConnHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.Current()
}

// Credits returns the number of pushes that can be queued right now.
func (d *Dispatcher) Credits() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ledger.Available()
}
