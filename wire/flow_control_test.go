package wire

import (
	"errors"
	"testing"

	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/trace"
	"github.com/user/estc-blue/wire/att"
	"github.com/user/estc-blue/wire/gatt"
)

// newLinkedDispatcher wires a dispatcher to the stack the way the
// application does: the stack is transport, subscription source and value
// source, and receives the dispatcher as its event handler.
func newLinkedDispatcher(t *testing.T, cfg *SimulationConfig, capacity int) (*Stack, testTable, *push.Dispatcher, *trace.MemoryRecorder) {
	t.Helper()
	s, tbl, _ := newTestStack(t, cfg)
	rec := &trace.MemoryRecorder{}
	d, err := push.NewDispatcher(push.Config{Capacity: capacity, Recorder: rec}, s.Subscriptions(), s.Database(), s)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	s.SetEventHandler(d)
	return s, tbl, d, rec
}

func TestDispatcherNeverOverrunsQueue(t *testing.T) {
	s, tbl, d, _ := newLinkedDispatcher(t, nil, DefaultQueueSize)
	peer, _ := connectPeer(t, s)
	if err := peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify); err != nil {
		t.Fatal(err)
	}

	target := push.Target{Char: tbl.hello, Mode: push.Notify}
	sent := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 5; i++ {
			err := d.Push(target)
			switch {
			case err == nil:
				sent++
			case errors.Is(err, push.ErrOutOfCredits):
			default:
				t.Fatalf("round %d: Push = %v", round, err)
			}
		}
		s.ConnectionEvent()
	}

	if sent != 10*DefaultQueueSize {
		t.Errorf("sent = %d, want %d", sent, 10*DefaultQueueSize)
	}
	if s.Stats().QueueFull != 0 {
		t.Errorf("stack queue overran %d times", s.Stats().QueueFull)
	}
	if got := len(peer.ReceivedValues(tbl.hello.Value)); got != sent {
		t.Errorf("peer received %d, want %d", got, sent)
	}
	if d.Credits() != DefaultQueueSize {
		t.Errorf("credits = %d after draining", d.Credits())
	}
}

func TestDispatcherSeesSubscriptionFromPeer(t *testing.T) {
	s, tbl, d, _ := newLinkedDispatcher(t, nil, 0)
	peer, _ := connectPeer(t, s)
	target := push.Target{Char: tbl.hello, Mode: push.Notify}

	if err := d.Push(target); !errors.Is(err, push.ErrSubscriptionUnavailable) {
		t.Fatalf("Push before CCCD write = %v", err)
	}

	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeIndicate)
	if err := d.Push(target); !errors.Is(err, push.ErrNotSubscribed) {
		t.Fatalf("Push with indicate CCCD = %v", err)
	}

	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify)
	if err := d.Push(target); err != nil {
		t.Fatalf("Push = %v", err)
	}
	s.ConnectionEvent()
	if got := peer.ReceivedValues(tbl.hello.Value); len(got) != 1 || got[0] != "Hello" {
		t.Errorf("peer got %v", got)
	}
}

func TestDispatcherReconnectClearsSubscription(t *testing.T) {
	s, tbl, d, _ := newLinkedDispatcher(t, nil, 0)
	peer, _ := connectPeer(t, s)
	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify)
	target := push.Target{Char: tbl.hello, Mode: push.Notify}

	if err := d.Push(target); err != nil {
		t.Fatal(err)
	}
	_ = s.Disconnect(ReasonRemoteUserTerminated)
	if err := d.Push(target); !errors.Is(err, push.ErrNoActiveConnection) {
		t.Fatalf("Push after disconnect = %v", err)
	}

	connectPeer(t, s)
	if d.Credits() != DefaultQueueSize {
		t.Errorf("credits = %d after reconnect", d.Credits())
	}
	if err := d.Push(target); !errors.Is(err, push.ErrSubscriptionUnavailable) {
		t.Fatalf("Push on fresh link = %v", err)
	}
}

func TestDispatcherRollsBackRefusedSubmit(t *testing.T) {
	cfg := PerfectSimulationConfig()
	cfg.SubmitFailureRate = 1
	s, tbl, d, rec := newLinkedDispatcher(t, cfg, 0)
	peer, _ := connectPeer(t, s)
	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify)

	err := d.Push(push.Target{Char: tbl.hello, Mode: push.Notify})
	if !errors.Is(err, push.ErrTransportRejected) || !att.IsATTError(err, att.ErrUnlikelyError) {
		t.Fatalf("Push = %v", err)
	}
	if d.Credits() != DefaultQueueSize {
		t.Errorf("credits = %d, rollback failed", d.Credits())
	}

	pushes := rec.Filter(trace.KindPush)
	if len(pushes) != 1 || pushes[0].Outcome != "transport rejected" {
		t.Errorf("trace = %+v", pushes)
	}
}

func TestDispatcherIndicationCredits(t *testing.T) {
	s, tbl, d, _ := newLinkedDispatcher(t, nil, 0)
	peer, _ := connectPeer(t, s)
	_ = peer.Subscribe(tbl.status.CCCD, gatt.ModeIndicate)
	target := push.Target{Char: tbl.status, Mode: push.Indicate, Value: []byte{9}}

	if err := d.Push(target); err != nil {
		t.Fatal(err)
	}
	// one indication in flight: the stack refuses the second, credit returns
	if err := d.Push(target); !errors.Is(err, push.ErrTransportRejected) {
		t.Fatalf("second indication = %v", err)
	}
	if d.Credits() != DefaultQueueSize-1 {
		t.Errorf("credits = %d", d.Credits())
	}

	s.ConnectionEvent()
	if d.Credits() != DefaultQueueSize {
		t.Errorf("credits = %d after confirmation", d.Credits())
	}
}

func TestDispatcherLeaksCreditsOnAckLoss(t *testing.T) {
	cfg := PerfectSimulationConfig()
	cfg.AckLossRate = 1
	s, tbl, d, _ := newLinkedDispatcher(t, cfg, 0)
	peer, _ := connectPeer(t, s)
	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify)
	target := push.Target{Char: tbl.hello, Mode: push.Notify}

	for i := 0; i < DefaultQueueSize; i++ {
		if err := d.Push(target); err != nil {
			t.Fatal(err)
		}
		s.ConnectionEvent()
	}
	if err := d.Push(target); !errors.Is(err, push.ErrOutOfCredits) {
		t.Fatalf("Push = %v, want out of credits", err)
	}

	// only a new connection recovers the budget
	_ = s.Disconnect(ReasonConnectionTimeout)
	peer, _ = connectPeer(t, s)
	_ = peer.Subscribe(tbl.hello.CCCD, gatt.ModeNotify)
	if err := d.Push(target); err != nil {
		t.Fatalf("Push after reconnect = %v", err)
	}
}
