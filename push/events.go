package push

import "fmt"

// EventKind identifies a stack event.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventConnect
	EventDisconnect
	EventTransmitComplete
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventTransmitComplete:
		return "tx-complete"
	case EventTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// TimeoutSource says which procedure timed out.
type TimeoutSource uint8

const (
	// TimeoutATT is an unconfirmed indication (ATT transaction timeout)
	TimeoutATT TimeoutSource = iota + 1
	// TimeoutLink is a link-layer procedure timeout
	TimeoutLink
)

func (s TimeoutSource) String() string {
	switch s {
	case TimeoutATT:
		return "att"
	case TimeoutLink:
		return "link"
	default:
		return "unknown"
	}
}

// Event is one stack event.
type Event struct {
	Kind   EventKind
	Handle ConnHandle

	// Count of completed transmissions (EventTransmitComplete)
	Count uint32
	// HCI disconnect reason (EventDisconnect)
	Reason uint8
	// EventTimeout
	Source TimeoutSource
}

// EventHandler consumes stack events.
type EventHandler interface {
	HandleEvent(ev Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }

// ConnectEvent builds a connect event.
func ConnectEvent(h ConnHandle) Event {
	return Event{Kind: EventConnect, Handle: h}
}

// DisconnectEvent builds a disconnect event.
func DisconnectEvent(h ConnHandle, reason uint8) Event {
	return Event{Kind: EventDisconnect, Handle: h, Reason: reason}
}

// TransmitCompleteEvent builds a transmit-complete event.
func TransmitCompleteEvent(h ConnHandle, count uint32) Event {
	return Event{Kind: EventTransmitComplete, Handle: h, Count: count}
}

// TimeoutEvent builds a timeout event.
func TimeoutEvent(h ConnHandle, src TimeoutSource) Event {
	return Event{Kind: EventTimeout, Handle: h, Source: src}
}
