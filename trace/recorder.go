package trace

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Recorder receives trace records. Implementations must be safe for
// concurrent use and must not block; they are called from the stack's event
// path.
type Recorder interface {
	Record(event Event)
}

// NoopRecorder discards all records. Usable as a zero value.
type NoopRecorder struct{}

// Record discards the event.
func (NoopRecorder) Record(Event) {}

// FileRecorder appends records to a file as a CBOR sequence.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	session string
	mu      sync.Mutex
	closed  bool
}

// NewFileRecorder opens (or creates) path for appending. Records without a
// session are stamped with session.
func NewFileRecorder(path, session string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		file:    f,
		encoder: NewEncoder(f),
		session: session,
	}, nil
}

// Record writes an event to the trace file.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if event.Session == "" {
		event.Session = r.session
	}

	// Tracing must not disrupt the link
	_ = r.encoder.Encode(event)
}

// Close closes the trace file. Safe to call more than once; later Record
// calls are ignored.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// MemoryRecorder keeps records in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends the event.
func (r *MemoryRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events of one kind.
func (r *MemoryRecorder) Filter(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*FileRecorder)(nil)
	_ Recorder = (*MemoryRecorder)(nil)
)
