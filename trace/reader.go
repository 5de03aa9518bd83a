package trace

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader reads trace records from a CBOR sequence.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: NewDecoder(r)}
}

// Next returns the next record, or io.EOF when the stream ends.
func (r *Reader) Next() (Event, error) {
	var event Event
	if err := r.dec.Decode(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// ReadFile reads every record in a trace file. A truncated final record
// (an interrupted write) ends the read without an error.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	r := NewReader(f)
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Summary aggregates a trace.
type Summary struct {
	Connects          int
	Disconnects       int
	Timeouts          int
	TransmitCompletes int
	Acked             uint32
	Pushes            int
	PushesOK          int
	Outcomes          map[string]int
}

// Summarize counts records by kind and push outcome.
func Summarize(events []Event) Summary {
	s := Summary{Outcomes: make(map[string]int)}
	for _, e := range events {
		switch e.Kind {
		case KindConnect:
			s.Connects++
		case KindDisconnect:
			s.Disconnects++
		case KindTimeout:
			s.Timeouts++
		case KindTransmitComplete:
			s.TransmitCompletes++
			s.Acked += e.Count
		case KindPush:
			s.Pushes++
			if e.Outcome == "ok" {
				s.PushesOK++
			}
			s.Outcomes[e.Outcome]++
		}
	}
	return s
}
