package log

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events during reading. Zero-valued fields match
// everything; pointer fields distinguish "unset" from the zero enum value.
type Filter struct {
	// ConnectionID matches the connection correlation ID exactly.
	ConnectionID string

	// Direction matches inbound or outbound events.
	Direction *Direction

	// Layer matches the protocol layer.
	Layer *Layer

	// Category matches the event category.
	Category *Category

	// TimeStart keeps events at or after this time.
	TimeStart *time.Time

	// TimeEnd keeps events strictly before this time.
	TimeEnd *time.Time

	// DeviceAddress matches the dotted logical address.
	DeviceAddress string

	// RadioAddress matches the dotted radio address.
	RadioAddress string
}

func (f *Filter) matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	case f.DeviceAddress != "" && event.DeviceAddress != f.DeviceAddress:
		return false
	case f.RadioAddress != "" && event.RadioAddress != f.RadioAddress:
		return false
	}
	return true
}

// Reader streams events out of a .xlog file. A day of gateway traffic is
// easily millions of advertisement records, so events are decoded one at
// a time through a buffered reader rather than loaded up front.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and returns every event in it.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and returns only events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(bufio.NewReader(f)),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
