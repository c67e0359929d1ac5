package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDecodeEvent(t *testing.T) {
	seq := uint32(42)
	tag := uint8(0x02)
	event := Event{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		ConnectionID:  "8a6e0804-2bd0-4672-b79d-d97027f9071a",
		Direction:     DirectionIn,
		Layer:         LayerFrame,
		Category:      CategoryAdvertisement,
		DeviceAddress: "255.255.255.33",
		RadioAddress:  "35.69.103.80.160.0",
		Frame: &FrameEvent{
			Kind:       "MODERN",
			PayloadTag: &tag,
			Sequence:   &seq,
			Encrypted:  true,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, event.Timestamp)
	}
	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, event.ConnectionID)
	}
	if decoded.DeviceAddress != event.DeviceAddress {
		t.Errorf("DeviceAddress: got %q, want %q", decoded.DeviceAddress, event.DeviceAddress)
	}
	if decoded.Frame == nil {
		t.Fatal("Frame is nil")
	}
	if decoded.Frame.Kind != "MODERN" {
		t.Errorf("Frame.Kind = %q", decoded.Frame.Kind)
	}
	if decoded.Frame.Sequence == nil || *decoded.Frame.Sequence != seq {
		t.Errorf("Frame.Sequence = %v", decoded.Frame.Sequence)
	}
	if !decoded.Frame.Encrypted {
		t.Error("Frame.Encrypted lost")
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	minimal := Event{Timestamp: time.Now(), Direction: DirectionIn}
	full := Event{
		Timestamp:     minimal.Timestamp,
		Direction:     DirectionIn,
		ConnectionID:  "id",
		DeviceAddress: "255.255.255.1",
		Error:         &ErrorEventData{Layer: LayerRadio, Message: "controller reset"},
	}

	a, err := EncodeEvent(minimal)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeEvent(full)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) >= len(b) {
		t.Errorf("minimal event (%d bytes) not smaller than full event (%d bytes)", len(a), len(b))
	}
}

func TestStreamingEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	events := []Event{
		{Timestamp: time.Now(), Layer: LayerRadio, Category: CategoryAdvertisement},
		{Timestamp: time.Now(), Layer: LayerEngine, Category: CategoryState,
			StateChange: &StateChangeEvent{OldState: "STANDBY", NewState: "CONNECTING"}},
	}
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for i := range events {
		var got Event
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("Decode event %d failed: %v", i, err)
		}
		if got.Layer != events[i].Layer {
			t.Errorf("event %d Layer = %v, want %v", i, got.Layer, events[i].Layer)
		}
	}
}
