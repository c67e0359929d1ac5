package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the BLE connection attempt (UUID).
	// Empty for connectionless (advertising) events.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceAddress is the logical device address in dotted notation
	// (populated once the sender is known).
	DeviceAddress string `cbor:"6,keyasint,omitempty"`

	// RadioAddress is the radio (hardware) address in dotted notation.
	RadioAddress string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Advertisement *AdvertisementEvent `cbor:"10,keyasint,omitempty"` // Radio layer
	Frame         *FrameEvent         `cbor:"11,keyasint,omitempty"` // Frame layer (decoded)
	Attribute     *AttributeEvent     `cbor:"12,keyasint,omitempty"` // Radio layer (connected)
	StateChange   *StateChangeEvent   `cbor:"13,keyasint,omitempty"` // Connection state
	Command       *CommandEvent       `cbor:"14,keyasint,omitempty"` // Engine commands
	Error         *ErrorEventData     `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerRadio is the radio boundary (raw advertisements, attribute I/O).
	LayerRadio Layer = 0
	// LayerFrame is the frame codec layer (decoded, decrypted frames).
	LayerFrame Layer = 1
	// LayerEngine is the protocol engine layer.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerRadio:
		return "RADIO"
	case LayerFrame:
		return "FRAME"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryAdvertisement indicates a received or transmitted advertisement.
	CategoryAdvertisement Category = 0
	// CategoryAttribute indicates connected-mode attribute traffic.
	CategoryAttribute Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryCommand indicates an engine command.
	CategoryCommand Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryAdvertisement:
		return "ADVERTISEMENT"
	case CategoryAttribute:
		return "ATTRIBUTE"
	case CategoryState:
		return "STATE"
	case CategoryCommand:
		return "COMMAND"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// AdvertisementEvent captures one advertisement at the radio boundary.
type AdvertisementEvent struct {
	// Size is the manufacturer-data size in bytes.
	Size int `cbor:"1,keyasint"`

	// RSSI is the received signal strength in dBm (inbound only).
	RSSI int8 `cbor:"2,keyasint,omitempty"`

	// Data is the raw manufacturer data (may be truncated).
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// FrameEvent captures a decoded frame after the security engine.
type FrameEvent struct {
	// Kind is the frame classification (STATUS1, STATUS2, MODERN).
	Kind string `cbor:"1,keyasint"`

	// PayloadTag is the modern payload type tag (modern frames only).
	PayloadTag *uint8 `cbor:"2,keyasint,omitempty"`

	// Sequence is the anti-replay counter (modern assigned frames only).
	Sequence *uint32 `cbor:"3,keyasint,omitempty"`

	// Encrypted reports whether the frame arrived encrypted.
	Encrypted bool `cbor:"4,keyasint,omitempty"`

	// Rejected reports a frame that failed authentication and was dropped.
	Rejected bool `cbor:"5,keyasint,omitempty"`
}

// AttributeEvent captures connected-mode attribute traffic.
type AttributeEvent struct {
	// Handle is the attribute handle.
	Handle uint16 `cbor:"1,keyasint"`

	// UUID is the characteristic UUID (if resolved).
	UUID string `cbor:"2,keyasint,omitempty"`

	// Size is the value size in bytes.
	Size int `cbor:"3,keyasint"`

	// Notification distinguishes notifications from reads/writes.
	Notification bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// CommandEvent captures an engine command.
type CommandEvent struct {
	// Op is the operation code.
	Op uint8 `cbor:"1,keyasint"`

	// Target is the destination address in dotted notation.
	Target string `cbor:"2,keyasint,omitempty"`

	// Params is the serialized parameter bytes.
	Params []byte `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
