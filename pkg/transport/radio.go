package transport

import (
	"errors"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Radio errors.
var (
	// ErrRadioClosed indicates the controller link is down.
	ErrRadioClosed = errors.New("radio controller link closed")

	// ErrBusy indicates a connect attempt while another link is open.
	// The engine allows exactly one physical connection at a time.
	ErrBusy = errors.New("a connection is already open")
)

// HandleRange bounds an attribute discovery request.
type HandleRange struct {
	Start uint16
	End   uint16
}

// AllHandles covers a device's whole attribute table.
var AllHandles = HandleRange{Start: 0x0001, End: 0xFFFF}

// Radio is the command sink side of the radio-controller boundary.
// Every method submits a command and returns immediately; outcomes arrive
// as Events. Implementations are not required to be safe for concurrent
// use: the engine is the only caller.
type Radio interface {
	// SetScanning enables or disables passive scanning.
	SetScanning(enabled bool) error

	// Advertise broadcasts one advertisement carrying the given
	// manufacturer data for the given number of repetitions.
	Advertise(manufacturerData []byte, repetitions int) error

	// Connect initiates a link-layer connection to the device. The outcome
	// arrives as an EventConnection.
	Connect(addr frame.RadioAddress) error

	// Disconnect tears down the link. Completion arrives as EventDisconnect.
	Disconnect(connHandle uint16) error

	// Pair starts pairing/encryption on the link. The outcome arrives as an
	// EventBonding.
	Pair(connHandle uint16) error

	// DiscoverServices requests service discovery over the handle range.
	// Results arrive as EventService events followed by EventProcedureDone.
	DiscoverServices(connHandle uint16, r HandleRange) error

	// DiscoverCharacteristics requests characteristic discovery over the
	// handle range. Results arrive as EventCharacteristic events followed by
	// EventProcedureDone.
	DiscoverCharacteristics(connHandle uint16, r HandleRange) error

	// Read requests an attribute read. The value arrives as EventAttribute.
	Read(connHandle, attrHandle uint16) error

	// ReadByUUID requests a read of the first attribute with the given
	// characteristic UUID, without prior discovery. The value arrives as an
	// EventAttribute carrying the UUID.
	ReadByUUID(connHandle uint16, uuid string) error

	// Write issues an unacknowledged write.
	Write(connHandle, attrHandle uint16, value []byte) error

	// WriteWithResponse issues an acknowledged write. The acknowledgement
	// arrives as EventProcedureDone for the handle.
	WriteWithResponse(connHandle, attrHandle uint16, value []byte) error

	// PrepareWrite queues one offset-tagged chunk of a long write.
	// The per-chunk acknowledgement arrives as EventProcedureDone.
	PrepareWrite(connHandle, attrHandle uint16, offset uint16, chunk []byte) error

	// ExecuteWrite commits (or, with commit false, abandons) the queued
	// chunks. The outcome arrives as EventProcedureDone.
	ExecuteWrite(connHandle uint16, commit bool) error

	// Reset performs a full controller reset. All link state is lost.
	Reset() error
}

// EventSource is the inbound side of the boundary. Poll returns the next
// pending event, or (Event{}, false) when none is queued; it never blocks.
type EventSource interface {
	Poll() (Event, bool)
}

// Transport is a duplex radio-controller connection.
type Transport interface {
	Radio
	EventSource

	// Close releases the controller link.
	Close() error
}
