package transport

import (
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// EventType discriminates radio-controller events.
type EventType uint8

const (
	// EventScan is a received advertisement (scan response).
	EventScan EventType = iota + 1

	// EventConnection reports the outcome of a Connect call.
	EventConnection

	// EventDisconnect reports a link teardown, requested or not.
	EventDisconnect

	// EventService is one discovered service.
	EventService

	// EventCharacteristic is one discovered characteristic.
	EventCharacteristic

	// EventAttribute is a read result or an incoming notification.
	EventAttribute

	// EventProcedureDone reports completion of a discovery, acknowledged
	// write, prepared-write chunk, or execute-write procedure.
	EventProcedureDone

	// EventBonding reports the outcome of a Pair call.
	EventBonding

	// EventControllerFailure reports that the controller link itself failed.
	EventControllerFailure
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventScan:
		return "SCAN"
	case EventConnection:
		return "CONNECTION"
	case EventDisconnect:
		return "DISCONNECT"
	case EventService:
		return "SERVICE"
	case EventCharacteristic:
		return "CHARACTERISTIC"
	case EventAttribute:
		return "ATTRIBUTE"
	case EventProcedureDone:
		return "PROCEDURE_DONE"
	case EventBonding:
		return "BONDING"
	case EventControllerFailure:
		return "CONTROLLER_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound radio-controller event. Type selects which fields
// are meaningful.
type Event struct {
	Type EventType

	// Addr is the remote device's radio address (scan and connection
	// events).
	Addr frame.RadioAddress

	// ConnHandle identifies the link for connected-mode events.
	ConnHandle uint16

	// AttrHandle identifies the attribute for attribute, characteristic and
	// procedure events.
	AttrHandle uint16

	// UUID is the characteristic UUID (EventCharacteristic).
	UUID string

	// CCCHandle is the characteristic's client-configuration handle, if it
	// has one (EventCharacteristic).
	CCCHandle uint16

	// Range is the handle extent of a discovered service (EventService).
	Range HandleRange

	// Data carries manufacturer data (EventScan) or an attribute value
	// (EventAttribute).
	Data []byte

	// Name is the advertised device name, when present (EventScan).
	Name string

	// RSSI is the received signal strength in dBm (EventScan).
	RSSI int8

	// Notification marks an EventAttribute pushed by the device rather than
	// read.
	Notification bool

	// Status is the controller status code: 0 success. Non-zero on failed
	// connections, procedures and bonding.
	Status uint8

	// Reason is the disconnect reason code (EventDisconnect).
	Reason uint8
}

// OK reports whether the event carries a success status.
func (e Event) OK() bool { return e.Status == 0 }
