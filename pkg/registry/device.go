package registry

import (
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Kind classifies a device on first unambiguous advertisement.
type Kind uint8

const (
	// KindUnknown is a radio address seen but not yet classified.
	KindUnknown Kind = iota

	// KindFixture is a light fixture (driver).
	KindFixture

	// KindSensor is a sensor node.
	KindSensor
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFixture:
		return "FIXTURE"
	case KindSensor:
		return "SENSOR"
	default:
		return "UNKNOWN"
	}
}

// ConnectionState is the per-device link state. Transitions are driven
// exclusively by the connection state machine.
type ConnectionState uint8

const (
	// StateStandby means no link activity; the device is tracked passively.
	StateStandby ConnectionState = iota

	// StateConnecting means a link-layer connect is in flight.
	StateConnecting

	// StateEncrypting means pairing/encryption negotiation is in flight.
	StateEncrypting

	// StateGetVersion means the firmware version is being read.
	StateGetVersion

	// StateFindingServices means service discovery is in flight.
	StateFindingServices

	// StateFindingAttributes means characteristic discovery is in flight.
	StateFindingAttributes

	// StateEnablingNotifications means notification subscriptions are being
	// written.
	StateEnablingNotifications

	// StateListeningData is the steady connected state.
	StateListeningData

	// StateDisconnecting means a teardown is in flight. Reachable from any
	// other non-standby state.
	StateDisconnecting
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateStandby:
		return "STANDBY"
	case StateConnecting:
		return "CONNECTING"
	case StateEncrypting:
		return "ENCRYPTING"
	case StateGetVersion:
		return "GET_VERSION"
	case StateFindingServices:
		return "FINDING_SERVICES"
	case StateFindingAttributes:
		return "FINDING_ATTRIBUTES"
	case StateEnablingNotifications:
		return "ENABLING_NOTIFICATIONS"
	case StateListeningData:
		return "LISTENING_DATA"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// NoHandle marks an attribute handle as not yet discovered.
const NoHandle uint16 = 0

// AttributeEntry maps one characteristic to its discovered handles.
// A NoHandle in either field forces live rediscovery even on a cache hit.
type AttributeEntry struct {
	Handle    uint16
	CCCHandle uint16
}

// GroupMembership is a device's 16-slot group table as reconstructed from
// segmented responses.
type GroupMembership struct {
	// Slots holds the group values; frame.UnassignedSlot marks an empty slot.
	Slots [frame.GroupTableSize]uint16

	// Known marks slots that have actually been reported.
	Known [frame.GroupTableSize]bool

	// Complete is set only once every slot below the final segment's extent
	// has been reported, with no gaps.
	Complete bool

	// Retries counts group-table request attempts for this device.
	Retries int

	// LastAttempt is when the last request was broadcast.
	LastAttempt time.Time
}

// InGroup reports whether the reported slots contain the given group value.
func (g *GroupMembership) InGroup(value uint16) bool {
	for i, known := range g.Known {
		if known && g.Slots[i] == value {
			return true
		}
	}
	return false
}

// FixtureTelemetry is the last-known fixture state, merged from Status-1,
// Status-2, modern status and history pages.
type FixtureTelemetry struct {
	Intensity   float64 // percent
	Status      uint8
	Power       float64 // watts
	LedTemp     int8    // degrees C
	PcbTemp     int8    // degrees C
	Vin         float64 // volts
	VinRipple   float64 // volts
	OnHours     uint16
	PowerCycles uint16
	LedCycles   uint16
	ProductID   uint16
	DaliStatus  uint8
}

// SensorTelemetry is the last-known sensor state.
type SensorTelemetry struct {
	Temperature int8    // degrees C
	Voltage     float64 // volts
	Motion      uint8
	Illuminance uint16 // lux
}

// Device is one tracked device. All mutation happens on the engine's tick
// loop; see the package comment.
type Device struct {
	// RadioAddress is the stable link-layer identity and registry key.
	RadioAddress frame.RadioAddress

	// LogicalAddress is the protocol address: 1 byte once assigned, 3 bytes
	// (low radio-address bytes) while unassigned, 4 bytes for legacy devices.
	LogicalAddress frame.LogicalAddress

	Kind Kind

	// Name is the advertised device name, if any.
	Name string

	// RSSI is the signal strength of the last advertisement, in dBm.
	RSSI int8

	// LastSeen is when the last advertisement from this device arrived.
	LastSeen time.Time

	// State is the link state; owned by the connection machine.
	State ConnectionState

	// ConnHandle is the live link-layer connection handle; valid only while
	// Connected is set.
	ConnHandle uint16
	Connected  bool

	// Bootloader marks a device running its bootloader. The bootloader
	// exposes a disjoint attribute map and a reduced connection path.
	Bootloader bool

	// Encrypted is the last-seen encryption posture of the device's frames.
	Encrypted bool

	// FirmwareVersion is the version string read during GetVersion. It keys
	// the handle cache.
	FirmwareVersion string

	// Attributes maps characteristic UUID to discovered handles.
	Attributes map[string]AttributeEntry

	Groups GroupMembership

	// Fixture and Sensor carry kind-specific telemetry; exactly one is
	// non-nil once classified.
	Fixture *FixtureTelemetry
	Sensor  *SensorTelemetry

	// ConnectionFails counts consecutive failed connection attempts. Past
	// the ceiling the device falls back to passive tracking until a new
	// advertisement arrives.
	ConnectionFails int

	// LastFailTime is when the last connection attempt failed.
	LastFailTime time.Time
}

// Assigned reports whether the device has a 1-byte assigned address.
func (d *Device) Assigned() bool {
	return d.LogicalAddress.IsAssigned()
}

// MissingHandles reports whether any expected characteristic lacks a
// discovered handle. expected lists characteristic UUIDs; notification
// handles are checked only for UUIDs in withCCC.
func (d *Device) MissingHandles(expected []string, withCCC map[string]bool) bool {
	for _, uuid := range expected {
		entry, ok := d.Attributes[uuid]
		if !ok || entry.Handle == NoHandle {
			return true
		}
		if withCCC[uuid] && entry.CCCHandle == NoHandle {
			return true
		}
	}
	return false
}

// Apply merges a typed modern payload into the device's telemetry. Pages
// arrive by air or as connection notifications; non-telemetry payloads are
// ignored here and handled by their own layers.
func (d *Device) Apply(p frame.Payload) {
	switch v := p.(type) {
	case *frame.StatusPayload:
		d.applyStatus(v)
	case *frame.HistoryPayload:
		d.applyHistory(v)
	case *frame.SensorPayload:
		d.applySensor(v)
	}
}

// applyStatus1 merges a legacy Status-1 frame.
func (d *Device) applyStatus1(s *frame.Status1) {
	t := d.fixture()
	t.Intensity = frame.IntensityPercent(s.Intensity)
	t.Status = s.Status
	t.Power = frame.PowerWatts(s.Power)
	t.LedTemp = s.LedTemp
	t.PcbTemp = s.PcbTemp
	t.Vin = frame.SupplyVolts(s.Vin)
	t.VinRipple = frame.RippleVolts(s.VinRipple)
}

// applyStatus2 merges a legacy Status-2 frame.
func (d *Device) applyStatus2(s *frame.Status2) {
	t := d.fixture()
	t.ProductID = s.ProductID
	t.OnHours = s.OnHours
	t.PowerCycles = s.PowerCycles
	t.LedCycles = s.LedCycles
	t.DaliStatus = s.DaliStatus
}

// applyStatus merges a modern status page.
func (d *Device) applyStatus(p *frame.StatusPayload) {
	t := d.fixture()
	t.Intensity = frame.IntensityPercent(p.Intensity)
	t.Status = p.Status
	t.Power = frame.PowerWatts(p.Power)
	t.LedTemp = p.LedTemp
	t.PcbTemp = p.PcbTemp
	t.Vin = frame.SupplyVolts(p.Vin)
	t.VinRipple = frame.RippleVolts(p.VinRipple)
}

// applyHistory merges a modern history page.
func (d *Device) applyHistory(p *frame.HistoryPayload) {
	t := d.fixture()
	t.OnHours = p.OnHours
	t.PowerCycles = p.PowerCycles
	t.LedCycles = p.LedCycles
	t.ProductID = p.ProductID
	t.DaliStatus = p.DaliStatus
}

// applySensor merges a modern sensor page.
func (d *Device) applySensor(p *frame.SensorPayload) {
	t := d.sensor()
	t.Temperature = p.Temperature
	t.Voltage = frame.SupplyVolts(p.Voltage)
	t.Motion = p.Motion
	t.Illuminance = p.Illuminance
}

func (d *Device) fixture() *FixtureTelemetry {
	if d.Fixture == nil {
		d.Fixture = &FixtureTelemetry{}
		d.Kind = KindFixture
	}
	return d.Fixture
}

func (d *Device) sensor() *SensorTelemetry {
	if d.Sensor == nil {
		d.Sensor = &SensorTelemetry{}
		d.Kind = KindSensor
	}
	return d.Sensor
}
