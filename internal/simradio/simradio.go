// Package simradio is an in-memory radio transport backed by scripted
// devices. It implements the full transport contract so the engine can be
// run and tested without a controller attached: advertisements come from
// the scripted device table, broadcast operations are applied to it, and
// connections walk the same discovery and attribute procedures a real
// device would.
package simradio

import (
	"encoding/binary"
	"fmt"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/profile"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

// Device is one scripted device on the simulated network.
type Device struct {
	Radio   frame.RadioAddress
	Logical frame.LogicalAddress
	Name    string
	Version string

	// Groups is the device's group table, at most 16 entries.
	Groups []uint16

	// Intensity is the current light level in percent.
	Intensity float64

	// RSSI reported with every advertisement.
	RSSI int8

	// Connectable mirrors the device's connectable window.
	Connectable bool

	// handles assigned on connection, keyed by characteristic UUID.
	attrs map[string]attrSlot
}

type attrSlot struct {
	handle uint16
	ccc    uint16
	notify bool
}

// Sim is the simulated transport. Not safe for concurrent use; the engine
// is the only intended caller.
type Sim struct {
	devices  []*Device
	events   []transport.Event
	scanning bool
	closed   bool

	connHandle uint16
	connected  *Device
}

// New creates a simulator over the scripted devices.
func New(devices ...*Device) *Sim {
	return &Sim{devices: devices}
}

// Devices returns the scripted device table.
func (s *Sim) Devices() []*Device { return s.devices }

// Step emits one advertising round: every device broadcasts its status
// page. Call it from the engine's loop to simulate the passage of air time.
func (s *Sim) Step() {
	if !s.scanning || s.closed {
		return
	}
	for _, d := range s.devices {
		data, err := frame.EncodeModern(d.Logical, 0, &frame.StatusPayload{
			Intensity: frame.IntensityRaw(d.Intensity),
			Vin:       120, // 24.0 V
		}, nil)
		if err != nil {
			continue
		}
		s.events = append(s.events, transport.Event{
			Type: transport.EventScan,
			Addr: d.Radio,
			RSSI: d.RSSI,
			Data: data,
			Name: d.Name,
		})
	}
}

// Poll implements transport.EventSource.
func (s *Sim) Poll() (transport.Event, bool) {
	if len(s.events) == 0 {
		return transport.Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

// SetScanning implements transport.Radio.
func (s *Sim) SetScanning(enabled bool) error {
	if s.closed {
		return transport.ErrRadioClosed
	}
	s.scanning = enabled
	return nil
}

// Advertise applies a broadcast frame to every device the destination
// covers, queueing whatever traffic the operation elicits.
func (s *Sim) Advertise(manufacturerData []byte, _ int) error {
	if s.closed {
		return transport.ErrRadioClosed
	}
	f := frame.Decode(manufacturerData)
	if f.Kind != frame.KindModern || f.Encrypted {
		// Sealed traffic is opaque to the simulator's plaintext devices.
		return nil
	}
	p, ok := frame.ParsePayload(f.Payload)
	if !ok {
		return nil
	}

	for _, d := range s.devices {
		if !d.Logical.Matches(f.Address) {
			continue
		}
		s.apply(d, p)
	}
	return nil
}

func (s *Sim) apply(d *Device, p frame.Payload) {
	switch v := p.(type) {
	case *frame.ControlPayload:
		switch v.Op {
		case frame.OpSetLightLevel:
			if len(v.Params) >= 2 {
				d.Intensity = frame.IntensityPercent(binary.LittleEndian.Uint16(v.Params[:2]))
			}
		case frame.OpEnableConnections:
			d.Connectable = len(v.Params) > 0 && v.Params[0] != 0
		case frame.OpGroupInfoRequest:
			s.emitGroupSegments(d)
		}
	case *frame.RequestAdvPayload:
		// The next Step round covers it; real devices also answer lazily.
	}
}

// emitGroupSegments broadcasts the device's group table in wire-sized
// segments.
func (s *Sim) emitGroupSegments(d *Device) {
	slots := d.Groups
	if len(slots) > frame.GroupTableSize {
		slots = slots[:frame.GroupTableSize]
	}
	for off := 0; ; off += frame.GroupSlotsPerSegment {
		end := off + frame.GroupSlotsPerSegment
		last := end >= len(slots)
		if end > len(slots) {
			end = len(slots)
		}
		data, err := frame.EncodeModern(d.Logical, 0, &frame.GroupInfoPayload{
			Offset:     uint8(off),
			LastPacket: last,
			Slots:      slots[off:end],
		}, nil)
		if err == nil {
			s.events = append(s.events, transport.Event{
				Type: transport.EventScan,
				Addr: d.Radio,
				RSSI: d.RSSI,
				Data: data,
			})
		}
		if last {
			return
		}
	}
}

// Connect implements transport.Radio. Only a connectable device accepts.
func (s *Sim) Connect(addr frame.RadioAddress) error {
	if s.closed {
		return transport.ErrRadioClosed
	}
	if s.connected != nil {
		return transport.ErrBusy
	}
	for _, d := range s.devices {
		if d.Radio != addr {
			continue
		}
		if !d.Connectable {
			s.events = append(s.events, transport.Event{
				Type: transport.EventConnection, Addr: addr, Status: 0x02,
			})
			return nil
		}
		s.connHandle++
		s.connected = d
		s.assignHandles(d)
		s.events = append(s.events, transport.Event{
			Type: transport.EventConnection, Addr: addr, ConnHandle: s.connHandle,
		})
		return nil
	}
	// Nobody answers; the engine's connect timeout covers it.
	return nil
}

// assignHandles lays the device's attribute table out deterministically.
func (s *Sim) assignHandles(d *Device) {
	if d.attrs != nil {
		return
	}
	manifest, err := profile.Load(profile.Normal)
	if err != nil {
		return
	}
	d.attrs = make(map[string]attrSlot)
	handle := uint16(0x10)
	for _, c := range manifest.Characteristics {
		slot := attrSlot{handle: handle, notify: c.Notify}
		handle += 2
		if c.Notify {
			slot.ccc = handle
			handle += 2
		}
		d.attrs[c.UUID] = slot
	}
}

// Disconnect implements transport.Radio.
func (s *Sim) Disconnect(connHandle uint16) error {
	if s.connected == nil || connHandle != s.connHandle {
		return nil
	}
	s.connected = nil
	s.events = append(s.events, transport.Event{
		Type: transport.EventDisconnect, ConnHandle: connHandle,
	})
	return nil
}

// Pair always succeeds; the simulated network is open.
func (s *Sim) Pair(connHandle uint16) error {
	s.events = append(s.events, transport.Event{
		Type: transport.EventBonding, ConnHandle: connHandle,
	})
	return nil
}

// DiscoverServices reports one service spanning the whole table.
func (s *Sim) DiscoverServices(connHandle uint16, _ transport.HandleRange) error {
	s.events = append(s.events,
		transport.Event{Type: transport.EventService, ConnHandle: connHandle, Range: transport.AllHandles},
		transport.Event{Type: transport.EventProcedureDone, ConnHandle: connHandle},
	)
	return nil
}

// DiscoverCharacteristics reports the connected device's attribute table.
func (s *Sim) DiscoverCharacteristics(connHandle uint16, _ transport.HandleRange) error {
	if s.connected != nil {
		versioned, err := profile.ParseVersion(s.connected.Version)
		manifest, merr := profile.Load(profile.Normal)
		if err == nil && merr == nil {
			for _, c := range manifest.ExpectedFor(versioned) {
				slot := s.connected.attrs[c.UUID]
				s.events = append(s.events, transport.Event{
					Type:       transport.EventCharacteristic,
					ConnHandle: connHandle,
					UUID:       c.UUID,
					AttrHandle: slot.handle,
					CCCHandle:  slot.ccc,
				})
			}
		}
	}
	s.events = append(s.events, transport.Event{Type: transport.EventProcedureDone, ConnHandle: connHandle})
	return nil
}

// Read implements transport.Radio.
func (s *Sim) Read(connHandle, attrHandle uint16) error {
	if s.connected == nil {
		return nil
	}
	s.events = append(s.events, transport.Event{
		Type:       transport.EventAttribute,
		ConnHandle: connHandle,
		AttrHandle: attrHandle,
		Data:       s.readValue(attrHandle),
	})
	return nil
}

// ReadByUUID serves the pre-discovery firmware version read.
func (s *Sim) ReadByUUID(connHandle uint16, uuid string) error {
	if s.connected == nil {
		return nil
	}
	var data []byte
	if uuid == "2a26" {
		data = []byte(s.connected.Version)
	}
	s.events = append(s.events, transport.Event{
		Type:       transport.EventAttribute,
		ConnHandle: connHandle,
		UUID:       uuid,
		Data:       data,
	})
	return nil
}

func (s *Sim) readValue(attrHandle uint16) []byte {
	for uuid, slot := range s.connected.attrs {
		if slot.handle != attrHandle {
			continue
		}
		switch uuid {
		case "2a00":
			return []byte(s.connected.Name)
		case "2a26":
			return []byte(s.connected.Version)
		}
	}
	return nil
}

// Write implements transport.Radio; unacknowledged writes vanish into the
// simulated device.
func (s *Sim) Write(_, attrHandle uint16, value []byte) error {
	s.applyWrite(attrHandle, value)
	return nil
}

// WriteWithResponse applies the value and acknowledges it.
func (s *Sim) WriteWithResponse(connHandle, attrHandle uint16, value []byte) error {
	s.applyWrite(attrHandle, value)
	s.events = append(s.events, transport.Event{
		Type: transport.EventProcedureDone, ConnHandle: connHandle, AttrHandle: attrHandle,
	})
	return nil
}

func (s *Sim) applyWrite(attrHandle uint16, value []byte) {
	if s.connected == nil {
		return
	}
	for _, slot := range s.connected.attrs {
		if slot.ccc == attrHandle || slot.handle != attrHandle {
			continue
		}
		// Control characteristic takes the same payload bytes as the air
		// interface.
		if p, ok := frame.ParsePayload(value); ok {
			s.apply(s.connected, p)
		}
	}
}

// PrepareWrite acknowledges the chunk without applying it; the simulator
// has no long attributes worth modeling.
func (s *Sim) PrepareWrite(connHandle, _ uint16, _ uint16, _ []byte) error {
	s.events = append(s.events, transport.Event{
		Type: transport.EventProcedureDone, ConnHandle: connHandle,
	})
	return nil
}

// ExecuteWrite acknowledges the commit or discard.
func (s *Sim) ExecuteWrite(connHandle uint16, _ bool) error {
	s.events = append(s.events, transport.Event{
		Type: transport.EventProcedureDone, ConnHandle: connHandle,
	})
	return nil
}

// Reset drops all link state.
func (s *Sim) Reset() error {
	s.connected = nil
	s.events = nil
	s.scanning = false
	return nil
}

// Close implements transport.Transport.
func (s *Sim) Close() error {
	if s.closed {
		return fmt.Errorf("%w: already closed", transport.ErrRadioClosed)
	}
	s.closed = true
	return nil
}

var _ transport.Transport = (*Sim)(nil)
