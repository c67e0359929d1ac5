package registry

import (
	"sync"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Registry is the set of all observed devices, keyed by radio address.
type Registry struct {
	mu      sync.RWMutex
	devices map[frame.RadioAddress]*Device

	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[frame.RadioAddress]*Device),
		now:     time.Now,
	}
}

// Upsert merges one decoded (and, if applicable, already decrypted)
// advertisement into the registry. The device record is created on the
// first frame that classifies the sender; an Unrecognized frame returns
// (nil, nil). For modern frames the typed payload is returned so the caller
// can act on non-telemetry pages (group-info segments, request-adv).
func (r *Registry) Upsert(radio frame.RadioAddress, f *frame.Frame, rssi int8, name string) (*Device, frame.Payload) {
	if f == nil || f.Kind == frame.KindUnrecognized {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.devices[radio]
	if d == nil {
		d = &Device{
			RadioAddress:   radio,
			LogicalAddress: radio.Unassigned(),
			Attributes:     make(map[string]AttributeEntry),
		}
		for i := range d.Groups.Slots {
			d.Groups.Slots[i] = frame.UnassignedSlot
		}
		r.devices[radio] = d
	}

	d.LastSeen = r.now()
	d.RSSI = rssi
	if name != "" {
		d.Name = name
	}

	var payload frame.Payload
	switch f.Kind {
	case frame.KindStatus1:
		d.LogicalAddress = f.Status1.DeviceID
		d.applyStatus1(f.Status1)
	case frame.KindStatus2:
		d.LogicalAddress = f.Status2.DeviceID
		d.applyStatus2(f.Status2)
	case frame.KindModern:
		if len(f.Address) > 0 {
			d.LogicalAddress = f.Address
		}
		var ok bool
		payload, ok = frame.ParsePayload(f.Payload)
		if !ok {
			return d, nil
		}
		d.Apply(payload)
	}
	return d, payload
}

// Find returns the device with the given radio address.
func (r *Registry) Find(radio frame.RadioAddress) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[radio]
	return d, ok
}

// FindByLogical returns the first device whose logical address equals the
// given one (both widened to the 4-byte form).
func (r *Registry) FindByLogical(addr frame.LogicalAddress) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := addr.Widen()
	for _, d := range r.devices {
		if d.LogicalAddress.Widen().Equal(want) {
			return d, true
		}
	}
	return nil, false
}

// FindByHandle returns the device holding the given live connection handle.
func (r *Registry) FindByHandle(connHandle uint16) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Connected && d.ConnHandle == connHandle {
			return d, true
		}
	}
	return nil, false
}

// ByGroup returns every device whose logical address matches the mask.
// A 0xFF in any mask byte is a wildcard for that position; the full
// broadcast mask matches every device.
func (r *Registry) ByGroup(mask frame.LogicalAddress) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Device
	for _, d := range r.devices {
		if d.LogicalAddress.Matches(mask) {
			out = append(out, d)
		}
	}
	return out
}

// All returns every tracked device.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
