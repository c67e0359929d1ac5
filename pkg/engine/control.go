package engine

import (
	"fmt"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/command"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// SetIntensity fades the addressed devices to the given percent. A zero
// fade takes the configured default.
func (e *Engine) SetIntensity(target frame.LogicalAddress, percent float64, fade time.Duration) error {
	if fade <= 0 {
		fade = e.cfg.Control.DefaultFade.Std()
	}
	p, err := command.SetLightLevel(percent, fade)
	if err != nil {
		return err
	}
	return e.broadcast(target, p)
}

// StopFade freezes any running fade on the addressed devices.
func (e *Engine) StopFade(target frame.LogicalAddress) error {
	return e.broadcast(target, command.StopFade())
}

// RecallScene recalls a stored scene on the addressed devices.
func (e *Engine) RecallScene(target frame.LogicalAddress, scene uint16, fade time.Duration) error {
	if fade <= 0 {
		fade = e.cfg.Control.DefaultFade.Std()
	}
	return e.broadcast(target, command.RecallScene(scene, fade))
}

// Indicate blinks the addressed devices for visual identification.
// Zero-valued pattern parameters take the configured defaults.
func (e *Engine) Indicate(target frame.LogicalAddress, flashes uint8, period time.Duration, highPct, lowPct float64) error {
	if flashes == 0 {
		flashes = uint8(e.cfg.Control.IndicateCount)
	}
	if period <= 0 {
		period = e.cfg.Control.IndicatePeriod.Std()
	}
	if highPct <= 0 {
		highPct = e.cfg.Control.IndicateIntensity
	}
	p, err := command.Indicate(period, flashes, highPct, lowPct)
	if err != nil {
		return err
	}
	return e.broadcast(target, p)
}

// SensorOverride puts the addressed devices' sensor logic into the given
// mode for the duration.
func (e *Engine) SensorOverride(target frame.LogicalAddress, mode uint8, d time.Duration) error {
	return e.broadcast(target, command.SensorControlMode(mode, d))
}

// EnableConnections opens the connectable window on the addressed
// devices for the given duration. A non-positive window closes it.
func (e *Engine) EnableConnections(target frame.LogicalAddress, window time.Duration) error {
	return e.broadcast(target, command.EnableConnections(window))
}

// RequestGroupInfo asks the addressed devices to broadcast their group
// tables.
func (e *Engine) RequestGroupInfo(target frame.LogicalAddress) error {
	return e.broadcast(target, command.GroupInfoRequest())
}

// RequestTelemetry asks the addressed devices to re-broadcast the listed
// telemetry pages.
func (e *Engine) RequestTelemetry(target frame.LogicalAddress, pages ...uint8) error {
	if len(pages) == 0 {
		pages = []uint8{command.PageStatus, command.PageHistory}
	}
	return e.broadcast(target, command.RequestAdv(pages...))
}

// Connect requests a connection to the device. The device is asked to
// open its connectable window; the attempt starts once that request has
// been on the air, the device advertises again, and the machine is free.
func (e *Engine) Connect(radio frame.RadioAddress) error {
	dev, ok := e.registry.Find(radio)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, radio)
	}

	window := e.cfg.Control.ConnectWindow.Std()
	t, err := e.enqueueBroadcast(dev.LogicalAddress, command.EnableConnections(window))
	if err != nil {
		return err
	}
	e.wantConnect[radio] = t
	return nil
}

// Disconnect tears down the connection in progress, if any.
func (e *Engine) Disconnect() {
	e.machine.RequestDisconnect("requested")
}

// Connected returns the device the machine currently owns, or nil.
func (e *Engine) Connected() bool {
	return e.machine.Busy()
}

// WriteAttribute queues a write of the named characteristic on a
// connected device. The ticket resolves on a later tick.
func (e *Engine) WriteAttribute(radio frame.RadioAddress, uuid string, value []byte) (*command.Ticket, error) {
	dev, ok := e.registry.Find(radio)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, radio)
	}
	return e.queue.Write(dev, uuid, value, e.cfg.Commands.Timeout.Std()), nil
}

// ReadAttribute queues a read of the named characteristic on a connected
// device.
func (e *Engine) ReadAttribute(radio frame.RadioAddress, uuid string) (*command.Ticket, error) {
	dev, ok := e.registry.Find(radio)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, radio)
	}
	return e.queue.Read(dev, uuid, e.cfg.Commands.Timeout.Std()), nil
}
