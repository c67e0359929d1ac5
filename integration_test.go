package xbeacon_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/internal/simradio"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/command"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/config"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/engine"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
)

// These tests drive the whole stack end to end over the simulated radio:
// engine, codec, connection machine, command queue and profile manifests,
// with nothing faked below the transport boundary.

const controlUUID = "0000f101-8e22-4541-9d4c-21edae82ed19"

func newStack(t *testing.T, devices ...*simradio.Device) (*simradio.Sim, *engine.Engine) {
	t.Helper()
	sim := simradio.New(devices...)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.CredentialFile = filepath.Join(dir, "credentials.conf")
	cfg.HandleCacheDir = filepath.Join(dir, "handle-cache")

	e, err := engine.New(cfg, sim, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	return sim, e
}

func settle(t *testing.T, sim *simradio.Sim, e *engine.Engine, rounds int, cond func() bool) {
	t.Helper()
	for i := 0; i < rounds; i++ {
		sim.Step()
		e.Tick()
		e.Tick()
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met after %d rounds", rounds)
}

func connectTo(t *testing.T, sim *simradio.Sim, e *engine.Engine, logical frame.LogicalAddress) *registry.Device {
	t.Helper()
	settle(t, sim, e, 5, func() bool { return e.Registry().Count() > 0 })

	dev, ok := e.Registry().FindByLogical(logical)
	require.True(t, ok)
	require.NoError(t, e.Connect(dev.RadioAddress))
	settle(t, sim, e, 20, func() bool { return dev.State == registry.StateListeningData })
	return dev
}

func TestAttributeReadOverConnection(t *testing.T) {
	sim, e := newStack(t, &simradio.Device{
		Radio:     frame.RadioAddress{0xC0, 0, 0, 0, 0, 0x31},
		Logical:   frame.LogicalAddress{0x31},
		Name:      "XIM-Lab",
		Version:   "1.2.0",
		Intensity: 40,
	})
	defer e.Close()

	dev := connectTo(t, sim, e, frame.LogicalAddress{0x31})

	// Device name lives behind the standard name characteristic.
	ticket, err := e.ReadAttribute(dev.RadioAddress, "2a00")
	require.NoError(t, err)

	settle(t, sim, e, 10, ticket.Done)
	require.NoError(t, ticket.Err())
	assert.Equal(t, "XIM-Lab", string(ticket.Data()))
}

func TestControlWriteOverConnection(t *testing.T) {
	d := &simradio.Device{
		Radio:     frame.RadioAddress{0xC0, 0, 0, 0, 0, 0x32},
		Logical:   frame.LogicalAddress{0x32},
		Name:      "XIM-Bench",
		Version:   "1.2.0",
		Intensity: 40,
	}
	sim, e := newStack(t, d)
	defer e.Close()

	dev := connectTo(t, sim, e, frame.LogicalAddress{0x32})

	// The control characteristic takes the same operation bytes as the
	// air interface.
	p, err := command.SetLightLevel(75, 700*time.Millisecond)
	require.NoError(t, err)

	ticket, werr := e.WriteAttribute(dev.RadioAddress, controlUUID, p.Append(nil))
	require.NoError(t, werr)

	settle(t, sim, e, 10, ticket.Done)
	require.NoError(t, ticket.Err())
	assert.InDelta(t, 75.0, d.Intensity, 0.01)
}

func TestReadOnUnknownCharacteristicFails(t *testing.T) {
	sim, e := newStack(t, &simradio.Device{
		Radio:   frame.RadioAddress{0xC0, 0, 0, 0, 0, 0x33},
		Logical: frame.LogicalAddress{0x33},
		Name:    "XIM-Edge",
		Version: "1.2.0",
	})
	defer e.Close()

	dev := connectTo(t, sim, e, frame.LogicalAddress{0x33})

	ticket, err := e.ReadAttribute(dev.RadioAddress, "0000dead-8e22-4541-9d4c-21edae82ed19")
	require.NoError(t, err)

	settle(t, sim, e, 5, ticket.Done)
	assert.ErrorIs(t, ticket.Err(), command.ErrNoHandle)
}
