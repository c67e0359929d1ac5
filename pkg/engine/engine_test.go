package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/config"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/persistence"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/security"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

type fakeTransport struct {
	events  []transport.Event
	adverts [][]byte
	reps    []int
	scans   []bool
	closed  bool

	connects []frame.RadioAddress
}

func (f *fakeTransport) push(ev transport.Event) { f.events = append(f.events, ev) }

func (f *fakeTransport) Poll() (transport.Event, bool) {
	if len(f.events) == 0 {
		return transport.Event{}, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func (f *fakeTransport) SetScanning(enabled bool) error {
	f.scans = append(f.scans, enabled)
	return nil
}

func (f *fakeTransport) Advertise(data []byte, repetitions int) error {
	f.adverts = append(f.adverts, append([]byte(nil), data...))
	f.reps = append(f.reps, repetitions)
	return nil
}

func (f *fakeTransport) Connect(addr frame.RadioAddress) error {
	f.connects = append(f.connects, addr)
	return nil
}

func (f *fakeTransport) Disconnect(uint16) error                              { return nil }
func (f *fakeTransport) Pair(uint16) error                                    { return nil }
func (f *fakeTransport) DiscoverServices(uint16, transport.HandleRange) error { return nil }
func (f *fakeTransport) DiscoverCharacteristics(uint16, transport.HandleRange) error {
	return nil
}
func (f *fakeTransport) Read(uint16, uint16) error                       { return nil }
func (f *fakeTransport) ReadByUUID(uint16, string) error                 { return nil }
func (f *fakeTransport) Write(uint16, uint16, []byte) error              { return nil }
func (f *fakeTransport) WriteWithResponse(uint16, uint16, []byte) error  { return nil }
func (f *fakeTransport) PrepareWrite(uint16, uint16, uint16, []byte) error {
	return nil
}
func (f *fakeTransport) ExecuteWrite(uint16, bool) error { return nil }
func (f *fakeTransport) Reset() error                    { return nil }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

var _ transport.Transport = (*fakeTransport)(nil)

type engineFixture struct {
	e     *Engine
	tr    *fakeTransport
	cfg   *config.Config
	clock time.Time
}

// newEngineFixture builds an engine over a fake transport. encrypted
// writes derived network credentials to the credential file first.
func newEngineFixture(t *testing.T, encrypted bool) *engineFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.CredentialFile = filepath.Join(dir, "credentials.conf")
	cfg.HandleCacheDir = filepath.Join(dir, "handle-cache")

	if encrypted {
		tx, rx, err := security.DeriveCredentials("TestNet", "hunter2hunter2")
		require.NoError(t, err)
		store := persistence.NewCredentialStore(cfg.CredentialFile)
		require.NoError(t, store.Save(tx, rx))
	}

	f := &engineFixture{
		tr:    &fakeTransport{},
		cfg:   cfg,
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	e, err := New(cfg, f.tr, nil, nil)
	require.NoError(t, err)
	e.now = func() time.Time { return f.clock }
	// Keep the periodic polls out of tests that count broadcasts.
	e.lastTelemetryPoll = f.clock
	e.lastGroupPoll = f.clock
	f.e = e
	return f
}

func (f *engineFixture) tick() {
	f.e.lastTelemetryPoll = f.clock
	f.e.lastGroupPoll = f.clock
	f.e.Tick()
}

func status1Advertisement(t *testing.T, id frame.LogicalAddress) []byte {
	t.Helper()
	data, err := frame.EncodeStatus1(&frame.Status1{
		DeviceID:  id,
		Intensity: 5000, // 50.00%
		Power:     120,  // 12.0 W
	})
	require.NoError(t, err)
	return data
}

func TestAdvertisementPopulatesRegistry(t *testing.T) {
	f := newEngineFixture(t, false)
	radio := frame.RadioAddress{0xC0, 1, 2, 3, 4, 5}

	f.tr.push(transport.Event{
		Type: transport.EventScan,
		Addr: radio,
		RSSI: -60,
		Data: status1Advertisement(t, frame.LogicalAddress{10, 20, 30, 40}),
		Name: "XIM-Kitchen",
	})
	f.tick()

	dev, ok := f.e.Registry().Find(radio)
	require.True(t, ok)
	assert.Equal(t, "XIM-Kitchen", dev.Name)
	assert.Equal(t, int8(-60), dev.RSSI)
	require.NotNil(t, dev.Fixture)
	assert.InDelta(t, 50.0, dev.Fixture.Intensity, 0.001)
	assert.True(t, frame.LogicalAddress{10, 20, 30, 40}.Equal(dev.LogicalAddress))
}

func TestForeignAdvertisementsIgnored(t *testing.T) {
	f := newEngineFixture(t, false)

	f.tr.push(transport.Event{
		Type: transport.EventScan,
		Addr: frame.RadioAddress{1, 2, 3, 4, 5, 6},
		Data: []byte{0x4C, 0x00, 0x02, 0x15, 0xAA}, // other company id
	})
	f.tick()

	assert.Equal(t, 0, f.e.Registry().Count())
}

func TestEncryptedAdvertisementRoundTrip(t *testing.T) {
	f := newEngineFixture(t, true)
	require.True(t, f.e.Encrypts())

	// A device seals its uplink with the gateway's receive credential.
	tx, rx, err := security.DeriveCredentials("TestNet", "hunter2hunter2")
	require.NoError(t, err)
	sender := security.NewEngine(rx, tx, nopSequenceStore{})
	seq, err := sender.NextSequence()
	require.NoError(t, err)

	addr := frame.LogicalAddress{0x21}
	data, err := frame.EncodeModern(addr, seq, &frame.StatusPayload{Intensity: 2500}, sender)
	require.NoError(t, err)

	radio := frame.RadioAddress{0xC0, 9, 9, 9, 9, 9}
	f.tr.push(transport.Event{Type: transport.EventScan, Addr: radio, Data: data})
	f.tick()

	dev, ok := f.e.Registry().Find(radio)
	require.True(t, ok, "sealed frame must decrypt and register")
	assert.True(t, dev.Encrypted)
	require.NotNil(t, dev.Fixture)
	assert.InDelta(t, 25.0, dev.Fixture.Intensity, 0.001)
}

func TestWrongNetworkFrameDropped(t *testing.T) {
	f := newEngineFixture(t, true)

	tx, rx, err := security.DeriveCredentials("OtherNet", "wrong-password")
	require.NoError(t, err)
	sender := security.NewEngine(rx, tx, nopSequenceStore{})
	data, err := frame.EncodeModern(frame.LogicalAddress{0x21}, 9, &frame.StatusPayload{Intensity: 100}, sender)
	require.NoError(t, err)

	f.tr.push(transport.Event{
		Type: transport.EventScan,
		Addr: frame.RadioAddress{0xC0, 9, 9, 9, 9, 9},
		Data: data,
	})
	f.tick()

	assert.Equal(t, 0, f.e.Registry().Count(), "undecryptable frames never reach the registry")
}

func TestSetIntensityBroadcastsPlaintext(t *testing.T) {
	f := newEngineFixture(t, false)

	require.NoError(t, f.e.SetIntensity(frame.BroadcastAddress, 75, 0))
	f.tick()
	require.Len(t, f.tr.adverts, 1)
	assert.Equal(t, f.cfg.Control.AdvertiseRepetitions, f.tr.reps[0])

	decoded := frame.Decode(f.tr.adverts[0])
	require.Equal(t, frame.KindModern, decoded.Kind)
	assert.False(t, decoded.Encrypted)
	assert.True(t, frame.LogicalAddress{0xFF}.Equal(decoded.Address), "broadcast collapses to the short wildcard")

	p, ok := frame.ParsePayload(decoded.Payload)
	require.True(t, ok)
	cp, ok := p.(*frame.ControlPayload)
	require.True(t, ok)
	assert.Equal(t, frame.OpSetLightLevel, cp.Op)
}

func TestAssignedCommandIsSealed(t *testing.T) {
	f := newEngineFixture(t, true)

	require.NoError(t, f.e.SetIntensity(frame.LogicalAddress{0x21}, 100, time.Second))
	f.tick()
	require.Len(t, f.tr.adverts, 1)

	decoded := frame.Decode(f.tr.adverts[0])
	require.Equal(t, frame.KindModern, decoded.Kind)
	require.True(t, decoded.Encrypted)
	require.True(t, decoded.HeaderEncrypted)

	// The device side opens it with the mirrored credentials.
	tx, rx, err := security.DeriveCredentials("TestNet", "hunter2hunter2")
	require.NoError(t, err)
	receiver := security.NewEngine(rx, tx, nopSequenceStore{})
	require.True(t, receiver.Open(&decoded))
	assert.Equal(t, uint32(1), decoded.Sequence, "first issued sequence")

	p, ok := frame.ParsePayload(decoded.Payload)
	require.True(t, ok)
	assert.Equal(t, frame.OpSetLightLevel, p.Tag())
}

func TestSetIntensityValidatesRange(t *testing.T) {
	f := newEngineFixture(t, false)
	assert.Error(t, f.e.SetIntensity(frame.BroadcastAddress, 120, 0))
	f.tick()
	assert.Empty(t, f.tr.adverts, "rejected commands never reach the queue")
}

func TestBroadcastsDrainThroughQueue(t *testing.T) {
	f := newEngineFixture(t, false)

	require.NoError(t, f.e.SetIntensity(frame.BroadcastAddress, 75, 0))
	require.NoError(t, f.e.StopFade(frame.BroadcastAddress))
	assert.Empty(t, f.tr.adverts, "commands wait in the queue until the tick loop drains them")

	f.tick()
	require.Len(t, f.tr.adverts, 1, "one frame on the air per tick")
	f.tick()
	require.Len(t, f.tr.adverts, 2)

	ops := make([]uint8, 0, 2)
	for _, data := range f.tr.adverts {
		p, ok := frame.ParsePayload(frame.Decode(data).Payload)
		require.True(t, ok)
		ops = append(ops, p.Tag())
	}
	assert.Equal(t, []uint8{frame.OpSetLightLevel, frame.OpStopFade}, ops, "strict FIFO order")
}

func TestConnectWaitsForAdvertisement(t *testing.T) {
	f := newEngineFixture(t, false)
	radio := frame.RadioAddress{0xC0, 1, 2, 3, 4, 5}

	require.ErrorIs(t, f.e.Connect(radio), ErrUnknownDevice)

	f.tr.push(transport.Event{
		Type: transport.EventScan,
		Addr: radio,
		Data: status1Advertisement(t, frame.LogicalAddress{10, 20, 30, 40}),
	})
	f.tick()

	// Known and idle: the window request is queued, not dialed directly.
	require.NoError(t, f.e.Connect(radio))
	assert.Empty(t, f.tr.connects, "no dial before the window request is on the air")

	f.tick()
	require.NotEmpty(t, f.tr.adverts, "connect asks the device to open its window")
	decoded := frame.Decode(f.tr.adverts[len(f.tr.adverts)-1])
	p, ok := frame.ParsePayload(decoded.Payload)
	require.True(t, ok)
	assert.Equal(t, frame.OpEnableConnections, p.Tag())
	assert.Empty(t, f.tr.connects, "still waiting for a fresh advertisement")

	// The next advertisement from the target starts the attempt.
	f.tr.push(transport.Event{
		Type: transport.EventScan,
		Addr: radio,
		Data: status1Advertisement(t, frame.LogicalAddress{10, 20, 30, 40}),
	})
	f.tick()
	require.Len(t, f.tr.connects, 1)
	assert.Equal(t, radio, f.tr.connects[0])
}

func TestGroupSegmentsAssembleFromAdvertisements(t *testing.T) {
	f := newEngineFixture(t, false)
	radio := frame.RadioAddress{0xC0, 1, 2, 3, 4, 5}

	segment := func(offset uint8, last bool, slots []uint16) []byte {
		data, err := frame.EncodeModern(radio.Unassigned(), 0,
			&frame.GroupInfoPayload{Offset: offset, LastPacket: last, Slots: slots}, nil)
		require.NoError(t, err)
		return data
	}

	f.tr.push(transport.Event{Type: transport.EventScan, Addr: radio, Data: segment(0, false, []uint16{7, 8, 9, 10, 11})})
	f.tr.push(transport.Event{Type: transport.EventScan, Addr: radio, Data: segment(5, true, []uint16{12})})
	f.tick()

	dev, ok := f.e.Registry().Find(radio)
	require.True(t, ok)
	assert.True(t, dev.Groups.Complete)
	assert.True(t, dev.Groups.InGroup(9))
	assert.Equal(t, frame.UnassignedSlot, dev.Groups.Slots[15])
}

func TestControllerFailureReinitializesTransport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.CredentialFile = filepath.Join(dir, "credentials.conf")
	cfg.HandleCacheDir = filepath.Join(dir, "handle-cache")

	first := &fakeTransport{}
	second := &fakeTransport{}
	e, err := New(cfg, first, func() (transport.Transport, error) { return second, nil }, nil)
	require.NoError(t, err)

	for i := 0; i < transport.DefaultFailureThreshold; i++ {
		first.push(transport.Event{Type: transport.EventControllerFailure, Reason: 0x01})
		e.Tick()
	}

	assert.True(t, first.closed, "failed transport is torn down")
	assert.Equal(t, []bool{true}, second.scans, "replacement resumes scanning")

	// Broadcasts now go out the replacement.
	require.NoError(t, e.StopFade(frame.BroadcastAddress))
	e.Tick()
	assert.Empty(t, first.adverts)
	assert.Len(t, second.adverts, 1)
}

type nopSequenceStore struct{}

func (nopSequenceStore) PersistSequence(security.Slot, uint32) error { return nil }
