package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
)

func groupDevice(last byte) *registry.Device {
	return &registry.Device{
		RadioAddress: frame.RadioAddress{0xC0, 0x00, 0x00, 0x00, 0x00, last},
	}
}

func TestApplyAssemblesSegments(t *testing.T) {
	r := NewResolver(Config{}, nil)
	dev := groupDevice(1)

	done, err := r.Apply(dev, &frame.GroupInfoPayload{
		Offset: 0,
		Slots:  []uint16{10, 11, 12, 13, 14},
	})
	require.NoError(t, err)
	assert.False(t, done, "table incomplete after the first segment")
	assert.False(t, dev.Groups.Complete)

	done, err = r.Apply(dev, &frame.GroupInfoPayload{
		Offset:     5,
		LastPacket: true,
		Slots:      []uint16{15, 16, 17},
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, dev.Groups.Complete)

	assert.Equal(t, uint16(10), dev.Groups.Slots[0])
	assert.Equal(t, uint16(17), dev.Groups.Slots[7])
	for i := 8; i < frame.GroupTableSize; i++ {
		assert.Equal(t, frame.UnassignedSlot, dev.Groups.Slots[i], "slot %d past the last segment", i)
	}
	assert.True(t, dev.Groups.InGroup(12))
	assert.False(t, dev.Groups.InGroup(99))
}

func TestApplyToleratesGapsAndReordering(t *testing.T) {
	r := NewResolver(Config{}, nil)
	dev := groupDevice(1)

	// Final segment arrives first; the earlier slots are still unknown.
	done, err := r.Apply(dev, &frame.GroupInfoPayload{
		Offset:     10,
		LastPacket: true,
		Slots:      []uint16{30, 31},
	})
	require.NoError(t, err)
	assert.False(t, done, "slots 0-9 were never reported")

	done, err = r.Apply(dev, &frame.GroupInfoPayload{Offset: 0, Slots: []uint16{20, 21, 22, 23, 24}})
	require.NoError(t, err)
	assert.False(t, done)

	done, err = r.Apply(dev, &frame.GroupInfoPayload{Offset: 5, Slots: []uint16{25, 26, 27, 28, 29}})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, uint16(30), dev.Groups.Slots[10])
	assert.Equal(t, frame.UnassignedSlot, dev.Groups.Slots[15])
}

func TestApplyRejectsOutOfRangeSegment(t *testing.T) {
	r := NewResolver(Config{}, nil)
	dev := groupDevice(1)

	_, err := r.Apply(dev, &frame.GroupInfoPayload{
		Offset: 14,
		Slots:  []uint16{1, 2, 3},
	})
	require.ErrorIs(t, err, ErrSegmentOutOfRange)
	assert.False(t, dev.Groups.Known[14], "rejected segment must not touch the table")
}

func TestApplyRestartsCompletedTable(t *testing.T) {
	r := NewResolver(Config{}, nil)
	dev := groupDevice(1)

	_, err := r.Apply(dev, &frame.GroupInfoPayload{Offset: 0, LastPacket: true, Slots: []uint16{7}})
	require.NoError(t, err)
	require.True(t, dev.Groups.Complete)

	// The device re-reports after a membership change; the old table must
	// not bleed through.
	done, err := r.Apply(dev, &frame.GroupInfoPayload{Offset: 0, Slots: []uint16{8, 9}})
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, dev.Groups.Complete)
	assert.False(t, dev.Groups.InGroup(7))
	assert.True(t, dev.Groups.Known[1])
	assert.False(t, dev.Groups.Known[2])
}

func TestNextPollRoundRobin(t *testing.T) {
	r := NewResolver(Config{}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := groupDevice(1)
	b := groupDevice(2)
	c := groupDevice(3)
	devices := []*registry.Device{c, a, b} // unordered input

	first := r.NextPoll(devices, now)
	require.Same(t, a, first)
	r.RecordAttempt(first, now)

	// a just went; the cursor moves on even though a is still incomplete.
	second := r.NextPoll(devices, now)
	require.Same(t, b, second)
	r.RecordAttempt(second, now)

	third := r.NextPoll(devices, now)
	require.Same(t, c, third)
	r.RecordAttempt(third, now)

	// All were just attempted; nothing is due until the interval passes.
	assert.Nil(t, r.NextPoll(devices, now))
	assert.NotNil(t, r.NextPoll(devices, now.Add(DefaultRetryInterval)))
}

func TestNextPollSkipsCompleteDevices(t *testing.T) {
	r := NewResolver(Config{}, nil)
	now := time.Now()

	a := groupDevice(1)
	b := groupDevice(2)
	_, err := r.Apply(a, &frame.GroupInfoPayload{Offset: 0, LastPacket: true, Slots: []uint16{1}})
	require.NoError(t, err)

	assert.Same(t, b, r.NextPoll([]*registry.Device{a, b}, now))
	assert.Equal(t, 1, r.Pending([]*registry.Device{a, b}))
}

func TestPollingSlowsPastRetryLimitButNeverStops(t *testing.T) {
	cfg := Config{RetryLimit: 3, RetryInterval: 10 * time.Second, SlowInterval: 10 * time.Minute}
	r := NewResolver(cfg, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	dev := groupDevice(1)
	devices := []*registry.Device{dev}

	for i := 0; i < cfg.RetryLimit; i++ {
		got := r.NextPoll(devices, now)
		require.Same(t, dev, got, "attempt %d", i)
		r.RecordAttempt(got, now)
		now = now.Add(cfg.RetryInterval)
	}

	// Past the limit the short interval no longer qualifies it.
	assert.Nil(t, r.NextPoll(devices, now))

	// But the slow interval does; the device is never abandoned.
	now = now.Add(cfg.SlowInterval)
	assert.Same(t, dev, r.NextPoll(devices, now))
}

func TestCompletionResetsRetries(t *testing.T) {
	r := NewResolver(Config{}, nil)
	now := time.Now()
	dev := groupDevice(1)

	for i := 0; i < DefaultRetryLimit+2; i++ {
		r.RecordAttempt(dev, now)
	}
	require.GreaterOrEqual(t, dev.Groups.Retries, DefaultRetryLimit)

	_, err := r.Apply(dev, &frame.GroupInfoPayload{Offset: 0, LastPacket: true, Slots: []uint16{4}})
	require.NoError(t, err)
	assert.Zero(t, dev.Groups.Retries)
}
