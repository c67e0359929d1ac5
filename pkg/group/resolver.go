package group

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
)

// Segment errors.
var (
	// ErrSegmentOutOfRange indicates a segment that does not fit the table.
	ErrSegmentOutOfRange = errors.New("group segment out of range")
)

// Scheduling defaults.
const (
	// DefaultRetryLimit is how many closely spaced requests a device gets
	// before dropping to the slow interval.
	DefaultRetryLimit = 5

	// DefaultRetryInterval spaces requests under the retry limit.
	DefaultRetryInterval = 10 * time.Second

	// DefaultSlowInterval spaces requests past the retry limit.
	DefaultSlowInterval = 10 * time.Minute
)

// Config bounds the resolver's polling. Zero fields take defaults.
type Config struct {
	RetryLimit    int
	RetryInterval time.Duration
	SlowInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = DefaultSlowInterval
	}
	return c
}

// Resolver assembles group tables and picks which device to poll next.
// It is owned by the engine and called only from the tick loop.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	// lastPolled rotates the round-robin cursor.
	lastPolled frame.RadioAddress
}

// NewResolver creates a resolver.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg.withDefaults(), logger: logger}
}

// Apply writes one segment into the device's group table. It returns true
// when the segment completed the table.
func (r *Resolver) Apply(dev *registry.Device, p *frame.GroupInfoPayload) (bool, error) {
	if int(p.Offset)+len(p.Slots) > frame.GroupTableSize {
		return false, fmt.Errorf("%w: offset %d, %d slots", ErrSegmentOutOfRange, p.Offset, len(p.Slots))
	}

	g := &dev.Groups
	if g.Complete {
		// A device may be re-reporting after a membership change; start a
		// fresh reconstruction so stale slots cannot linger.
		*g = registry.GroupMembership{}
	}

	for i, slot := range p.Slots {
		g.Slots[int(p.Offset)+i] = slot
		g.Known[int(p.Offset)+i] = true
	}
	if p.LastPacket {
		// Everything past the final segment is unassigned.
		for i := int(p.Offset) + len(p.Slots); i < frame.GroupTableSize; i++ {
			g.Slots[i] = frame.UnassignedSlot
			g.Known[i] = true
		}
	}

	for _, known := range g.Known {
		if !known {
			return false, nil
		}
	}
	g.Complete = true
	g.Retries = 0
	r.logger.Debug("group table complete", "device", dev.RadioAddress.String())
	return true, nil
}

// NextPoll returns the device whose group table should be requested next,
// or nil when nothing is due. Devices rotate fairly; a device under the
// retry limit is due after the short interval, past it after the slow one.
func (r *Resolver) NextPoll(devices []*registry.Device, now time.Time) *registry.Device {
	var pick *registry.Device
	pickAfterCursor := false

	for _, dev := range devices {
		if !r.due(dev, now) {
			continue
		}
		afterCursor := r.lastPolled != (frame.RadioAddress{}) && addrLess(r.lastPolled, dev.RadioAddress)
		switch {
		case pick == nil:
			pick, pickAfterCursor = dev, afterCursor
		case afterCursor && !pickAfterCursor:
			pick, pickAfterCursor = dev, true
		case afterCursor == pickAfterCursor && addrLess(dev.RadioAddress, pick.RadioAddress):
			pick = dev
		}
	}
	return pick
}

// RecordAttempt notes that a request was just broadcast for the device.
func (r *Resolver) RecordAttempt(dev *registry.Device, now time.Time) {
	dev.Groups.Retries++
	dev.Groups.LastAttempt = now
	r.lastPolled = dev.RadioAddress
	if dev.Groups.Retries == r.cfg.RetryLimit {
		r.logger.Debug("group polling slowed", "device", dev.RadioAddress.String(), "retries", dev.Groups.Retries)
	}
}

// Pending reports how many devices still have incomplete tables.
func (r *Resolver) Pending(devices []*registry.Device) int {
	n := 0
	for _, dev := range devices {
		if !dev.Groups.Complete {
			n++
		}
	}
	return n
}

func (r *Resolver) due(dev *registry.Device, now time.Time) bool {
	g := &dev.Groups
	if g.Complete {
		return false
	}
	interval := r.cfg.RetryInterval
	if g.Retries >= r.cfg.RetryLimit {
		interval = r.cfg.SlowInterval
	}
	return g.LastAttempt.IsZero() || now.Sub(g.LastAttempt) >= interval
}

func addrLess(a, b frame.RadioAddress) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
