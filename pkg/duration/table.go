package duration

import (
	"errors"
	"fmt"
	"time"
)

// ErrIndexOutOfRange indicates a table index past the last entry.
var ErrIndexOutOfRange = errors.New("duration index out of range")

// Table is a fixed nonlinear duration lookup table. Entries are strictly
// increasing.
type Table struct {
	name   string
	values []time.Duration
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.values) }

// Value returns the duration at the given wire index.
func (t *Table) Value(index uint8) (time.Duration, error) {
	if int(index) >= len(t.values) {
		return 0, fmt.Errorf("%w: %s[%d], table has %d entries", ErrIndexOutOfRange, t.name, index, len(t.values))
	}
	return t.values[index], nil
}

// Nearest returns the wire index of the entry closest to d, and the entry's
// actual value. Durations below the first entry clamp to index 0, above the
// last entry to the final index. Ties round down.
func (t *Table) Nearest(d time.Duration) (index uint8, actual time.Duration) {
	if d <= t.values[0] {
		return 0, t.values[0]
	}
	last := len(t.values) - 1
	if d >= t.values[last] {
		return uint8(last), t.values[last]
	}

	// First entry >= d; binary search keeps long tables cheap.
	lo, hi := 0, last
	for lo < hi {
		mid := (lo + hi) / 2
		if t.values[mid] < d {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	below := t.values[lo-1]
	above := t.values[lo]
	if d-below <= above-d {
		return uint8(lo - 1), below
	}
	return uint8(lo), above
}

// Resolution returns the step size of the table around d: the gap between
// the two entries bracketing it. The nearest entry to any in-range duration
// is within this distance.
func (t *Table) Resolution(d time.Duration) time.Duration {
	last := len(t.values) - 1
	if d <= t.values[0] || last == 0 {
		return t.values[0]
	}
	if d >= t.values[last] {
		return t.values[last] - t.values[last-1]
	}
	for i := 1; i <= last; i++ {
		if t.values[i] >= d {
			return t.values[i] - t.values[i-1]
		}
	}
	return t.values[last] - t.values[last-1]
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// FadeTimes is the fade-duration table used by light-level and scene
// commands. 100 ms steps below one second, then progressively coarser out
// to ten minutes.
var FadeTimes = &Table{
	name: "fade",
	values: []time.Duration{
		ms(0), ms(100), ms(200), ms(300), ms(400), ms(500), ms(600), ms(700),
		ms(800), ms(900), ms(1000), ms(1200), ms(1400), ms(1700), ms(2000),
		ms(2500), ms(3000), ms(4000), ms(5000), ms(6000), ms(8000), ms(10000),
		ms(15000), ms(20000), ms(30000), ms(45000), ms(60000), ms(90000),
		ms(120000), ms(180000), ms(300000), ms(600000),
	},
}

// OverrideTimes is the override/hold-duration table used by sensor-control
// and enable-connections commands. Zero means "no override".
var OverrideTimes = &Table{
	name: "override",
	values: []time.Duration{
		ms(0), ms(500), ms(1000), ms(2000), ms(3000), ms(4000), ms(5000),
		ms(10000), ms(15000), ms(20000), ms(30000), ms(45000), ms(60000),
		ms(90000), ms(120000), ms(180000), ms(300000), ms(600000),
		ms(900000), ms(1800000), ms(2700000), ms(3600000),
	},
}

// IndicatePeriods is the flash-period table used by the indicate command.
var IndicatePeriods = &Table{
	name: "indicate",
	values: []time.Duration{
		ms(100), ms(200), ms(300), ms(400), ms(500), ms(750), ms(1000),
		ms(1250), ms(1500), ms(2000), ms(2500), ms(3000), ms(4000), ms(5000),
	},
}
