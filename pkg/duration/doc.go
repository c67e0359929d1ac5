// Package duration implements the protocol's nonlinear duration tables.
//
// Broadcast commands carry time-valued fields (fade time, override time,
// indicate period) as a single index into a fixed lookup table rather than
// as a raw duration. The tables are nonlinear: fine resolution at short
// durations, coarse at long ones, so one byte spans sub-second fades up to
// multi-minute overrides.
//
// Encoding uses nearest-value lookup: the chosen entry is the table value
// closest to the requested duration, clamped to the table's range. Decoding
// an out-of-range index is an error; the deployed firmware never emits one.
package duration
