// Package group reconstructs device group tables from segmented
// advertisement responses and schedules the polling that elicits them.
//
// A device carries sixteen group slots but a single advertisement payload
// fits at most five, so membership arrives as offset-tagged segments in
// arbitrary order, possibly with gaps. The resolver writes each segment
// into the device's table, fills the tail past the final segment with the
// unassigned sentinel, and marks the table complete only once every slot
// has been accounted for.
//
// Polling is round-robin over devices with incomplete tables. Each device
// gets a bounded number of closely spaced requests; past that ceiling it is
// retried on a long fixed interval rather than dropped, since a device may
// simply have been out of range.
package group
