// Package transport defines the boundary to the BLE radio controller.
//
// The engine treats the radio purely as a command sink plus an inbound
// event stream: commands are issued through the Radio interface, and
// everything the controller reports back (scan responses, connection
// status, attribute values, procedure completions, bonding results)
// arrives as Event values pulled from the same source.
//
// Implementations wrap a real radio controller link or, for tests and the
// CLI, the simulated controller under internal/simradio. The engine never
// blocks on the radio: every Radio call submits a command and returns;
// results come back as events.
//
// FailureMonitor implements the controller-failure policy: repeated
// command or link failures past a threshold mean the controller itself is
// wedged, and the whole transport is torn down and re-initialized rather
// than retried piecemeal.
package transport
