// Package connection implements the per-device link state machine.
//
// Exactly one physical connection is open at a time. An attempt walks
//
//	Standby -> Connecting -> (Encrypting) -> GetVersion ->
//	FindingServices -> FindingAttributes -> EnablingNotifications ->
//	ListeningData
//
// with Disconnecting reachable from any non-standby state. Bootloader
// devices take a reduced path that skips encryption and the version read
// and uses the disjoint bootloader characteristic set.
//
// Attribute discovery consults the version-keyed handle cache first: a
// cached map is accepted only when it covers every expected characteristic;
// any single missing handle forces live discovery and a cache rewrite.
//
// # Failure Handling
//
// Every state is bounded by a wall-clock timeout re-checked on each tick.
// Connect failures and unexpected disconnects increment a per-device
// failure counter; below the ceiling the machine schedules a jittered
// exponential-backoff reconnect, at the ceiling the device falls back to
// passive tracking until a fresh advertisement (and a long retest
// interval) permits another attempt. A pairing failure downgrades the next
// attempt to unencrypted rather than counting against the device.
package connection
