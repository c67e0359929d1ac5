// Package registry tracks every device the gateway has observed.
//
// Devices are keyed by radio address and created on the first advertisement
// that unambiguously classifies the sender as a fixture or a sensor. A
// device is never auto-deleted. Every accepted advertisement or connection
// event merges into the device record with last-known-value semantics:
// fields absent from a given frame are left untouched.
//
// The registry is owned by the engine and mutated only from its tick loop;
// the internal lock exists so read-only callers (CLI, status surfaces) can
// inspect it concurrently.
package registry
