// Package engine is the gateway core: a single-threaded cooperative loop
// that pumps radio events through the frame codec, security engine and
// device registry, drives the connection machine and command queue, and
// exposes the public control surface.
//
// Everything happens inside Tick. The transport is polled for pending
// events, advertisements are decoded, decrypted and merged into the
// registry, due work (reconnects, queued attribute requests, group-table
// polling, telemetry refresh) is dispatched, and wall-clock bounds are
// re-checked. No other goroutine touches the engine's state; callers
// integrate it by calling Tick from their own loop.
//
// Controller failures are counted and, past a threshold, the transport is
// torn down and reopened through the factory the engine was built with.
package engine
