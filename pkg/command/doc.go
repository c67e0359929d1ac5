// Package command builds outbound control operations and serializes
// connection-oriented attribute traffic.
//
// Broadcast operations are stateless payload builders: intensities are
// scaled to the wire's hundredths encoding and durations are mapped to the
// nearest entry of the protocol's nonlinear index tables before the frame
// layer seals and encodes them.
//
// Connected traffic goes through a FIFO queue with at most one request in
// flight. Callers receive a Ticket that resolves on a later tick when the
// acknowledgement (or value, or timeout) arrives. Values over the
// attribute-write limit are split into offset-tagged prepared chunks that
// are committed atomically; any chunk failure abandons the whole write
// without retry.
package command
