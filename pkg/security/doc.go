// Package security implements the XBeacon network security engine.
//
// Payloads are protected with AES-128 in CCM mode carrying a 4-byte
// integrity tag. The 13-byte nonce is built from the frame's 2-byte address
// field and the 4-byte sequence counter, zero-padded. A fixed 1-byte
// associated-data value (0x01) is authenticated with every payload;
// omitting it breaks interoperability with deployed firmware.
//
// The frame header (sequence region) is obfuscated by a second operation
// keyed by the network header key, whose nonce is derived from the
// already-produced payload ciphertext. The payload must therefore always be
// sealed before the header, and opened after it.
//
// Two credential slots are live at any time: one encrypts outbound frames,
// one decrypts inbound frames. Some device classes are provisioned with the
// slots swapped, so an inbound frame failing authentication under the
// receive slot is retried once under the transmit slot before being
// discarded. An all-zero application key marks a slot as unencrypted.
//
// Sequence counters are monotonic and persisted through a store hook before
// a new value is handed out, so a crash can never cause nonce reuse. The
// counter skips 0 on wraparound.
package security
