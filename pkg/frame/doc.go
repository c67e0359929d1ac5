// Package frame implements the XBeacon advertisement frame codec.
//
// XBeacon devices broadcast telemetry and accept commands inside the
// manufacturer-specific field of a BLE advertisement, tagged with a fixed
// 2-byte company identifier. Three payload layouts exist:
//
//   - Legacy Status-1: fixed 16-byte telemetry frame (intensity, status,
//     power, temperatures, supply voltage).
//   - Legacy Status-2: fixed 14-byte counters frame (hours, power cycles,
//     LED cycles, product id).
//   - Modern frame: variable length, self-describing via a type byte that
//     carries the addressing mode and the encryption flags. The payload is
//     type-tagged and at most 12 bytes; encrypted frames append a 4-byte
//     integrity tag.
//
// Decoding never fails loudly: anything that does not match a recognized
// company id, length, or type discriminant is classified Unrecognized and
// ignored by callers. Encoding is bounded by the advertising-data size
// limit; encrypted encoding hands the payload and then the header to a
// Sealer (the security engine), in that order.
package frame
