// Package persistence implements the gateway's durable state.
//
// Two stores exist. HandleCacheStore keeps one attribute-map file per
// firmware version (uuid:handle:cccHandle lines), so a reconnect to a
// known firmware can skip live discovery. CredentialStore keeps the two
// network credential slots (networkId,applicationKey,headerKey,
// sequenceCounter lines, hex fields) and implements the security engine's
// sequence-persistence hook: a sequence counter is written to disk before
// it is ever used, so a crash cannot cause nonce reuse.
//
// All writes go through a temp file followed by an atomic rename; a crash
// mid-write leaves the previous file intact.
package persistence
