package security

import (
	"encoding/binary"
	"fmt"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Slot identifies one of the two live credential slots.
type Slot uint8

const (
	// SlotTransmit encrypts outbound frames.
	SlotTransmit Slot = 0

	// SlotReceive decrypts inbound frames.
	SlotReceive Slot = 1
)

// String returns the slot name.
func (s Slot) String() string {
	switch s {
	case SlotTransmit:
		return "TX"
	case SlotReceive:
		return "RX"
	default:
		return "UNKNOWN"
	}
}

// Credential is one network credential slot. Only the low bits of the
// network id are significant on the wire.
type Credential struct {
	// NetworkID identifies the network (4 bytes).
	NetworkID [4]byte

	// ApplicationKey protects frame payloads. All-zero means the slot is
	// unencrypted.
	ApplicationKey [KeySize]byte

	// HeaderKey obfuscates the frame sequence region.
	HeaderKey [KeySize]byte

	// Sequence is the last issued transmit sequence counter.
	Sequence uint32
}

// Encrypted reports whether the slot carries a usable application key.
func (c *Credential) Encrypted() bool {
	return c.ApplicationKey != [KeySize]byte{}
}

// Nonce builds the 13-byte CCM nonce for a frame: the first two bytes of
// the address field (zero-padded), the little-endian sequence counter, and
// seven reserved zero bytes.
func Nonce(address frame.LogicalAddress, sequence uint32) []byte {
	n := make([]byte, NonceSize)
	copy(n[0:2], address)
	binary.LittleEndian.PutUint32(n[2:6], sequence)
	return n
}

// headerNonce derives the header-obfuscation nonce from the first 13 bytes
// (zero-padded) of the payload ciphertext with its tag appended.
func headerNonce(payloadWithTag []byte) []byte {
	n := make([]byte, NonceSize)
	copy(n, payloadWithTag)
	return n
}

// Credential derivation generator material, fixed across the deployed
// device family.
var (
	networkIDGeneratorKey = [KeySize]byte{
		0x4B, 0xFB, 0x4A, 0x1A, 0x6F, 0xA5, 0x32, 0xD5,
		0x45, 0x8D, 0x10, 0x24, 0x5B, 0x05, 0x20, 0x99,
	}
	txKeyGeneratorKey = [KeySize]byte{
		0xCC, 0xB2, 0x7F, 0x49, 0x98, 0x08, 0xC5, 0x85,
		0x57, 0x28, 0x60, 0x74, 0x20, 0x37, 0x56, 0x7B,
	}
	rxKeyGeneratorKey = [KeySize]byte{
		0xBD, 0x90, 0xA9, 0xB6, 0xA4, 0xDA, 0x67, 0x94,
		0x44, 0xBA, 0x82, 0xF7, 0x21, 0x74, 0x44, 0x24,
	}
	headerKeyGeneratorKey = [KeySize]byte{
		0x84, 0xD7, 0x63, 0x2E, 0x7C, 0x1F, 0x93, 0x13,
		0x33, 0xD5, 0x1E, 0x49, 0x6B, 0x1B, 0x63, 0x45,
	}
	generatorNonce = []byte{
		0x8F, 0x43, 0xBB, 0x26, 0x86, 0x7E, 0x4E, 0x6A,
		0x71, 0x0B, 0x52, 0x1F, 0xAF,
	}
)

// DeriveCredentials produces the transmit and receive credentials for a
// named, password-protected network. The derivation matches deployed
// provisioning tools: each value is the leading bytes of a generator-key
// CCM encryption of its input. The key inputs are repetition-padded to a
// full block; the network id input is the bare name, so a name shorter
// than four bytes yields a zero-padded id.
func DeriveCredentials(networkName, networkPassword string) (tx, rx Credential, err error) {
	if networkName == "" || networkPassword == "" {
		return tx, rx, fmt.Errorf("network name and password must be non-empty")
	}

	id, err := deriveBytes(networkIDGeneratorKey, []byte(networkName), 4)
	if err != nil {
		return tx, rx, err
	}
	txKey, err := deriveBytes(txKeyGeneratorKey, repeatTo(networkPassword, KeySize), KeySize)
	if err != nil {
		return tx, rx, err
	}
	rxKey, err := deriveBytes(rxKeyGeneratorKey, repeatTo(networkPassword, KeySize), KeySize)
	if err != nil {
		return tx, rx, err
	}
	headerKey, err := deriveBytes(headerKeyGeneratorKey, repeatTo(networkName, KeySize), KeySize)
	if err != nil {
		return tx, rx, err
	}

	copy(tx.NetworkID[:], id)
	copy(tx.ApplicationKey[:], txKey)
	copy(tx.HeaderKey[:], headerKey)

	rx = tx
	copy(rx.ApplicationKey[:], rxKey)
	return tx, rx, nil
}

func deriveBytes(generator [KeySize]byte, input []byte, n int) ([]byte, error) {
	ct, _, err := ccmEncrypt(generator[:], generatorNonce, input)
	if err != nil {
		return nil, fmt.Errorf("credential derivation: %w", err)
	}
	if n > len(ct) {
		n = len(ct)
	}
	return ct[:n], nil
}

// repeatTo repeats s until it is at least n bytes long.
func repeatTo(s string, n int) []byte {
	b := []byte(s)
	for len(b) < n {
		b = append(b, b[:min(len(b), n-len(b))]...)
	}
	return b
}
