package security

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Engine errors.
var (
	// ErrNotEncrypted indicates a seal request while the transmit slot has
	// no application key.
	ErrNotEncrypted = errors.New("transmit credential is unencrypted")

	// ErrSequencePersist indicates the sequence counter could not be made
	// durable; the counter value must not be used.
	ErrSequencePersist = errors.New("sequence counter not persisted")

	// ErrBadHeader indicates a header region of the wrong size.
	ErrBadHeader = errors.New("header region must be 5 bytes")
)

// SequenceStore persists issued sequence counters. NextSequence calls
// Persist before releasing a value, so a crash can never reuse a counter.
type SequenceStore interface {
	// PersistSequence makes the given counter value durable for the slot.
	PersistSequence(slot Slot, sequence uint32) error
}

// Engine holds the two live credential slots and performs all frame
// cryptography. The zero slots are unencrypted.
type Engine struct {
	mu sync.Mutex

	tx Credential
	rx Credential

	store SequenceStore

	// recoveryKeys is the bounded set of legacy default application keys
	// tried after both slots fail. Empty unless explicitly configured.
	recoveryKeys [][KeySize]byte

	logger *slog.Logger
}

// NewEngine creates a security engine over the given credential slots.
// store may be nil for tests; sequence issuance then skips persistence.
func NewEngine(tx, rx Credential, store SequenceStore) *Engine {
	return &Engine{tx: tx, rx: rx, store: store, logger: slog.Default()}
}

// SetLogger replaces the debug logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetRecoveryKeys configures the bounded admin-key-recovery list. The list
// exists for compatibility with older deployed defaults and is tried, in
// order, only after both credential slots reject a frame.
func (e *Engine) SetRecoveryKeys(keys [][KeySize]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoveryKeys = append([][KeySize]byte(nil), keys...)
}

// Transmit returns a copy of the transmit credential.
func (e *Engine) Transmit() Credential {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx
}

// Receive returns a copy of the receive credential.
func (e *Engine) Receive() Credential {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rx
}

// Encrypts reports whether outbound frames are encrypted.
func (e *Engine) Encrypts() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx.Encrypted()
}

// NextSequence issues the next transmit sequence counter. The counter is
// monotonic and never re-emits 0: wraparound jumps to 1. The new value is
// persisted before it is returned.
func (e *Engine) NextSequence() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.tx.Sequence + 1
	if next == 0 {
		next = 1
	}
	if e.store != nil {
		if err := e.store.PersistSequence(SlotTransmit, next); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSequencePersist, err)
		}
	}
	e.tx.Sequence = next
	return next, nil
}

// SealPayload encrypts a payload under the transmit credential.
// Implements frame.Sealer.
func (e *Engine) SealPayload(address frame.LogicalAddress, sequence uint32, plaintext []byte) (ciphertext, tag []byte, err error) {
	e.mu.Lock()
	key := e.tx.ApplicationKey
	encrypted := e.tx.Encrypted()
	e.mu.Unlock()

	if !encrypted {
		return nil, nil, ErrNotEncrypted
	}
	return ccmEncrypt(key[:], Nonce(address, sequence), plaintext)
}

// SealHeader obfuscates the 5-byte sequence region in place, keyed by the
// transmit header key with the payload ciphertext as nonce input. The
// payload must already be sealed.
func (e *Engine) SealHeader(header, payloadWithTag []byte) error {
	e.mu.Lock()
	key := e.tx.HeaderKey
	e.mu.Unlock()
	return xorHeader(key, header, payloadWithTag)
}

// Open authenticates and decrypts a received modern frame in place: the
// header region is deobfuscated, the recovered sequence stored on the
// frame, and the payload replaced by plaintext. The receive slot is tried
// first, then the transmit slot (some device classes are provisioned with
// the slots swapped), then any configured recovery keys. Returns false
// when every candidate rejects the frame; the frame is then discarded.
func (e *Engine) Open(f *frame.Frame) bool {
	if !f.Encrypted {
		return true
	}

	e.mu.Lock()
	candidates := []Credential{e.rx, e.tx}
	for _, k := range e.recoveryKeys {
		candidates = append(candidates, Credential{ApplicationKey: k, HeaderKey: k})
	}
	e.mu.Unlock()

	withTag := make([]byte, 0, len(f.Payload)+len(f.Tag))
	withTag = append(withTag, f.Payload...)
	withTag = append(withTag, f.Tag...)

	for i := range candidates {
		cred := &candidates[i]
		if !cred.Encrypted() {
			continue
		}

		sequence := f.Sequence
		var header []byte
		if f.HeaderEncrypted {
			if len(f.HeaderBlock) != 5 {
				return false
			}
			header = append([]byte(nil), f.HeaderBlock...)
			if err := xorHeader(cred.HeaderKey, header, withTag); err != nil {
				continue
			}
			sequence = binary.LittleEndian.Uint32(header[0:4])
		}

		plain, ok := ccmDecrypt(cred.ApplicationKey[:], Nonce(f.Address, sequence), f.Payload, f.Tag)
		if !ok {
			continue
		}

		if i >= 2 {
			e.logger.Warn("frame accepted with recovery key", "index", i-2, "address", f.Address.String())
		}
		f.Sequence = sequence
		if header != nil {
			f.HeaderBlock = header
			f.HeaderEncrypted = false
		}
		f.Payload = plain
		f.Tag = nil
		f.Encrypted = false
		return true
	}
	return false
}

// xorHeader XORs one keystream block (counter 1; counter 0 is reserved for
// the tag) into the header region.
func xorHeader(key [KeySize]byte, header, payloadWithTag []byte) error {
	if len(header) != 5 {
		return ErrBadHeader
	}
	ks, err := keystreamBlock(key[:], headerNonce(payloadWithTag), 1)
	if err != nil {
		return err
	}
	for i := range header {
		header[i] ^= ks[i]
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ frame.Sealer = (*Engine)(nil)
