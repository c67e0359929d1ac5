package persistence

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/security"
)

// ErrMalformedCredentialFile indicates a credential file that does not
// carry the expected two slot lines.
var ErrMalformedCredentialFile = errors.New("malformed credential file")

// CredentialStore persists the two network credential slots. The file
// holds one line per slot, transmit first:
//
//	networkId,applicationKey,headerKey,sequenceCounter
//
// with hex fields. The store caches the last loaded or saved slots so the
// sequence-persistence hook can rewrite the file without a read-modify
// race.
type CredentialStore struct {
	mu     sync.Mutex
	path   string
	tx     security.Credential
	rx     security.Credential
	loaded bool
}

// NewCredentialStore creates a store over the given file path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Load reads both slots. A missing file yields zero (unencrypted) slots
// and no error.
func (s *CredentialStore) Load() (tx, rx security.Credential, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return s.tx, s.rx, nil
	}
	if err != nil {
		return tx, rx, fmt.Errorf("read credential file: %w", err)
	}

	lines := make([]string, 0, 2)
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 {
		return tx, rx, fmt.Errorf("%w: %d slot lines", ErrMalformedCredentialFile, len(lines))
	}

	if tx, err = parseCredentialLine(lines[0]); err != nil {
		return tx, rx, err
	}
	if rx, err = parseCredentialLine(lines[1]); err != nil {
		return tx, rx, err
	}

	s.tx, s.rx = tx, rx
	s.loaded = true
	return tx, rx, nil
}

// Save rewrites both slots atomically.
func (s *CredentialStore) Save(tx, rx security.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(tx, rx)
}

// PersistSequence durably records a newly issued sequence counter for the
// slot. Implements security.SequenceStore; called by the security engine
// before the counter is used.
func (s *CredentialStore) PersistSequence(slot security.Slot, sequence uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("credential store: persist before load")
	}
	switch slot {
	case security.SlotTransmit:
		s.tx.Sequence = sequence
	case security.SlotReceive:
		s.rx.Sequence = sequence
	}
	return s.saveLocked(s.tx, s.rx)
}

func (s *CredentialStore) saveLocked(tx, rx security.Credential) error {
	var b strings.Builder
	writeCredentialLine(&b, tx)
	writeCredentialLine(&b, rx)
	if err := writeAtomic(s.path, []byte(b.String())); err != nil {
		return err
	}
	s.tx, s.rx = tx, rx
	s.loaded = true
	return nil
}

func writeCredentialLine(b *strings.Builder, c security.Credential) {
	fmt.Fprintf(b, "%s,%s,%s,%08x\n",
		hex.EncodeToString(c.NetworkID[:]),
		hex.EncodeToString(c.ApplicationKey[:]),
		hex.EncodeToString(c.HeaderKey[:]),
		c.Sequence)
}

func parseCredentialLine(line string) (security.Credential, error) {
	var c security.Credential
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return c, fmt.Errorf("%w: %d fields", ErrMalformedCredentialFile, len(parts))
	}
	if err := decodeHexInto(parts[0], c.NetworkID[:]); err != nil {
		return c, fmt.Errorf("%w: network id: %v", ErrMalformedCredentialFile, err)
	}
	if err := decodeHexInto(parts[1], c.ApplicationKey[:]); err != nil {
		return c, fmt.Errorf("%w: application key: %v", ErrMalformedCredentialFile, err)
	}
	if err := decodeHexInto(parts[2], c.HeaderKey[:]); err != nil {
		return c, fmt.Errorf("%w: header key: %v", ErrMalformedCredentialFile, err)
	}
	if _, err := fmt.Sscanf(parts[3], "%x", &c.Sequence); err != nil {
		return c, fmt.Errorf("%w: sequence counter: %v", ErrMalformedCredentialFile, err)
	}
	return c, nil
}

func decodeHexInto(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("got %d bytes, want %d", len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// Compile-time interface satisfaction check.
var _ security.SequenceStore = (*CredentialStore)(nil)
