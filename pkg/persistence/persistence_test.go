package persistence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/security"
)

func TestHandleCacheRoundTrip(t *testing.T) {
	store := NewHandleCacheStore(t.TempDir())

	entries := map[string]registry.AttributeEntry{
		"0baf4b56-7e91-47e9-8f9e-5f2a4d7b9c01": {Handle: 0x0010, CCCHandle: 0x0011},
		"2a26":                                 {Handle: 0x0022},
	}
	require.NoError(t, store.Save("1.4.2", entries))

	got, err := store.Load("1.4.2")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestHandleCacheMissingVersion(t *testing.T) {
	store := NewHandleCacheStore(t.TempDir())
	got, err := store.Load("9.9.9")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleCacheVersionsIsolated(t *testing.T) {
	store := NewHandleCacheStore(t.TempDir())
	require.NoError(t, store.Save("1.0.0", map[string]registry.AttributeEntry{"2a26": {Handle: 1}}))
	require.NoError(t, store.Save("2.0.0", map[string]registry.AttributeEntry{"2a26": {Handle: 2}}))

	a, err := store.Load("1.0.0")
	require.NoError(t, err)
	b, err := store.Load("2.0.0")
	require.NoError(t, err)
	assert.NotEqual(t, a["2a26"].Handle, b["2a26"].Handle)
}

func TestHandleCacheRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleCacheStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.0.0.map"), []byte("not a cache line\n"), 0o644))

	_, err := store.Load("1.0.0")
	assert.Error(t, err)
}

func testCredentials() (security.Credential, security.Credential) {
	var tx, rx security.Credential
	tx.NetworkID = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	for i := range tx.ApplicationKey {
		tx.ApplicationKey[i] = byte(i)
		tx.HeaderKey[i] = byte(i) ^ 0xA5
	}
	tx.Sequence = 41
	rx = tx
	rx.ApplicationKey[0] = 0x99
	return tx, rx
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.creds")
	store := NewCredentialStore(path)

	tx, rx := testCredentials()
	require.NoError(t, store.Save(tx, rx))

	// File format: two lines of four comma-separated hex fields.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "deadbeef,"))
	assert.Len(t, strings.Split(lines[0], ","), 4)

	gotTx, gotRx, err := NewCredentialStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, tx, gotTx)
	assert.Equal(t, rx, gotRx)
}

func TestCredentialStoreMissingFile(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "absent.creds"))
	tx, rx, err := store.Load()
	require.NoError(t, err)
	assert.False(t, tx.Encrypted())
	assert.False(t, rx.Encrypted())
}

func TestCredentialStoreRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.creds")
	require.NoError(t, os.WriteFile(path, []byte("only,one,line\n"), 0o644))

	_, _, err := NewCredentialStore(path).Load()
	assert.ErrorIs(t, err, ErrMalformedCredentialFile)
}

func TestPersistSequenceSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.creds")
	store := NewCredentialStore(path)

	tx, rx := testCredentials()
	require.NoError(t, store.Save(tx, rx))
	require.NoError(t, store.PersistSequence(security.SlotTransmit, 42))

	gotTx, gotRx, err := NewCredentialStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), gotTx.Sequence)
	assert.Equal(t, rx.Sequence, gotRx.Sequence, "receive slot counter must be untouched")
}

func TestPersistSequenceBeforeLoad(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "network.creds"))
	assert.Error(t, store.PersistSequence(security.SlotTransmit, 1))
}

func TestSequenceHookWiredIntoEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.creds")
	store := NewCredentialStore(path)
	tx, rx := testCredentials()
	require.NoError(t, store.Save(tx, rx))

	engine := security.NewEngine(tx, rx, store)
	seq, err := engine.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), seq)

	// The counter was on disk before NextSequence returned.
	gotTx, _, err := NewCredentialStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), gotTx.Sequence)
}
