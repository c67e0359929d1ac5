package security

import (
	"bytes"
	"testing"
)

func TestCCMRoundTrip(t *testing.T) {
	key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	nonce := make([]byte, NonceSize)
	nonce[0] = 0x21

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", nil},
		{"short", []byte{0x40, 0x10, 0x27}},
		{"one block", bytes.Repeat([]byte{0xA5}, 16)},
		{"spans blocks", bytes.Repeat([]byte{0x5A}, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, tag, err := ccmEncrypt(key, nonce, tt.plaintext)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if len(tag) != TagSize {
				t.Fatalf("tag length = %d", len(tag))
			}
			if len(tt.plaintext) > 0 && bytes.Equal(ct, tt.plaintext) {
				t.Error("ciphertext equals plaintext")
			}

			got, ok := ccmDecrypt(key, nonce, ct, tag)
			if !ok {
				t.Fatal("authentic frame rejected")
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("plaintext mismatch: %x != %x", got, tt.plaintext)
			}
		})
	}
}

func TestCCMRejectsTampering(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	nonce := make([]byte, NonceSize)
	ct, tag, err := ccmEncrypt(key, nonce, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), ct...)
	flipped[0] ^= 0x80
	if _, ok := ccmDecrypt(key, nonce, flipped, tag); ok {
		t.Error("tampered ciphertext accepted")
	}

	badTag := append([]byte(nil), tag...)
	badTag[TagSize-1] ^= 1
	if _, ok := ccmDecrypt(key, nonce, ct, badTag); ok {
		t.Error("tampered tag accepted")
	}

	wrongKey := bytes.Repeat([]byte{0x43}, KeySize)
	if _, ok := ccmDecrypt(wrongKey, nonce, ct, tag); ok {
		t.Error("wrong key accepted")
	}

	otherNonce := make([]byte, NonceSize)
	otherNonce[5] = 1
	if _, ok := ccmDecrypt(key, otherNonce, ct, tag); ok {
		t.Error("wrong nonce accepted")
	}
}

func TestCCMNonceBinding(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	plain := []byte{0xDE, 0xAD}

	n1 := make([]byte, NonceSize)
	n2 := make([]byte, NonceSize)
	n2[2] = 1 // different sequence counter

	ct1, _, _ := ccmEncrypt(key, n1, plain)
	ct2, _, _ := ccmEncrypt(key, n2, plain)
	if bytes.Equal(ct1, ct2) {
		t.Error("identical ciphertext under distinct nonces")
	}
}

func TestCCMBadKey(t *testing.T) {
	if _, _, err := ccmEncrypt([]byte{1, 2, 3}, make([]byte, NonceSize), nil); err == nil {
		t.Error("short key accepted")
	}
}
