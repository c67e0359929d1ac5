package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

// CCM parameters for the XBeacon frame format.
const (
	// KeySize is the AES-128 key length.
	KeySize = 16

	// NonceSize is the CCM nonce length (L = 2).
	NonceSize = 13

	// TagSize is the truncated integrity tag length.
	TagSize = 4
)

// fixedAssociatedData is authenticated with every payload. The value is
// part of the wire protocol.
var fixedAssociatedData = []byte{0x01}

// ErrBadKeySize indicates a key that is not 16 bytes.
var ErrBadKeySize = errors.New("key must be 16 bytes")

// ccmEncrypt encrypts and authenticates plaintext with AES-128-CCM
// (M = TagSize, L = 2) and the fixed associated data.
func ccmEncrypt(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, nil, err
	}

	mac := cbcMAC(block, nonce, plaintext, fixedAssociatedData)

	ciphertext = make([]byte, len(plaintext))
	ctrCrypt(block, nonce, 1, ciphertext, plaintext)

	// The MAC is encrypted with counter block 0.
	var a0 [aes.BlockSize]byte
	counterBlock(nonce, 0, &a0)
	var s0 [aes.BlockSize]byte
	block.Encrypt(s0[:], a0[:])

	tag = make([]byte, TagSize)
	for i := 0; i < TagSize; i++ {
		tag[i] = mac[i] ^ s0[i]
	}
	return ciphertext, tag, nil
}

// ccmDecrypt reverses ccmEncrypt. The boolean result reports whether the
// tag authenticated; on failure the plaintext must be discarded.
func ccmDecrypt(key, nonce, ciphertext, tag []byte) (plaintext []byte, ok bool) {
	block, err := newBlock(key)
	if err != nil || len(tag) != TagSize {
		return nil, false
	}

	plaintext = make([]byte, len(ciphertext))
	ctrCrypt(block, nonce, 1, plaintext, ciphertext)

	mac := cbcMAC(block, nonce, plaintext, fixedAssociatedData)

	var a0 [aes.BlockSize]byte
	counterBlock(nonce, 0, &a0)
	var s0 [aes.BlockSize]byte
	block.Encrypt(s0[:], a0[:])

	expected := make([]byte, TagSize)
	for i := 0; i < TagSize; i++ {
		expected[i] = mac[i] ^ s0[i]
	}
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, false
	}
	return plaintext, true
}

// keystreamBlock returns one CCM counter-mode keystream block for the given
// counter index. Used for header obfuscation, which XORs keystream without
// carrying its own tag.
func keystreamBlock(key, nonce []byte, counter uint16) ([aes.BlockSize]byte, error) {
	var out [aes.BlockSize]byte
	block, err := newBlock(key)
	if err != nil {
		return out, err
	}
	var a [aes.BlockSize]byte
	counterBlock(nonce, counter, &a)
	block.Encrypt(out[:], a[:])
	return out, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrBadKeySize, len(key))
	}
	return aes.NewCipher(key)
}

// counterBlock fills a with the CCM counter block A_i for a 13-byte nonce.
func counterBlock(nonce []byte, counter uint16, a *[aes.BlockSize]byte) {
	a[0] = 0x01 // L - 1
	copy(a[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(a[14:16], counter)
}

// ctrCrypt XORs counter-mode keystream (starting at the given counter) into
// src, writing to dst.
func ctrCrypt(block cipher.Block, nonce []byte, startCounter uint16, dst, src []byte) {
	var a, s [aes.BlockSize]byte
	counter := startCounter
	for off := 0; off < len(src); off += aes.BlockSize {
		counterBlock(nonce, counter, &a)
		block.Encrypt(s[:], a[:])
		n := len(src) - off
		if n > aes.BlockSize {
			n = aes.BlockSize
		}
		for i := 0; i < n; i++ {
			dst[off+i] = src[off+i] ^ s[i]
		}
		counter++
	}
}

// cbcMAC computes the CCM CBC-MAC over the B0 block, the encoded associated
// data, and the message.
func cbcMAC(block cipher.Block, nonce, msg, adata []byte) [aes.BlockSize]byte {
	var x [aes.BlockSize]byte

	// B0: flags | nonce | message length.
	// flags = Adata present | ((M-2)/2) << 3 | (L-1).
	var b0 [aes.BlockSize]byte
	b0[0] = 0x40 | ((TagSize-2)/2)<<3 | 0x01
	copy(b0[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(b0[14:16], uint16(len(msg)))
	block.Encrypt(x[:], b0[:])

	// Associated data: 2-byte length prefix, zero-padded to a block.
	var ablock [aes.BlockSize]byte
	binary.BigEndian.PutUint16(ablock[0:2], uint16(len(adata)))
	copy(ablock[2:], adata)
	for i := range x {
		x[i] ^= ablock[i]
	}
	block.Encrypt(x[:], x[:])

	// Message blocks.
	for off := 0; off < len(msg); off += aes.BlockSize {
		n := len(msg) - off
		if n > aes.BlockSize {
			n = aes.BlockSize
		}
		for i := 0; i < n; i++ {
			x[i] ^= msg[off+i]
		}
		block.Encrypt(x[:], x[:])
	}
	return x
}
