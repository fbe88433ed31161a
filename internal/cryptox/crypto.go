// Package cryptox implements the per-chunk encryption engine.
//
// Every chunk is encrypted independently with AES-256-CBC and a fresh random
// IV, so any single chunk can be decrypted (or retried) without touching its
// neighbours. The blob layout is fixed for interoperability:
//
//	blob = IV(16 bytes) || ciphertext(N bytes, N a multiple of 16)
//
// There is no authentication tag: a wrong key or corrupted ciphertext is only
// detected via padding removal failing. This is a known limitation of the
// frozen wire format, partially mitigated by the whole-file checksum the
// pipeline verifies at end of stream.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize is the length of a per-file AES-256 key in bytes.
	KeySize = 32

	// IVSize is the length of the initialization vector prepended to every blob.
	IVSize = aes.BlockSize

	// Overhead is the worst-case difference between blob size and plaintext
	// size: the IV plus a full padding block. Used for chunk-size headroom math.
	Overhead = IVSize + aes.BlockSize
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrInvalidLength  = errors.New("invalid blob length")
	ErrInvalidPadding = errors.New("invalid padding")
)

// GenerateKey returns a fresh 256-bit key read from the secure random source.
// A key is generated exactly once per file and never derived from user input.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("rand: %w", err)
	}
	return key, nil
}

// Encrypt encrypts one plaintext segment with AES-256-CBC.
//
// A fresh random 16-byte IV is generated for every call, so encrypting the
// same plaintext twice never yields the same blob. The plaintext is padded
// with PKCS#7 and the result is IV || ciphertext.
//
// Example:
//
//	key, _ := cryptox.GenerateKey()
//	blob, err := cryptox.Encrypt(key, []byte("segment"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	plain, err := cryptox.Decrypt(key, blob)
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pad(plaintext, aes.BlockSize)

	blob := make([]byte, IVSize+len(padded))
	iv := blob[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("rand: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob[IVSize:], padded)

	return blob, nil
}

// Decrypt reverses Encrypt.
//
// It fails with ErrInvalidLength when the blob is shorter than one IV or the
// ciphertext is not a whole number of blocks, and with ErrInvalidPadding when
// padding removal fails (wrong key or corrupted data). Padding failure is the
// only integrity signal the format offers.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(key))
	}
	if len(blob) < IVSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(blob))
	}

	iv, ciphertext := blob[:IVSize], blob[IVSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext %d bytes", ErrInvalidLength, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return unpad(padded, aes.BlockSize)
}

// pad appends PKCS#7 padding up to the next multiple of blockSize.
// A full extra block is appended when the input is already aligned.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad removes PKCS#7 padding, validating every padding byte.
func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
