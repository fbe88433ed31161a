package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Keystore wraps per-file keys before they are written to the metadata store,
// so a database dump alone does not reveal chunk keys. Wrapping uses
// AES-256-GCM under a key-encryption key derived with argon2id from the
// configured secret and a per-file random salt.
//
// The chunk blob format is unaffected: wrapping applies only to keys at rest.
type Keystore struct {
	secret []byte
}

// NewKeystore returns a Keystore deriving its KEKs from secret.
func NewKeystore(secret []byte) *Keystore {
	return &Keystore{secret: secret}
}

// DeriveKEK derives a 256-bit key-encryption key from the keystore secret
// and the given salt.
func (k *Keystore) DeriveKEK(salt []byte) []byte {
	return argon2.IDKey(k.secret, salt, 1, 64*1024, 4, KeySize)
}

// WrapKey encrypts a per-file key for persistence. It returns the ciphertext,
// the GCM nonce and the argon2 salt; all three are required to unwrap.
func (k *Keystore) WrapKey(fileKey []byte) (wrapped, nonce, salt []byte, err error) {
	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("rand: %w", err)
	}

	kek := k.DeriveKEK(salt)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("rand: %w", err)
	}

	wrapped = aesgcm.Seal(nil, nonce, fileKey, nil)
	return wrapped, nonce, salt, nil
}

// UnwrapKey decrypts a previously wrapped per-file key.
func (k *Keystore) UnwrapKey(wrapped, nonce, salt []byte) ([]byte, error) {
	kek := k.DeriveKEK(salt)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	fileKey, err := aesgcm.Open(nil, nonce, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	return fileKey, nil
}

// MakeVerifier returns a digest suitable for sanity-checking that two
// processes share the same keystore secret.
func MakeVerifier(secret []byte) []byte {
	hash := sha256.Sum256(secret)
	return hash[:]
}
