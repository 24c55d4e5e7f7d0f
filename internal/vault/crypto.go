package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// Argon2id parameters. Chosen to match the interactive-login profile
// OWASP recommends for a KDF that runs once per vault unlock, not per
// request.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize
)

func deriveKey(password string, salt []byte) [32]byte {
	derived := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var key [32]byte
	copy(key[:], derived)
	return key
}

func randomKey() ([32]byte, error) {
	var key [32]byte
	if err := randBytes(key[:]); err != nil {
		return key, err
	}
	return key, nil
}

func randBytes(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func encodeKey(key [32]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

func decodeKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return key, fmt.Errorf("vault: invalid key encoding")
	}
	copy(key[:], raw)
	return key, nil
}

// encrypt authenticates and encrypts plaintext under key with a fresh
// random nonce, returning (nonce, ciphertext).
func encrypt(key [32]byte, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if err := randBytes(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// decrypt authenticates and decrypts ciphertext under key and nonce. Any
// tampering (flipped bit, wrong key, truncated record) fails the
// authentication tag check and returns an error rather than garbage
// plaintext.
func decrypt(key [32]byte, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("vault: bad nonce length")
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}
