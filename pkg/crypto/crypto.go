// Package crypto seals OAuth tokens at rest with AES-256-GCM.
//
// Every call to Encrypt derives a fresh key from the secret with PBKDF2 over a
// random salt and uses a random nonce, so equal plaintexts never produce equal
// ciphertexts. The stored form is base64(salt | nonce | ciphertext+tag).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	iterations = 100_000
)

var (
	ErrMissingSecret = errors.New("encryption secret is not configured")
	ErrInvalidCipher = errors.New("ciphertext is malformed")
	ErrDecryptFailed = errors.New("ciphertext failed authentication")
)

// Box encrypts and decrypts short secrets with a single master secret.
type Box struct {
	secret []byte
}

func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Box{secret: []byte(secret)}, nil
}

func (b *Box) deriveKey(salt []byte) []byte {
	return pbkdf2.Key(b.secret, salt, iterations, keySize, sha256.New)
}

// Encrypt returns the encoded ciphertext of plaintext.
func (b *Box) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, saltSize+nonceSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	salt, nonce := buf[:saltSize], buf[saltSize:]

	gcm, err := newGCM(b.deriveKey(salt))
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(buf, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any modification of the encoded value fails with
// ErrDecryptFailed or ErrInvalidCipher.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCipher
	}
	if len(raw) < saltSize+nonceSize+16 {
		return "", ErrInvalidCipher
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	body := raw[saltSize+nonceSize:]

	gcm, err := newGCM(b.deriveKey(salt))
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
