// Package secret decrypts credentials stored alongside website
// configuration, such as API bearer tokens.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Decryptor recovers a plaintext credential from its stored form
type Decryptor interface {
	Decrypt(encoded string) (string, error)
}

// AESDecryptor implements Decryptor with AES-256-GCM. The stored form
// is base64(nonce || ciphertext); the key is derived from the
// configured secret by SHA-256.
type AESDecryptor struct {
	aead cipher.AEAD
}

// NewAESDecryptor derives the AES key from secretKey and prepares the
// cipher
func NewAESDecryptor(secretKey string) (*AESDecryptor, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is empty")
	}

	key := sha256.Sum256([]byte(secretKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &AESDecryptor{aead: aead}, nil
}

// Decrypt decodes and authenticates one stored credential
func (d *AESDecryptor) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credential is not valid base64: %w", err)
	}

	nonceSize := d.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("credential is too short")
	}

	plaintext, err := d.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

// Encrypt produces the stored form of a plaintext credential. It is
// the inverse of Decrypt and exists for provisioning tooling and
// tests.
func (d *AESDecryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, d.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := d.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
