// Package fieldcrypt encrypts sensitive stored fields with AES-256-GCM and
// provides masking helpers for displaying personal data.
//
// Blobs are base64(nonce ‖ tag ‖ ciphertext) with a 12-byte nonce and a
// 16-byte tag. The key is sha256 of a process-wide secret.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrSecretMissing indicates no secret was configured.
	ErrSecretMissing = errors.New("field encryption secret not configured")
	// ErrDecryptionFailed indicates authentication of the blob failed.
	ErrDecryptionFailed = errors.New("field decryption failed")
	// ErrInvalidCiphertext indicates the blob is not decodable or too short.
	ErrInvalidCiphertext = errors.New("invalid field ciphertext")
)

// Encryptor is safe for concurrent use.
type Encryptor struct {
	aead   cipher.AEAD
	random io.Reader
}

// New derives the key from secret. A nil random falls back to crypto/rand.
func New(secret string, random io.Reader) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	if random == nil {
		random = rand.Reader
	}
	return &Encryptor{aead: aead, random: random}, nil
}

// Encrypt returns the blob for plaintext. Empty input is returned unchanged.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(e.random, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Any tampering yields ErrDecryptionFailed; it
// never returns altered plaintext.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < nonceSize+tagSize {
		return "", ErrInvalidCiphertext
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}

// IsEncrypted is a length heuristic: valid base64 decoding to more than
// nonce plus tag bytes.
func IsEncrypted(value string) bool {
	if value == "" {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(raw) > nonceSize+tagSize
}

// EncryptIfNeeded leaves values that already look encrypted untouched.
func (e *Encryptor) EncryptIfNeeded(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}
	return e.Encrypt(value)
}

// DecryptIfNeeded returns plain values untouched.
func (e *Encryptor) DecryptIfNeeded(value string) (string, error) {
	if value == "" || !IsEncrypted(value) {
		return value, nil
	}
	return e.Decrypt(value)
}
