// Package cryptoutil encrypts provider tokens at rest and signs session cookies.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	apperrors "github.com/target/portal-api/internal/errors"
)

const (
	ivSize  = 12
	tagSize = 16
)

var (
	// ErrMalformed is the cause for input that is not valid base64 or is too short.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrTagMismatch is the cause when GCM authentication fails (tampering or wrong key).
	ErrTagMismatch = errors.New("authentication tag mismatch")
)

// Encryptor defines an interface for encrypting/decrypting tokens.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// TokenEncryptor implements Encryptor using AES-256-GCM with a key derived once
// as SHA-256 of the configured secret.
//
// Output layout is base64std(IV ‖ tag ‖ ciphertext).
type TokenEncryptor struct {
	aead cipher.AEAD
}

// NewTokenEncryptor derives the AES-256 key from secret.
func NewTokenEncryptor(secret string) (*TokenEncryptor, error) {
	if secret == "" {
		return nil, apperrors.Configuration("token encryption key is required")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenEncryptor{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	// Seal returns ciphertext‖tag; the stored layout puts the tag first.
	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	buf := make([]byte, 0, ivSize+tagSize+len(ct))
	buf = append(buf, iv...)
	buf = append(buf, tag...)
	buf = append(buf, ct...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt opens a value produced by Encrypt. Every failure is a DecryptionError.
func (e *TokenEncryptor) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil || len(data) < ivSize+tagSize {
		return "", apperrors.Decryption(ErrMalformed)
	}
	iv, tag, ct := data[:ivSize], data[ivSize:ivSize+tagSize], data[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := e.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", apperrors.Decryption(ErrTagMismatch)
	}
	return string(pt), nil
}

// Encrypt is a one-shot helper deriving the key from key on every call.
func Encrypt(plaintext, key string) (string, error) {
	enc, err := NewTokenEncryptor(key)
	if err != nil {
		return "", err
	}
	return enc.Encrypt(plaintext)
}

// Decrypt is the one-shot counterpart of Encrypt.
func Decrypt(encoded, key string) (string, error) {
	enc, err := NewTokenEncryptor(key)
	if err != nil {
		return "", err
	}
	return enc.Decrypt(encoded)
}
