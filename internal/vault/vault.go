// Package vault encrypts linked-account credentials at rest.
//
// Records are AES-256-CBC with PKCS#7 padding, stored as
// "<iv_hex>:<ciphertext_hex>". A fresh random IV is drawn on every Encrypt
// call, so encrypting the same plaintext twice never yields the same record.
// Decrypt never returns an error: any failure produces a masked sentinel so
// secret material cannot leak through error paths.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MaskedSecret is returned by Decrypt whenever a record cannot be recovered.
const MaskedSecret = "********"

// keySize is the AES-256 key length in bytes.
const keySize = 32

var (
	// ErrMissingKey indicates no encryption key was configured.
	ErrMissingKey = errors.New("encryption key is not configured")

	// ErrKeyTooShort indicates the configured key is shorter than the
	// required AES-256 key size.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")
)

// Vault performs symmetric encryption of credential strings.
// It holds no mutable state and is safe for concurrent use.
type Vault struct {
	key []byte
}

// New creates a Vault from the configured key material.
// Keys longer than 32 bytes are truncated, matching the stored-record format
// produced by earlier versions of the bridge.
func New(key string) (*Vault, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) < keySize {
		return nil, ErrKeyTooShort
	}
	return &Vault{key: []byte(key[:keySize])}, nil
}

// Encrypt encrypts plaintext and returns an "<iv_hex>:<ciphertext_hex>" record.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt recovers the plaintext from an encrypted record.
// Malformed records, corrupted data and foreign-keyed ciphertexts all return
// MaskedSecret; Decrypt never fails.
func (v *Vault) Decrypt(record string) string {
	parts := strings.Split(record, ":")
	if len(parts) != 2 {
		return MaskedSecret
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return MaskedSecret
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return MaskedSecret
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return MaskedSecret
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return MaskedSecret
	}

	return string(unpadded)
}

// pkcs7Pad appends PKCS#7 padding up to the block size.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// pkcs7Unpad strips PKCS#7 padding, reporting whether the padding was valid.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, false
		}
	}
	return data[:len(data)-padding], true
}
