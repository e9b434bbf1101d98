// Package cryptox implements field-level encryption for PII columns.
//
// Encrypted values are serialized as "enc:v1:" + base64(nonce || ciphertext),
// one opaque string per field, stored in the column that would otherwise hold
// plaintext. The GCM tag lives at the tail of the ciphertext, so the envelope
// carries everything needed to decrypt and authenticate the value.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/dstepanovs/teamplan/internal/common"
	"golang.org/x/crypto/hkdf"
)

// EnvelopePrefix tags v1 envelopes. A stored value without this prefix is
// treated as legacy plaintext by the entity codec, never by this package.
const EnvelopePrefix = "enc:v1:"

const keySize = 32

// FieldCipher encrypts and decrypts single string fields with AES-256-GCM.
// Safe for concurrent use; it holds no mutable state.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives a 32-byte AES key from masterSecret via HKDF-SHA256
// and returns a ready cipher. The purpose string separates this derived key
// from any other use of the same secret. An empty or short secret is a fatal
// configuration condition.
func NewFieldCipher(masterSecret []byte, purpose string) (*FieldCipher, error) {
	if len(masterSecret) < keySize {
		return nil, fmt.Errorf("%w: field encryption secret must be at least %d bytes", common.ErrConfiguration, keySize)
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, masterSecret, []byte("teamplan-field-encryption"), []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("%w: key derivation: %v", common.ErrConfiguration, err)
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the envelope
// string. Two calls with the same plaintext yield different envelopes.
// The empty string is a valid plaintext and round-trips to "".
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. It fails closed with
// common.ErrDecryption on a missing prefix, bad base64, truncated data, or a
// GCM tag that does not verify. It never returns partial plaintext.
func (c *FieldCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, EnvelopePrefix) {
		return "", fmt.Errorf("%w: value is not an envelope", common.ErrDecryption)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EnvelopePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", common.ErrDecryption)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: envelope too short", common.ErrDecryption)
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", common.ErrDecryption)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether stored carries the v1 envelope prefix.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, EnvelopePrefix)
}
