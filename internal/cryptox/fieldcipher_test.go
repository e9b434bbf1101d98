package cryptox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	secret := []byte("0123456789abcdef0123456789abcdef")
	c, err := NewFieldCipher(secret, "test")
	require.NoError(t, err)
	return c
}

func TestNewFieldCipher_ShortSecret(t *testing.T) {
	_, err := NewFieldCipher([]byte("too short"), "test")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	tests := []string{
		"a@x.com",
		"Алиса",
		"a project description\nwith newlines",
		"",
	}

	for _, plaintext := range tests {
		stored, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(stored))

		got, err := c.Decrypt(stored)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	stored, err := c.Encrypt("a@x.com")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EnvelopePrefix))
	require.NoError(t, err)

	// Flip one byte anywhere in nonce, ciphertext or tag: every position
	// must fail authentication.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := c.Decrypt(EnvelopePrefix + base64.StdEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, common.ErrDecryption, "byte %d", i)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewFieldCipher([]byte("ffffffffffffffffffffffffffffffff"), "test")
	require.NoError(t, err)

	stored, err := c.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(stored)
	assert.ErrorIs(t, err, common.ErrDecryption)
}

func TestDecrypt_Malformed(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name   string
		stored string
	}{
		{"no prefix", "plain text value"},
		{"bad base64", EnvelopePrefix + "!!!not-base64!!!"},
		{"too short", EnvelopePrefix + base64.StdEncoding.EncodeToString([]byte("abc"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.stored)
			assert.ErrorIs(t, err, common.ErrDecryption)
		})
	}
}

func TestDecrypt_ErrorCarriesNoCiphertext(t *testing.T) {
	c := newTestCipher(t)

	stored, err := c.Encrypt("sensitive value")
	require.NoError(t, err)
	payload := strings.TrimPrefix(stored, EnvelopePrefix)

	other, err := NewFieldCipher([]byte("ffffffffffffffffffffffffffffffff"), "test")
	require.NoError(t, err)

	_, err = other.Decrypt(stored)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), payload)
	assert.NotContains(t, err.Error(), "sensitive value")
}
