package pii

import (
	"context"
	"testing"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	cipher, err := cryptox.NewFieldCipher([]byte("0123456789abcdef0123456789abcdef"), "test")
	require.NoError(t, err)
	return NewCodec(cipher, logging.NopLogger{})
}

func TestEncryptEntity_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	rec := Record{
		"id":        "u1",
		"email":     "a@x.com",
		"firstName": "A",
		"lastName":  "B",
		"role":      "member",
	}

	encrypted, err := c.EncryptEntity(KindUser, rec)
	require.NoError(t, err)

	// PII fields become envelopes, the rest is untouched.
	assert.True(t, cryptox.IsEncrypted(encrypted["email"].(string)))
	assert.True(t, cryptox.IsEncrypted(encrypted["firstName"].(string)))
	assert.Equal(t, "u1", encrypted["id"])
	assert.Equal(t, "member", encrypted["role"])

	// Input record is not mutated.
	assert.Equal(t, "a@x.com", rec["email"])

	decrypted, err := c.DecryptEntity(ctx, KindUser, encrypted)
	require.NoError(t, err)
	assert.Equal(t, rec, decrypted)
}

func TestEncryptEntity_NilAndAbsentFields(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	rec := Record{
		"id":          "p1",
		"name":        "Website",
		"description": nil, // optional PII field left empty
	}

	encrypted, err := c.EncryptEntity(KindProject, rec)
	require.NoError(t, err)
	assert.Nil(t, encrypted["description"])

	decrypted, err := c.DecryptEntity(ctx, KindProject, encrypted)
	require.NoError(t, err)
	assert.Nil(t, decrypted["description"])
	assert.Equal(t, "Website", decrypted["name"])

	// Absent key stays absent.
	_, ok := encrypted["ownerID"]
	assert.False(t, ok)
}

func TestEncryptEntity_EmptyString(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	encrypted, err := c.EncryptEntity(KindProject, Record{"name": ""})
	require.NoError(t, err)
	assert.True(t, cryptox.IsEncrypted(encrypted["name"].(string)))

	decrypted, err := c.DecryptEntity(ctx, KindProject, encrypted)
	require.NoError(t, err)
	assert.Equal(t, "", decrypted["name"])
}

func TestEncryptEntity_NonStringValue(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.EncryptEntity(KindProject, Record{"name": 42})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDecryptEntity_LegacyPlaintextPassthrough(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	// A row written before encryption was introduced.
	rec := Record{"id": "u1", "email": "legacy@x.com", "firstName": "L"}

	decrypted, err := c.DecryptEntity(ctx, KindUser, rec)
	require.NoError(t, err)
	assert.Equal(t, "legacy@x.com", decrypted["email"])
	assert.Equal(t, "L", decrypted["firstName"])
	assert.Equal(t, int64(2), c.LegacyFallbacks())
}

func TestDecryptEntity_TamperedEnvelopeFails(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	encrypted, err := c.EncryptEntity(KindUser, Record{"email": "a@x.com"})
	require.NoError(t, err)

	stored := encrypted["email"].(string)
	encrypted["email"] = stored[:len(stored)-2] + "zz"

	_, err = c.DecryptEntity(ctx, KindUser, encrypted)
	assert.ErrorIs(t, err, common.ErrDecryption)
}

func TestEncryptEntity_NoSpecFieldsUntouched(t *testing.T) {
	c := newTestCodec(t)

	rec := Record{"userID": "u1", "projectID": "p1", "role": "owner"}
	encrypted, err := c.EncryptEntity(KindMembership, rec)
	require.NoError(t, err)
	assert.Equal(t, rec, encrypted)
}
