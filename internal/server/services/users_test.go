package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

func TestRegister_EncryptsAtRest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	profile, err := env.users.Register(ctx, RegisterParams{
		Email:     "ada@example.com",
		Password:  "long enough",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	// The caller sees plaintext, never credentials or digests.
	assert.Equal(t, "ada@example.com", profile["email"])
	assert.Equal(t, "Ada", profile["firstName"])
	assert.NotContains(t, profile, "passwordHash")
	assert.NotContains(t, profile, "emailHash")

	// The stored row carries envelopes only.
	raw, err := env.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter: map[string]any{"id": profile["id"]},
	})
	require.NoError(t, err)
	for _, field := range []string{"email", "firstName", "lastName"} {
		assert.True(t, cryptox.IsEncrypted(raw[field].(string)), field)
	}
	assert.Equal(t, cryptox.EmailDigest("ada@example.com"), raw["emailHash"])
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.Register(ctx, RegisterParams{Email: "no-at-sign", Password: "long enough"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = env.users.Register(ctx, RegisterParams{Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "ada@example.com")

	_, err := env.users.Register(context.Background(), RegisterParams{
		Email:    "ada@example.com",
		Password: "long enough",
	})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerUser(t, "ada@example.com")

	token, profile, err := env.users.Login(ctx, "ada@example.com", "long enough")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "ada@example.com", profile["email"])
	assert.NotContains(t, profile, "passwordHash")

	// Wrong password and unknown email are indistinguishable.
	_, _, err = env.users.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	_, _, err = env.users.Login(ctx, "nobody@example.com", "long enough")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestUserGet_SelfOrSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	bob := env.registerUser(t, "bob@example.com")

	profile, err := env.users.Get(ctx, ada, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", profile["email"])

	_, err = env.users.Get(ctx, bob, ada.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	admin := authz.Principal{ID: "root", SuperAdmin: true}
	_, err = env.users.Get(ctx, admin, ada.ID)
	assert.NoError(t, err)
}

func TestUserGet_IncludesProjectMemberships(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	env.createProject(t, ada, "Engine")

	profile, err := env.users.Get(ctx, ada, ada.ID)
	require.NoError(t, err)

	memberships, ok := profile["memberships"].([]pii.Record)
	require.True(t, ok)
	require.Len(t, memberships, 1)
	project, ok := memberships[0]["project"].(pii.Record)
	require.True(t, ok)
	assert.Equal(t, "Engine", project["name"])
}

func TestUserUpdate_RefreshesEmailDigest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")

	newEmail := "countess@example.com"
	profile, err := env.users.Update(ctx, ada, ada.ID, UpdateParams{Email: &newEmail})
	require.NoError(t, err)
	assert.Equal(t, newEmail, profile["email"])

	// Login works with the new address only.
	_, _, err = env.users.Login(ctx, newEmail, "long enough")
	assert.NoError(t, err)
	_, _, err = env.users.Login(ctx, "ada@example.com", "long enough")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestUserList_SuperAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	env.registerUser(t, "bob@example.com")

	_, err := env.users.List(ctx, ada, 1, "")
	assert.ErrorIs(t, err, common.ErrForbidden)

	admin := authz.Principal{ID: "root", SuperAdmin: true}
	page, err := env.users.List(ctx, admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Users, 2)

	// Search narrows the page but not the total.
	page, err = env.users.List(ctx, admin, 1, "bob@")
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "bob@example.com", page.Users[0]["email"])
}
