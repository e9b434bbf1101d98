package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/identity"
	"github.com/dstepanovs/teamplan/internal/server/notify"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	store       *store.Memory
	codec       *pii.Codec
	users       *UserService
	projects    *ProjectService
	goals       *GoalService
	messages    *MessageService
	invitations *InvitationService
	email       *fakeEmailSender
	messenger   *fakeMessenger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cipher, err := cryptox.NewFieldCipher(testSecret, "pii")
	require.NoError(t, err)

	log := logging.NopLogger{}
	st := store.NewMemory()
	codec := pii.NewCodec(cipher, log)
	tokens := identity.NewResolver([]byte("test-jwt-secret"), time.Hour)
	email := &fakeEmailSender{}
	messenger := &fakeMessenger{}

	return &testEnv{
		store:       st,
		codec:       codec,
		users:       NewUserService(st, codec, identity.BcryptHasher{}, tokens, log, 10),
		projects:    NewProjectService(st, codec, log, 10),
		goals:       NewGoalService(st, codec, log, 10),
		messages:    NewMessageService(st, codec, log, 10),
		invitations: NewInvitationService(st, codec, email, messenger, log),
		email:       email,
		messenger:   messenger,
	}
}

// registerUser creates an account and returns its principal.
func (e *testEnv) registerUser(t *testing.T, email string) authz.Principal {
	t.Helper()
	rec, err := e.users.Register(context.Background(), RegisterParams{
		Email:     email,
		Password:  "long enough",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return authz.Principal{ID: rec["id"].(string)}
}

// createProject creates a project owned by the principal.
func (e *testEnv) createProject(t *testing.T, owner authz.Principal, name string) string {
	t.Helper()
	rec, err := e.projects.Create(context.Background(), owner, name, "")
	require.NoError(t, err)
	return rec["id"].(string)
}

type fakeEmailSender struct {
	sent []string // recipient addresses
	err  error
}

func (f *fakeEmailSender) SendEmail(_ context.Context, to string, _ notify.Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeMessenger struct {
	sent []string // destination numbers
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, number string, _ notify.Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, number)
	return nil
}
