package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/identity"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

// RoleSuperAdmin marks operator accounts created out of band (cmd/admin).
const RoleSuperAdmin = "superadmin"

// userSearchFields are the decrypted fields the admin listing searches over.
var userSearchFields = []string{"email", "firstName", "lastName"}

// UserService handles registration, login and profile access.
type UserService struct {
	store    store.Store
	codec    *pii.Codec
	hasher   identity.PasswordHasher
	tokens   *identity.Resolver
	log      logging.Logger
	pageSize int
}

func NewUserService(st store.Store, codec *pii.Codec, hasher identity.PasswordHasher,
	tokens *identity.Resolver, log logging.Logger, pageSize int) *UserService {
	return &UserService{
		store:    st,
		codec:    codec,
		hasher:   hasher,
		tokens:   tokens,
		log:      log.With("module", "users"),
		pageSize: pageSize,
	}
}

// RegisterParams carries the plaintext registration form.
type RegisterParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (p RegisterParams) validate() error {
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("email: %w", common.ErrValidation)
	}
	if len(p.Password) < 8 {
		return fmt.Errorf("password too short: %w", common.ErrValidation)
	}
	return nil
}

// Register creates a user account. The email digest column enforces
// uniqueness at the store; a duplicate surfaces as common.ErrConflict.
func (s *UserService) Register(ctx context.Context, p RegisterParams) (pii.Record, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	rec := pii.Record{
		"email":     p.Email,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
	}
	enc, err := s.codec.EncryptEntity(pii.KindUser, rec)
	if err != nil {
		return nil, err
	}
	enc["emailHash"] = cryptox.EmailDigest(p.Email)
	enc["passwordHash"] = passwordHash
	enc["role"] = "user"

	created, err := s.store.Create(ctx, pii.KindUser, enc)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user registered")

	dec, err := s.codec.DecryptEntity(ctx, pii.KindUser, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// Login verifies credentials and returns a bearer token with the caller's
// decrypted profile. Lookup runs on the email digest; both an unknown email
// and a wrong password yield the same common.ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (string, pii.Record, error) {
	rec, err := s.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter: map[string]any{"emailHash": cryptox.EmailDigest(email)},
	})
	if err != nil {
		return "", nil, common.ErrUnauthorized
	}
	if err := s.hasher.Compare(str(rec["passwordHash"]), password); err != nil {
		return "", nil, err
	}

	token, err := s.tokens.IssueToken(str(rec["id"]), str(rec["role"]) == RoleSuperAdmin)
	if err != nil {
		return "", nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindUser, rec)
	if err != nil {
		return "", nil, err
	}
	return token, sanitize(dec), nil
}

// Get returns a user profile with project memberships. Only the user
// themselves or a super admin may read it.
func (s *UserService) Get(ctx context.Context, principal authz.Principal, userID string) (pii.Record, error) {
	if principal.ID != userID && !principal.SuperAdmin {
		return nil, common.ErrForbidden
	}

	rec, err := s.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter:  map[string]any{"id": userID},
		Include: []string{"memberships.project"},
	})
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptGraph(ctx, pii.KindUser, rec)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// UpdateParams carries the optional profile fields; nil means unchanged.
type UpdateParams struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// Update changes a user's own profile fields. Changing the email also
// refreshes the lookup digest so login keeps working.
func (s *UserService) Update(ctx context.Context, principal authz.Principal, userID string, p UpdateParams) (pii.Record, error) {
	if principal.ID != userID && !principal.SuperAdmin {
		return nil, common.ErrForbidden
	}

	plain := pii.Record{}
	if p.Email != nil {
		if !strings.Contains(*p.Email, "@") {
			return nil, fmt.Errorf("email: %w", common.ErrValidation)
		}
		plain["email"] = *p.Email
	}
	if p.FirstName != nil {
		plain["firstName"] = *p.FirstName
	}
	if p.LastName != nil {
		plain["lastName"] = *p.LastName
	}
	if len(plain) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", common.ErrValidation)
	}

	enc, err := s.codec.EncryptEntity(pii.KindUser, plain)
	if err != nil {
		return nil, err
	}
	if p.Email != nil {
		enc["emailHash"] = cryptox.EmailDigest(*p.Email)
	}

	updated, err := s.store.Update(ctx, pii.KindUser, userID, enc)
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindUser, updated)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// UserPage is one page of the admin listing.
type UserPage struct {
	Users      []pii.Record
	Total      int64
	TotalPages int
}

// List returns a page of users for super admins, optionally narrowed by a
// case-insensitive search over the decrypted profile fields. The total counts
// rows before the search narrows the page; see the package doc.
func (s *UserService) List(ctx context.Context, principal authz.Principal, page int, search string) (*UserPage, error) {
	if !principal.SuperAdmin {
		return nil, common.ErrForbidden
	}

	total, err := s.store.Count(ctx, pii.KindUser, nil)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, s.pageSize)
	records, err := s.store.FindMany(ctx, pii.KindUser, store.Query{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	decrypted, errs := s.codec.DecryptBatch(ctx, pii.KindUser, records)
	if err := pii.FirstBatchError(errs); err != nil {
		// Admin listings fail closed on a corrupt record rather than
		// silently hiding it.
		return nil, err
	}
	decrypted = pii.FilterPlaintext(decrypted, userSearchFields, search)

	return &UserPage{
		Users:      sanitizeAll(decrypted),
		Total:      total,
		TotalPages: totalPages(total, s.pageSize),
	}, nil
}
