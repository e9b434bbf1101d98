package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/notify"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"

	// 16 random bytes, 32 hex characters on the wire.
	invitationTokenBytes = 16
)

// InvitationService issues and accepts project invitations. Delivery runs
// after the invitation row is committed: a provider outage must not lose the
// invitation, so send failures are logged and the caller still gets success.
type InvitationService struct {
	store     store.Store
	codec     *pii.Codec
	email     notify.EmailSender
	messenger notify.Messenger
	log       logging.Logger
}

func NewInvitationService(st store.Store, codec *pii.Codec, email notify.EmailSender,
	messenger notify.Messenger, log logging.Logger) *InvitationService {
	return &InvitationService{
		store:     st,
		codec:     codec,
		email:     email,
		messenger: messenger,
		log:       log.With("module", "invitations"),
	}
}

// InviteParams carries the invitation form. Number is the optional
// secondary-channel destination.
type InviteParams struct {
	ProjectID string
	Email     string
	Number    string
}

// Invite creates a pending invitation and delivers it. One pending
// invitation per (project, email) pair; a duplicate surfaces as
// common.ErrConflict from the store's unique constraint.
func (s *InvitationService) Invite(ctx context.Context, principal authz.Principal, p InviteParams) (pii.Record, error) {
	if !strings.Contains(p.Email, "@") {
		return nil, fmt.Errorf("email: %w", common.ErrValidation)
	}

	project, target, err := loadProjectTarget(ctx, s.store, p.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}
	if !authz.CanInvite(principal, target) {
		return nil, common.ErrForbidden
	}

	token, err := common.MakeRandHexString(invitationTokenBytes)
	if err != nil {
		return nil, err
	}

	enc, err := s.codec.EncryptEntity(pii.KindInvitation, pii.Record{"email": p.Email})
	if err != nil {
		return nil, err
	}
	enc["projectID"] = p.ProjectID
	enc["emailHash"] = cryptox.EmailDigest(p.Email)
	enc["invitedByID"] = principal.ID
	enc["token"] = token
	enc["status"] = InvitationPending

	created, err := s.store.Create(ctx, pii.KindInvitation, enc)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "invitation created", "projectID", p.ProjectID)

	s.deliver(ctx, project, principal.ID, p, token)

	dec, err := s.codec.DecryptEntity(ctx, pii.KindInvitation, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// deliver renders and sends the invitation over both channels. The row is
// already committed; failures here are logged, never returned.
func (s *InvitationService) deliver(ctx context.Context, project pii.Record, inviterID string, p InviteParams, token string) {
	projectName := s.decryptedField(ctx, pii.KindProject, project, "name")
	inviterName := s.inviterName(ctx, inviterID)

	if err := s.email.SendEmail(ctx, p.Email, notify.InvitationEmail(projectName, inviterName, token)); err != nil {
		s.log.Error(ctx, "invitation email failed", "projectID", p.ProjectID, "error", err.Error())
	}
	if p.Number == "" {
		return
	}
	if err := s.messenger.SendMessage(ctx, p.Number, notify.InvitationMessage(projectName, token)); err != nil {
		s.log.Error(ctx, "invitation message failed", "projectID", p.ProjectID, "error", err.Error())
	}
}

func (s *InvitationService) decryptedField(ctx context.Context, kind pii.Kind, rec pii.Record, field string) string {
	dec, err := s.codec.DecryptEntity(ctx, kind, rec)
	if err != nil {
		return ""
	}
	return str(dec[field])
}

func (s *InvitationService) inviterName(ctx context.Context, inviterID string) string {
	rec, err := s.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter: map[string]any{"id": inviterID},
	})
	if err != nil {
		return ""
	}
	dec, err := s.codec.DecryptEntity(ctx, pii.KindUser, rec)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(str(dec["firstName"]) + " " + str(dec["lastName"]))
	if name == "" {
		name = str(dec["email"])
	}
	return name
}

// Accept redeems an invitation token for the authenticated user. The token
// alone is not enough: the caller's account email must match the invited
// address, otherwise common.ErrForbidden. An unknown token is
// common.ErrNotFound.
func (s *InvitationService) Accept(ctx context.Context, principal authz.Principal, token string) (pii.Record, error) {
	invitation, err := s.store.FindOne(ctx, pii.KindInvitation, store.Query{
		Filter: map[string]any{"token": token},
	})
	if err != nil {
		return nil, err
	}
	if str(invitation["status"]) != InvitationPending {
		return nil, fmt.Errorf("invitation already used: %w", common.ErrConflict)
	}

	user, err := s.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter: map[string]any{"id": principal.ID},
	})
	if err != nil {
		return nil, err
	}
	if str(user["emailHash"]) != str(invitation["emailHash"]) {
		return nil, common.ErrForbidden
	}

	projectID := str(invitation["projectID"])
	var membership pii.Record
	err = s.store.Transact(ctx, func(tx store.Store) error {
		membership, err = tx.Create(ctx, pii.KindMembership, pii.Record{
			"projectID": projectID,
			"userID":    principal.ID,
			"role":      string(authz.RoleMember),
		})
		if errors.Is(err, common.ErrConflict) {
			// Already a member through some other path; the invitation is
			// still consumed.
			membership, err = tx.FindOne(ctx, pii.KindMembership, store.Query{
				Filter: map[string]any{"projectID": projectID, "userID": principal.ID},
			})
		}
		if err != nil {
			return err
		}
		_, err = tx.Update(ctx, pii.KindInvitation, str(invitation["id"]),
			pii.Record{"status": InvitationAccepted})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "invitation accepted", "projectID", projectID)
	return membership, nil
}

// ListForProject returns a project's invitations for members who can see the
// project. Invited addresses come back decrypted.
func (s *InvitationService) ListForProject(ctx context.Context, principal authz.Principal, projectID string) ([]pii.Record, error) {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}

	records, err := s.store.FindMany(ctx, pii.KindInvitation, store.Query{
		Filter: map[string]any{"projectID": projectID},
	})
	if err != nil {
		return nil, err
	}

	decrypted, errs := s.codec.DecryptBatch(ctx, pii.KindInvitation, records)
	if err := pii.FirstBatchError(errs); err != nil {
		return nil, err
	}
	return sanitizeAll(decrypted), nil
}
