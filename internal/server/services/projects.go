package services

import (
	"context"
	"fmt"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

var projectSearchFields = []string{"name", "description"}

// ProjectService handles project CRUD and membership management.
type ProjectService struct {
	store    store.Store
	codec    *pii.Codec
	log      logging.Logger
	pageSize int
}

func NewProjectService(st store.Store, codec *pii.Codec, log logging.Logger, pageSize int) *ProjectService {
	return &ProjectService{
		store:    st,
		codec:    codec,
		log:      log.With("module", "projects"),
		pageSize: pageSize,
	}
}

// Create inserts a project and the creator's OWNER membership in one
// transaction; neither exists without the other.
func (s *ProjectService) Create(ctx context.Context, principal authz.Principal, name, description string) (pii.Record, error) {
	if name == "" {
		return nil, fmt.Errorf("name required: %w", common.ErrValidation)
	}

	enc, err := s.codec.EncryptEntity(pii.KindProject, pii.Record{
		"name":        name,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	enc["ownerID"] = principal.ID

	var created pii.Record
	err = s.store.Transact(ctx, func(tx store.Store) error {
		created, err = tx.Create(ctx, pii.KindProject, enc)
		if err != nil {
			return err
		}
		_, err = tx.Create(ctx, pii.KindMembership, pii.Record{
			"projectID": created["id"],
			"userID":    principal.ID,
			"role":      string(authz.RoleOwner),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "project created", "projectID", str(created["id"]))

	dec, err := s.codec.DecryptEntity(ctx, pii.KindProject, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// Get returns a project with its memberships and member profiles. A project
// the principal cannot read reports common.ErrNotFound, not ErrForbidden:
// non-members must not learn that the ID exists.
func (s *ProjectService) Get(ctx context.Context, principal authz.Principal, projectID string) (pii.Record, error) {
	rec, err := s.store.FindOne(ctx, pii.KindProject, store.Query{
		Filter:  map[string]any{"id": projectID},
		Include: []string{"memberships.user"},
	})
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, membershipTarget(rec, true)) {
		return nil, common.ErrNotFound
	}

	dec, err := s.codec.DecryptGraph(ctx, pii.KindProject, rec)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// ProjectPage is one page of the principal's projects.
type ProjectPage struct {
	Projects   []pii.Record
	Total      int64
	TotalPages int
}

// List returns a page of projects the principal belongs to, optionally
// narrowed by a post-decrypt search over name and description.
func (s *ProjectService) List(ctx context.Context, principal authz.Principal, page int, search string) (*ProjectPage, error) {
	memberships, err := s.store.FindMany(ctx, pii.KindMembership, store.Query{
		Filter: map[string]any{"userID": principal.ID},
	})
	if err != nil {
		return nil, err
	}
	projectIDs := make([]any, 0, len(memberships))
	for _, m := range memberships {
		projectIDs = append(projectIDs, m["projectID"])
	}
	if len(projectIDs) == 0 {
		return &ProjectPage{Projects: []pii.Record{}}, nil
	}

	filter := map[string]any{"id": projectIDs}
	total, err := s.store.Count(ctx, pii.KindProject, filter)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, s.pageSize)
	records, err := s.store.FindMany(ctx, pii.KindProject, store.Query{
		Filter:  filter,
		Include: []string{"memberships"},
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, err
	}

	decrypted, errs := s.codec.DecryptBatch(ctx, pii.KindProject, records)
	if err := pii.FirstBatchError(errs); err != nil {
		return nil, err
	}
	decrypted = pii.FilterPlaintext(decrypted, projectSearchFields, search)

	return &ProjectPage{
		Projects:   sanitizeAll(decrypted),
		Total:      total,
		TotalPages: totalPages(total, s.pageSize),
	}, nil
}

// Update changes the project's name or description. Owners always may;
// editors may because projects are collaborative.
func (s *ProjectService) Update(ctx context.Context, principal authz.Principal, projectID string, name, description *string) (pii.Record, error) {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}
	if !authz.CanEdit(principal, target) {
		return nil, common.ErrForbidden
	}

	plain := pii.Record{}
	if name != nil {
		if *name == "" {
			return nil, fmt.Errorf("name required: %w", common.ErrValidation)
		}
		plain["name"] = *name
	}
	if description != nil {
		plain["description"] = *description
	}
	if len(plain) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", common.ErrValidation)
	}

	enc, err := s.codec.EncryptEntity(pii.KindProject, plain)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, pii.KindProject, projectID, enc)
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindProject, updated)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// Delete removes a project. Only the owner (or a super admin) may; editors
// cannot delete even though they can edit.
func (s *ProjectService) Delete(ctx context.Context, principal authz.Principal, projectID string) error {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return err
	}
	if !authz.CanRead(principal, target) {
		return common.ErrNotFound
	}
	if !principal.SuperAdmin && authz.RoleOf(principal.ID, target) != authz.RoleOwner {
		return common.ErrForbidden
	}
	if err := s.store.Delete(ctx, pii.KindProject, projectID); err != nil {
		return err
	}
	s.log.Info(ctx, "project deleted", "projectID", projectID)
	return nil
}

// AddMember grants userID a role on the project. A friendly pre-check catches
// the common duplicate case, but the store's unique constraint is the
// authoritative rejection under concurrency.
func (s *ProjectService) AddMember(ctx context.Context, principal authz.Principal, projectID, userID string, role authz.Role) (pii.Record, error) {
	switch role {
	case authz.RoleEditor, authz.RoleMember:
	case authz.RoleOwner:
		return nil, fmt.Errorf("owner role is assigned at creation: %w", common.ErrValidation)
	default:
		return nil, fmt.Errorf("unknown role %q: %w", role, common.ErrValidation)
	}

	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}
	if !authz.CanAddMember(principal, target) {
		return nil, common.ErrForbidden
	}
	if authz.RoleOf(userID, target) != "" {
		return nil, fmt.Errorf("already a member: %w", common.ErrConflict)
	}
	if _, err := s.store.FindOne(ctx, pii.KindUser, store.Query{
		Filter: map[string]any{"id": userID},
	}); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, pii.KindMembership, pii.Record{
		"projectID": projectID,
		"userID":    userID,
		"role":      string(role),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "member added", "projectID", projectID, "role", string(role))
	return created, nil
}

// RemoveMember revokes userID's membership. The owner's membership can never
// be removed while the project exists.
func (s *ProjectService) RemoveMember(ctx context.Context, principal authz.Principal, projectID, userID string) error {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return err
	}
	if !authz.CanRead(principal, target) {
		return common.ErrNotFound
	}
	if !authz.CanRemoveMember(principal, target, userID) {
		return common.ErrForbidden
	}

	membership, err := s.store.FindOne(ctx, pii.KindMembership, store.Query{
		Filter: map[string]any{"projectID": projectID, "userID": userID},
	})
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, pii.KindMembership, str(membership["id"]))
}
