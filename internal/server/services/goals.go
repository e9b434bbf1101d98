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

// Task statuses walk open -> in_progress -> done; any backward move is
// allowed, re-opening finished work is normal.
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

var goalSearchFields = []string{"title", "description"}

// GoalService handles goals, goal memberships and their tasks.
type GoalService struct {
	store    store.Store
	codec    *pii.Codec
	log      logging.Logger
	pageSize int
}

func NewGoalService(st store.Store, codec *pii.Codec, log logging.Logger, pageSize int) *GoalService {
	return &GoalService{
		store:    st,
		codec:    codec,
		log:      log.With("module", "goals"),
		pageSize: pageSize,
	}
}

// Create inserts a goal and the creator's OWNER goal membership in one
// transaction. Kind is "personal" or "team"; only TEAM goals are
// collaboratively editable afterwards.
func (s *GoalService) Create(ctx context.Context, principal authz.Principal, title, description string, kind authz.GoalKind) (pii.Record, error) {
	if title == "" {
		return nil, fmt.Errorf("title required: %w", common.ErrValidation)
	}
	if kind != authz.GoalPersonal && kind != authz.GoalTeam {
		return nil, fmt.Errorf("unknown goal kind %q: %w", kind, common.ErrValidation)
	}

	enc, err := s.codec.EncryptEntity(pii.KindGoal, pii.Record{
		"title":       title,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	enc["ownerID"] = principal.ID
	enc["kind"] = string(kind)

	var created pii.Record
	err = s.store.Transact(ctx, func(tx store.Store) error {
		created, err = tx.Create(ctx, pii.KindGoal, enc)
		if err != nil {
			return err
		}
		_, err = tx.Create(ctx, pii.KindGoalMembership, pii.Record{
			"goalID": created["id"],
			"userID": principal.ID,
			"role":   string(authz.RoleOwner),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "goal created", "goalID", str(created["id"]), "kind", string(kind))

	dec, err := s.codec.DecryptEntity(ctx, pii.KindGoal, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// Get returns a goal with its memberships and tasks, hidden behind
// common.ErrNotFound for non-members.
func (s *GoalService) Get(ctx context.Context, principal authz.Principal, goalID string) (pii.Record, error) {
	rec, err := s.store.FindOne(ctx, pii.KindGoal, store.Query{
		Filter:  map[string]any{"id": goalID},
		Include: []string{"memberships.user", "tasks"},
	})
	if err != nil {
		return nil, err
	}
	target := membershipTarget(rec, str(rec["kind"]) == string(authz.GoalTeam))
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}

	dec, err := s.codec.DecryptGraph(ctx, pii.KindGoal, rec)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// GoalPage is one page of the principal's goals.
type GoalPage struct {
	Goals      []pii.Record
	Total      int64
	TotalPages int
}

// List returns a page of goals the principal belongs to, optionally narrowed
// by a post-decrypt search over title and description.
func (s *GoalService) List(ctx context.Context, principal authz.Principal, page int, search string) (*GoalPage, error) {
	memberships, err := s.store.FindMany(ctx, pii.KindGoalMembership, store.Query{
		Filter: map[string]any{"userID": principal.ID},
	})
	if err != nil {
		return nil, err
	}
	goalIDs := make([]any, 0, len(memberships))
	for _, m := range memberships {
		goalIDs = append(goalIDs, m["goalID"])
	}
	if len(goalIDs) == 0 {
		return &GoalPage{Goals: []pii.Record{}}, nil
	}

	filter := map[string]any{"id": goalIDs}
	total, err := s.store.Count(ctx, pii.KindGoal, filter)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, s.pageSize)
	records, err := s.store.FindMany(ctx, pii.KindGoal, store.Query{
		Filter: filter,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	decrypted, errs := s.codec.DecryptBatch(ctx, pii.KindGoal, records)
	if err := pii.FirstBatchError(errs); err != nil {
		return nil, err
	}
	decrypted = pii.FilterPlaintext(decrypted, goalSearchFields, search)

	return &GoalPage{
		Goals:      sanitizeAll(decrypted),
		Total:      total,
		TotalPages: totalPages(total, s.pageSize),
	}, nil
}

// Update changes the goal's title or description. On personal goals only the
// owner may; on team goals editors may too.
func (s *GoalService) Update(ctx context.Context, principal authz.Principal, goalID string, title, description *string) (pii.Record, error) {
	_, target, err := loadGoalTarget(ctx, s.store, goalID)
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
	if title != nil {
		if *title == "" {
			return nil, fmt.Errorf("title required: %w", common.ErrValidation)
		}
		plain["title"] = *title
	}
	if description != nil {
		plain["description"] = *description
	}
	if len(plain) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", common.ErrValidation)
	}

	enc, err := s.codec.EncryptEntity(pii.KindGoal, plain)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, pii.KindGoal, goalID, enc)
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindGoal, updated)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// Delete removes a goal, owner only.
func (s *GoalService) Delete(ctx context.Context, principal authz.Principal, goalID string) error {
	_, target, err := loadGoalTarget(ctx, s.store, goalID)
	if err != nil {
		return err
	}
	if !authz.CanRead(principal, target) {
		return common.ErrNotFound
	}
	if !principal.SuperAdmin && authz.RoleOf(principal.ID, target) != authz.RoleOwner {
		return common.ErrForbidden
	}
	if err := s.store.Delete(ctx, pii.KindGoal, goalID); err != nil {
		return err
	}
	s.log.Info(ctx, "goal deleted", "goalID", goalID)
	return nil
}

// AddMember grants userID a role on the goal. On personal goals only the
// owner may manage membership; on team goals editors may too. The goal
// membership unique constraint is the authoritative duplicate rejection.
func (s *GoalService) AddMember(ctx context.Context, principal authz.Principal, goalID, userID string, role authz.Role) (pii.Record, error) {
	switch role {
	case authz.RoleEditor, authz.RoleMember:
	case authz.RoleOwner:
		return nil, fmt.Errorf("owner role is assigned at creation: %w", common.ErrValidation)
	default:
		return nil, fmt.Errorf("unknown role %q: %w", role, common.ErrValidation)
	}

	_, target, err := loadGoalTarget(ctx, s.store, goalID)
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

	created, err := s.store.Create(ctx, pii.KindGoalMembership, pii.Record{
		"goalID": goalID,
		"userID": userID,
		"role":   string(role),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "goal member added", "goalID", goalID, "role", string(role))
	return created, nil
}

// RemoveMember revokes userID's goal membership; the owner's is permanent.
func (s *GoalService) RemoveMember(ctx context.Context, principal authz.Principal, goalID, userID string) error {
	_, target, err := loadGoalTarget(ctx, s.store, goalID)
	if err != nil {
		return err
	}
	if !authz.CanRead(principal, target) {
		return common.ErrNotFound
	}
	if !authz.CanRemoveMember(principal, target, userID) {
		return common.ErrForbidden
	}

	membership, err := s.store.FindOne(ctx, pii.KindGoalMembership, store.Query{
		Filter: map[string]any{"goalID": goalID, "userID": userID},
	})
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, pii.KindGoalMembership, str(membership["id"]))
}

// AddTask creates a task under a goal the principal can edit.
func (s *GoalService) AddTask(ctx context.Context, principal authz.Principal, goalID, title, description string) (pii.Record, error) {
	if title == "" {
		return nil, fmt.Errorf("title required: %w", common.ErrValidation)
	}

	_, target, err := loadGoalTarget(ctx, s.store, goalID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}
	if !authz.CanEdit(principal, target) {
		return nil, common.ErrForbidden
	}

	enc, err := s.codec.EncryptEntity(pii.KindTask, pii.Record{
		"title":       title,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	enc["goalID"] = goalID
	enc["status"] = TaskOpen

	created, err := s.store.Create(ctx, pii.KindTask, enc)
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindTask, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// UpdateTaskStatus moves a task between statuses, in any direction.
func (s *GoalService) UpdateTaskStatus(ctx context.Context, principal authz.Principal, taskID, status string) (pii.Record, error) {
	switch status {
	case TaskOpen, TaskInProgress, TaskDone:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, common.ErrValidation)
	}

	task, err := s.store.FindOne(ctx, pii.KindTask, store.Query{
		Filter: map[string]any{"id": taskID},
	})
	if err != nil {
		return nil, err
	}
	_, target, err := loadGoalTarget(ctx, s.store, str(task["goalID"]))
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}
	if !authz.CanEdit(principal, target) {
		return nil, common.ErrForbidden
	}

	updated, err := s.store.Update(ctx, pii.KindTask, taskID, pii.Record{"status": status})
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindTask, updated)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}
