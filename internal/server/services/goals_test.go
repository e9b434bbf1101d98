package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

func (e *testEnv) createGoal(t *testing.T, owner authz.Principal, title string, kind authz.GoalKind) string {
	t.Helper()
	rec, err := e.goals.Create(context.Background(), owner, title, "", kind)
	require.NoError(t, err)
	return rec["id"].(string)
}

func TestGoalCreate_CreatorMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")

	goal, err := env.goals.Create(ctx, ada, "Ship v1", "", authz.GoalTeam)
	require.NoError(t, err)
	assert.Equal(t, string(authz.GoalTeam), goal["kind"])

	membership, err := env.store.FindOne(ctx, pii.KindGoalMembership, store.Query{
		Filter: map[string]any{"goalID": goal["id"], "userID": ada.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, string(authz.RoleOwner), membership["role"])

	_, err = env.goals.Create(ctx, ada, "", "", authz.GoalTeam)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = env.goals.Create(ctx, ada, "x", "", authz.GoalKind("weekly"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestGoalEdit_PersonalVsTeam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	editor := env.registerUser(t, "ed@example.com")

	personal := env.createGoal(t, ada, "Read more", authz.GoalPersonal)
	team := env.createGoal(t, ada, "Ship v1", authz.GoalTeam)
	_, err := env.goals.AddMember(ctx, ada, personal, editor.ID, authz.RoleEditor)
	require.NoError(t, err)
	_, err = env.goals.AddMember(ctx, ada, team, editor.ID, authz.RoleEditor)
	require.NoError(t, err)

	title := "changed"
	// An editor on a personal goal can read but not edit.
	_, err = env.goals.Get(ctx, editor, personal)
	assert.NoError(t, err)
	_, err = env.goals.Update(ctx, editor, personal, &title, nil)
	assert.ErrorIs(t, err, common.ErrForbidden)

	// The same role on a team goal can edit.
	updated, err := env.goals.Update(ctx, editor, team, &title, nil)
	require.NoError(t, err)
	assert.Equal(t, "changed", updated["title"])

	// The owner edits either kind.
	_, err = env.goals.Update(ctx, ada, personal, &title, nil)
	assert.NoError(t, err)
}

func TestGoalMembership_PersonalManagedByOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	editor := env.registerUser(t, "ed@example.com")
	carol := env.registerUser(t, "carol@example.com")

	personal := env.createGoal(t, ada, "Read more", authz.GoalPersonal)
	_, err := env.goals.AddMember(ctx, ada, personal, editor.ID, authz.RoleEditor)
	require.NoError(t, err)

	// An editor cannot manage membership on a personal goal.
	_, err = env.goals.AddMember(ctx, editor, personal, carol.ID, authz.RoleMember)
	assert.ErrorIs(t, err, common.ErrForbidden)

	team := env.createGoal(t, ada, "Ship v1", authz.GoalTeam)
	_, err = env.goals.AddMember(ctx, ada, team, editor.ID, authz.RoleEditor)
	require.NoError(t, err)

	// On a team goal the editor may.
	_, err = env.goals.AddMember(ctx, editor, team, carol.ID, authz.RoleMember)
	assert.NoError(t, err)
}

func TestGoalMembership_DuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	bob := env.registerUser(t, "bob@example.com")
	goalID := env.createGoal(t, ada, "Ship v1", authz.GoalTeam)

	_, err := env.goals.AddMember(ctx, ada, goalID, bob.ID, authz.RoleMember)
	require.NoError(t, err)
	_, err = env.goals.AddMember(ctx, ada, goalID, bob.ID, authz.RoleEditor)
	assert.ErrorIs(t, err, common.ErrConflict)

	// The owner's goal membership cannot be removed.
	err = env.goals.RemoveMember(ctx, ada, goalID, ada.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	require.NoError(t, env.goals.RemoveMember(ctx, ada, goalID, bob.ID))
}

func TestGoalGet_IncludesTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	bob := env.registerUser(t, "bob@example.com")
	goalID := env.createGoal(t, ada, "Ship v1", authz.GoalTeam)

	task, err := env.goals.AddTask(ctx, ada, goalID, "Write docs", "user guide")
	require.NoError(t, err)
	assert.Equal(t, TaskOpen, task["status"])

	goal, err := env.goals.Get(ctx, ada, goalID)
	require.NoError(t, err)
	tasks, ok := goal["tasks"].([]pii.Record)
	require.True(t, ok)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write docs", tasks[0]["title"])

	// Hidden from non-members like everything else.
	_, err = env.goals.Get(ctx, bob, goalID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateTaskStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	member := env.registerUser(t, "mem@example.com")
	goalID := env.createGoal(t, ada, "Ship v1", authz.GoalTeam)
	_, err := env.goals.AddMember(ctx, ada, goalID, member.ID, authz.RoleMember)
	require.NoError(t, err)

	task, err := env.goals.AddTask(ctx, ada, goalID, "Write docs", "")
	require.NoError(t, err)
	taskID := task["id"].(string)

	updated, err := env.goals.UpdateTaskStatus(ctx, ada, taskID, TaskDone)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, updated["status"])

	// Re-opening is allowed.
	updated, err = env.goals.UpdateTaskStatus(ctx, ada, taskID, TaskOpen)
	require.NoError(t, err)
	assert.Equal(t, TaskOpen, updated["status"])

	_, err = env.goals.UpdateTaskStatus(ctx, ada, taskID, "paused")
	assert.ErrorIs(t, err, common.ErrValidation)

	// Plain members cannot move tasks on a team goal.
	_, err = env.goals.UpdateTaskStatus(ctx, member, taskID, TaskDone)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestGoalList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.registerUser(t, "ada@example.com")
	bob := env.registerUser(t, "bob@example.com")
	env.createGoal(t, ada, "Ship v1", authz.GoalTeam)
	env.createGoal(t, ada, "Read more", authz.GoalPersonal)
	env.createGoal(t, bob, "Run a marathon", authz.GoalPersonal)

	page, err := env.goals.List(ctx, ada, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Goals, 2)

	page, err = env.goals.List(ctx, ada, 1, "ship")
	require.NoError(t, err)
	require.Len(t, page.Goals, 1)
	assert.Equal(t, "Ship v1", page.Goals[0]["title"])
}
