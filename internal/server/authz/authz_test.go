package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func teamGoal() Target {
	return Target{
		OwnerID:       "owner",
		Collaborative: true,
		Memberships: []Membership{
			{UserID: "owner", Role: RoleOwner},
			{UserID: "editor", Role: RoleEditor},
			{UserID: "member", Role: RoleMember},
		},
	}
}

func personalGoal() Target {
	t := teamGoal()
	t.Collaborative = false
	return t
}

func TestRoleOf(t *testing.T) {
	target := teamGoal()
	assert.Equal(t, RoleOwner, RoleOf("owner", target))
	assert.Equal(t, RoleEditor, RoleOf("editor", target))
	assert.Equal(t, RoleMember, RoleOf("member", target))
	assert.Equal(t, Role(""), RoleOf("stranger", target))
}

func TestCanEdit(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		target    Target
		want      bool
	}{
		{"owner on team goal", Principal{ID: "owner"}, teamGoal(), true},
		{"owner on personal goal", Principal{ID: "owner"}, personalGoal(), true},
		{"editor on team goal", Principal{ID: "editor"}, teamGoal(), true},
		{"editor on personal goal", Principal{ID: "editor"}, personalGoal(), false},
		{"member on team goal", Principal{ID: "member"}, teamGoal(), false},
		{"stranger", Principal{ID: "stranger"}, teamGoal(), false},
		{"super-admin stranger", Principal{ID: "root", SuperAdmin: true}, teamGoal(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanEdit(tt.principal, tt.target))
			assert.Equal(t, tt.want, CanAddMember(tt.principal, tt.target))
			assert.Equal(t, tt.want, CanInvite(tt.principal, tt.target))
		})
	}
}

func TestCanRead(t *testing.T) {
	assert.True(t, CanRead(Principal{ID: "member"}, teamGoal()))
	assert.False(t, CanRead(Principal{ID: "stranger"}, teamGoal()))
	assert.True(t, CanRead(Principal{ID: "stranger", SuperAdmin: true}, teamGoal()))
}

func TestCanRemoveMember(t *testing.T) {
	target := teamGoal()

	// Owner may remove a plain member; member may not remove anyone.
	assert.True(t, CanRemoveMember(Principal{ID: "owner"}, target, "member"))
	assert.True(t, CanRemoveMember(Principal{ID: "editor"}, target, "member"))
	assert.False(t, CanRemoveMember(Principal{ID: "member"}, target, "editor"))

	// The owner's own membership is never removable, whoever asks.
	assert.False(t, CanRemoveMember(Principal{ID: "owner"}, target, "owner"))
	assert.False(t, CanRemoveMember(Principal{ID: "editor"}, target, "owner"))
	assert.False(t, CanRemoveMember(Principal{ID: "root", SuperAdmin: true}, target, "owner"))
}
