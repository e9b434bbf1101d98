// Package authz decides whether a principal may act on a project or goal,
// based on ownership and membership roles. It works on already-loaded,
// already-decrypted data and only returns booleans; translating a denial into
// a response (403, or 404 to hide existence) is the route layer's job.
package authz

// Role is a membership role over a target entity.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

// GoalKind controls whether a goal is collaboratively editable.
type GoalKind string

const (
	GoalPersonal GoalKind = "personal"
	GoalTeam     GoalKind = "team"
)

// Principal is the authenticated caller. SuperAdmin principals bypass
// membership checks entirely.
type Principal struct {
	ID         string
	SuperAdmin bool
}

// Membership grants one user a role over the target.
// There is exactly one membership per (user, target) pair.
type Membership struct {
	UserID string
	Role   Role
}

// Target is the membership view of a project or goal. OwnerID is the
// creator; Collaborative is true for projects and TEAM goals, false for
// personal goals.
type Target struct {
	OwnerID       string
	Collaborative bool
	Memberships   []Membership
}

// RoleOf returns the principal's role on the target, with ownership taking
// precedence over any stored membership row.
func RoleOf(principalID string, t Target) Role {
	if principalID == t.OwnerID {
		return RoleOwner
	}
	for _, m := range t.Memberships {
		if m.UserID == principalID {
			return m.Role
		}
	}
	return ""
}

// CanRead reports whether the principal may see the target at all: owner or
// any membership.
func CanRead(p Principal, t Target) bool {
	if p.SuperAdmin {
		return true
	}
	return RoleOf(p.ID, t) != ""
}

// CanEdit reports whether the principal may modify the target itself.
// The owner always may; an editor may only when the target is collaborative.
func CanEdit(p Principal, t Target) bool {
	if p.SuperAdmin {
		return true
	}
	switch RoleOf(p.ID, t) {
	case RoleOwner:
		return true
	case RoleEditor:
		return t.Collaborative
	default:
		return false
	}
}

// CanAddMember mirrors CanEdit: managing membership is an edit of the target.
func CanAddMember(p Principal, t Target) bool {
	return CanEdit(p, t)
}

// CanInvite mirrors CanEdit for invitation creation.
func CanInvite(p Principal, t Target) bool {
	return CanEdit(p, t)
}

// CanRemoveMember reports whether the principal may remove memberID from the
// target. Removing the owner's membership is always denied, even when the
// owner asks for it themselves and even for super-admins: an owner membership
// exists as long as the target does.
func CanRemoveMember(p Principal, t Target, memberID string) bool {
	if memberID == t.OwnerID {
		return false
	}
	return CanEdit(p, t)
}
