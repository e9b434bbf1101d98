package store

import "github.com/dstepanovs/teamplan/internal/server/pii"

// column maps one record field name to its table column.
type column struct {
	field string
	name  string
}

// tableSpec describes how one entity kind is laid out in Postgres.
type tableSpec struct {
	table   string
	columns []column
}

func (t tableSpec) columnFor(field string) (string, bool) {
	for _, c := range t.columns {
		if c.field == field {
			return c.name, true
		}
	}
	return "", false
}

func (t tableSpec) fieldNames() []string {
	fields := make([]string, len(t.columns))
	for i, c := range t.columns {
		fields[i] = c.field
	}
	return fields
}

// relationSpec describes how one declared relation key is resolved. A
// to-many relation selects children whose childField equals the parent ID; a
// to-one relation follows the parent's localField to the child's ID.
type relationSpec struct {
	kind       pii.Kind
	many       bool
	childField string
	localField string
}

var tables = map[pii.Kind]tableSpec{
	pii.KindUser: {
		table: "users",
		columns: []column{
			{"id", "id"},
			{"email", "email"},
			{"emailHash", "email_hash"},
			{"firstName", "first_name"},
			{"lastName", "last_name"},
			{"passwordHash", "password_hash"},
			{"role", "role"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindProject: {
		table: "projects",
		columns: []column{
			{"id", "id"},
			{"name", "name"},
			{"description", "description"},
			{"ownerID", "owner_id"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindMembership: {
		table: "memberships",
		columns: []column{
			{"id", "id"},
			{"projectID", "project_id"},
			{"userID", "user_id"},
			{"role", "role"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindGoal: {
		table: "goals",
		columns: []column{
			{"id", "id"},
			{"title", "title"},
			{"description", "description"},
			{"kind", "kind"},
			{"ownerID", "owner_id"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindGoalMembership: {
		table: "goal_memberships",
		columns: []column{
			{"id", "id"},
			{"goalID", "goal_id"},
			{"userID", "user_id"},
			{"role", "role"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindTask: {
		table: "tasks",
		columns: []column{
			{"id", "id"},
			{"goalID", "goal_id"},
			{"title", "title"},
			{"description", "description"},
			{"status", "status"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindMessage: {
		table: "messages",
		columns: []column{
			{"id", "id"},
			{"projectID", "project_id"},
			{"authorID", "author_id"},
			{"body", "body"},
			{"createdAt", "created_at"},
		},
	},
	pii.KindInvitation: {
		table: "invitations",
		columns: []column{
			{"id", "id"},
			{"projectID", "project_id"},
			{"email", "email"},
			{"emailHash", "email_hash"},
			{"token", "token"},
			{"invitedByID", "invited_by_id"},
			{"status", "status"},
			{"createdAt", "created_at"},
		},
	},
}

var storeRelations = map[pii.Kind]map[string]relationSpec{
	pii.KindUser: {
		"memberships": {kind: pii.KindMembership, many: true, childField: "userID"},
	},
	pii.KindProject: {
		"owner":       {kind: pii.KindUser, localField: "ownerID"},
		"memberships": {kind: pii.KindMembership, many: true, childField: "projectID"},
	},
	pii.KindMembership: {
		"user":    {kind: pii.KindUser, localField: "userID"},
		"project": {kind: pii.KindProject, localField: "projectID"},
	},
	pii.KindGoal: {
		"memberships": {kind: pii.KindGoalMembership, many: true, childField: "goalID"},
		"tasks":       {kind: pii.KindTask, many: true, childField: "goalID"},
	},
	pii.KindGoalMembership: {
		"user": {kind: pii.KindUser, localField: "userID"},
	},
	pii.KindMessage: {
		"author": {kind: pii.KindUser, localField: "authorID"},
	},
	pii.KindInvitation: {
		"project":   {kind: pii.KindProject, localField: "projectID"},
		"invitedBy": {kind: pii.KindUser, localField: "invitedByID"},
	},
}

// schemaFields returns record field names per kind, shared by both
// implementations' Schema methods.
func schemaFields() map[pii.Kind][]string {
	schema := make(map[pii.Kind][]string, len(tables))
	for kind, spec := range tables {
		schema[kind] = spec.fieldNames()
	}
	return schema
}
