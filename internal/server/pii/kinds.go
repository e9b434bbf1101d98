// Package pii implements transparent field-level encryption for entities
// holding personal data. Entities travel as generic records (field name to
// value), the shape the persistence collaborator returns with nested relation
// includes. Which fields are ciphered and which nested keys are walked is
// declared here per entity kind, checked at startup against the store schema,
// and applied generically by the codec.
package pii

// Kind tags a record with the field-spec and relation rules that apply to it.
type Kind string

const (
	KindUser           Kind = "user"
	KindProject        Kind = "project"
	KindGoal           Kind = "goal"
	KindTask           Kind = "task"
	KindMessage        Kind = "message"
	KindInvitation     Kind = "invitation"
	KindMembership     Kind = "membership"
	KindGoalMembership Kind = "goalMembership"
)

// Record is one entity instance as a field-name-to-value mapping. Nested
// relations appear as Record or []Record values under their relation key.
type Record = map[string]any

// Relation declares one nested key of a record and the kind of the records
// found under it.
type Relation struct {
	Key  string
	Kind Kind
}

// encryptedFields lists, per kind, the ordered field names stored encrypted.
// A field not listed here is never passed through the cipher.
var encryptedFields = map[Kind][]string{
	KindUser:           {"email", "firstName", "lastName"},
	KindProject:        {"name", "description"},
	KindGoal:           {"title", "description"},
	KindTask:           {"title", "description"},
	KindMessage:        {"body"},
	KindInvitation:     {"email"},
	KindMembership:     {},
	KindGoalMembership: {},
}

// relations lists, per kind, the nested keys the graph decryptor walks.
// Keys outside this list are left structurally intact.
var relations = map[Kind][]Relation{
	KindUser:           {{Key: "memberships", Kind: KindMembership}},
	KindProject:        {{Key: "owner", Kind: KindUser}, {Key: "memberships", Kind: KindMembership}},
	KindMembership:     {{Key: "user", Kind: KindUser}, {Key: "project", Kind: KindProject}},
	KindGoal:           {{Key: "memberships", Kind: KindGoalMembership}, {Key: "tasks", Kind: KindTask}},
	KindGoalMembership: {{Key: "user", Kind: KindUser}},
	KindMessage:        {{Key: "author", Kind: KindUser}},
	KindInvitation:     {{Key: "project", Kind: KindProject}, {Key: "invitedBy", Kind: KindUser}},
}

// EncryptedFields returns the declared encrypted field names for kind.
func EncryptedFields(kind Kind) []string {
	return encryptedFields[kind]
}

// Relations returns the declared nested relation paths for kind.
func Relations(kind Kind) []Relation {
	return relations[kind]
}

// Kinds returns every declared entity kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(encryptedFields))
	for k := range encryptedFields {
		kinds = append(kinds, k)
	}
	return kinds
}
