// Package services implements the application operations on top of the
// store, the PII codec and the authorization rules. Control flow through
// every operation is the same: load raw ciphertext records, decrypt, check
// the principal's membership, mutate via re-encrypted fields, and narrow
// list results in memory after decryption.
package services

import (
	"context"

	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

// secretFields never leave the service layer, at any nesting depth.
var secretFields = []string{"passwordHash", "emailHash"}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// membershipTarget builds the authorization view from a record whose
// "memberships" relation was included.
func membershipTarget(rec pii.Record, collaborative bool) authz.Target {
	t := authz.Target{
		OwnerID:       str(rec["ownerID"]),
		Collaborative: collaborative,
	}
	memberships, ok := rec["memberships"].([]pii.Record)
	if !ok {
		return t
	}
	for _, m := range memberships {
		t.Memberships = append(t.Memberships, authz.Membership{
			UserID: str(m["userID"]),
			Role:   authz.Role(str(m["role"])),
		})
	}
	return t
}

// loadProjectTarget fetches a project with its memberships and returns the
// authorization view. Projects are always collaboratively editable.
func loadProjectTarget(ctx context.Context, st store.Store, projectID string) (pii.Record, authz.Target, error) {
	rec, err := st.FindOne(ctx, pii.KindProject, store.Query{
		Filter:  map[string]any{"id": projectID},
		Include: []string{"memberships"},
	})
	if err != nil {
		return nil, authz.Target{}, err
	}
	return rec, membershipTarget(rec, true), nil
}

// loadGoalTarget fetches a goal with its memberships. Only TEAM goals are
// collaboratively editable.
func loadGoalTarget(ctx context.Context, st store.Store, goalID string) (pii.Record, authz.Target, error) {
	rec, err := st.FindOne(ctx, pii.KindGoal, store.Query{
		Filter:  map[string]any{"id": goalID},
		Include: []string{"memberships"},
	})
	if err != nil {
		return nil, authz.Target{}, err
	}
	return rec, membershipTarget(rec, string(authz.GoalTeam) == str(rec["kind"])), nil
}

// sanitize strips credential and lookup-digest fields from rec and every
// nested record, so decrypted views handed to routes never leak them.
func sanitize(rec pii.Record) pii.Record {
	if rec == nil {
		return nil
	}
	for _, field := range secretFields {
		delete(rec, field)
	}
	for key, value := range rec {
		switch nested := value.(type) {
		case pii.Record:
			rec[key] = sanitize(nested)
		case []pii.Record:
			for i, item := range nested {
				nested[i] = sanitize(item)
			}
		case []any:
			for i, item := range nested {
				if child, ok := item.(pii.Record); ok {
					nested[i] = sanitize(child)
				}
			}
		}
	}
	return rec
}

func sanitizeAll(records []pii.Record) []pii.Record {
	for i, rec := range records {
		records[i] = sanitize(rec)
	}
	return records
}

// totalPages derives the page count from the store's pre-filter total. The
// post-decrypt search can shrink the returned page below this total; the two
// numbers diverging is documented behavior, not a bug.
func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// pageWindow converts a 1-based page number to limit/offset.
func pageWindow(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
