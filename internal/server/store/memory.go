package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/google/uuid"
)

// uniqueKeys declares the composite uniqueness constraints the in-memory
// store enforces, matching the Postgres schema. Memberships are unique per
// (target, user); users and invitations dedupe on the deterministic email
// digest, since envelopes of the same address never collide.
var uniqueKeys = map[pii.Kind][][]string{
	pii.KindUser:           {{"emailHash"}},
	pii.KindMembership:     {{"projectID", "userID"}},
	pii.KindGoalMembership: {{"goalID", "userID"}},
	pii.KindInvitation:     {{"projectID", "emailHash"}, {"token"}},
}

// Memory implements Store in process memory with the same observable
// semantics as Postgres: stable order, ErrNotFound, ErrConflict on unique
// violations. Used by service tests and the end-to-end scenarios.
type Memory struct {
	mu      sync.RWMutex
	records map[pii.Kind][]pii.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[pii.Kind][]pii.Record)}
}

func (m *Memory) Schema() map[pii.Kind][]string {
	return schemaFields()
}

// Transact runs fn against the store itself. Individual operations are
// atomic; cross-operation atomicity is not simulated.
func (m *Memory) Transact(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

func (m *Memory) FindMany(ctx context.Context, kind pii.Kind, q Query) ([]pii.Record, error) {
	if _, ok := tables[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	m.mu.RLock()
	var matched []pii.Record
	for _, rec := range m.records[kind] {
		if matchesFilter(rec, q.Filter) {
			matched = append(matched, cloneShallow(rec))
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		if _, ok := tables[kind].columnFor(q.OrderBy); !ok {
			return nil, fmt.Errorf("%w: unknown order field %q", common.ErrValidation, q.OrderBy)
		}
	}
	sortRecords(matched, q.OrderBy, q.Desc)

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	if err := m.attachIncludes(ctx, kind, matched, q.Include); err != nil {
		return nil, err
	}
	return matched, nil
}

func (m *Memory) FindOne(ctx context.Context, kind pii.Kind, q Query) (pii.Record, error) {
	q.Limit = 1
	q.Offset = 0
	records, err := m.FindMany(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, common.ErrNotFound
	}
	return records[0], nil
}

func (m *Memory) Create(ctx context.Context, kind pii.Kind, rec pii.Record) (pii.Record, error) {
	if _, ok := tables[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	stored := cloneShallow(rec)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["createdAt"]; !ok {
		stored["createdAt"] = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range uniqueKeys[kind] {
		for _, existing := range m.records[kind] {
			if sameKey(existing, stored, key) {
				return nil, common.ErrConflict
			}
		}
	}
	for _, existing := range m.records[kind] {
		if existing["id"] == stored["id"] {
			return nil, common.ErrConflict
		}
	}

	m.records[kind] = append(m.records[kind], stored)
	return cloneShallow(stored), nil
}

func (m *Memory) Update(ctx context.Context, kind pii.Kind, id string, fields pii.Record) (pii.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.records[kind] {
		if existing["id"] != id {
			continue
		}
		updated := cloneShallow(existing)
		for k, v := range fields {
			if k == "id" {
				continue
			}
			updated[k] = v
		}
		m.records[kind][i] = updated
		return cloneShallow(updated), nil
	}
	return nil, common.ErrNotFound
}

func (m *Memory) Delete(ctx context.Context, kind pii.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.records[kind]
	for i, existing := range records {
		if existing["id"] == id {
			m.records[kind] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return common.ErrNotFound
}

func (m *Memory) Count(ctx context.Context, kind pii.Kind, filter map[string]any) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, rec := range m.records[kind] {
		if matchesFilter(rec, filter) {
			count++
		}
	}
	return count, nil
}

// attachIncludes mirrors the Postgres include resolution over the in-memory
// data, including dotted sub-paths.
func (m *Memory) attachIncludes(ctx context.Context, kind pii.Kind, records []pii.Record, includes []string) error {
	if len(records) == 0 || len(includes) == 0 {
		return nil
	}

	children := map[string][]string{}
	for _, include := range includes {
		head, rest, found := cutPath(include)
		if found {
			children[head] = append(children[head], rest)
		} else if _, ok := children[head]; !ok {
			children[head] = nil
		}
	}

	for key, subIncludes := range children {
		rel, ok := storeRelations[kind][key]
		if !ok {
			return fmt.Errorf("%w: unknown relation %s.%s", common.ErrValidation, kind, key)
		}
		for _, parent := range records {
			if rel.many {
				group, err := m.FindMany(ctx, rel.kind, Query{
					Filter:  map[string]any{rel.childField: parent["id"]},
					Include: subIncludes,
				})
				if err != nil {
					return err
				}
				if group == nil {
					group = []pii.Record{}
				}
				parent[key] = group
			} else {
				ref := parent[rel.localField]
				if ref == nil {
					continue
				}
				child, err := m.FindOne(ctx, rel.kind, Query{
					Filter:  map[string]any{"id": ref},
					Include: subIncludes,
				})
				if err != nil {
					if err == common.ErrNotFound {
						continue
					}
					return err
				}
				parent[key] = child
			}
		}
	}
	return nil
}

func cutPath(path string) (head, rest string, found bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}

func matchesFilter(rec pii.Record, filter map[string]any) bool {
	for field, want := range filter {
		got := rec[field]
		if list, ok := want.([]any); ok {
			found := false
			for _, item := range list {
				if got == item {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func sameKey(a, b pii.Record, key []string) bool {
	for _, field := range key {
		if a[field] == nil || b[field] == nil {
			return false
		}
		if a[field] != b[field] {
			return false
		}
	}
	return true
}

// sortRecords mirrors the Postgres ordering: the requested field (createdAt
// by default) in the requested direction, ID ascending as tiebreaker.
func sortRecords(records []pii.Record, orderBy string, desc bool) {
	field := orderBy
	if field == "" {
		field = "createdAt"
	}
	sort.SliceStable(records, func(i, j int) bool {
		c := compareValues(records[i][field], records[j][field])
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return compareValues(records[i]["id"], records[j]["id"]) < 0
	})
}

func compareValues(a, b any) int {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Compare(bt)
	}
	as := fmt.Sprint(a)
	bs := fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func cloneShallow(rec pii.Record) pii.Record {
	out := make(pii.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
