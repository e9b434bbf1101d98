// Package store is the persistence collaborator: CRUD over generic records
// by entity kind, with exact-field filters, nested relation includes and
// uniqueness-constrained creation. Records cross this boundary with PII
// fields already encrypted; the store never sees plaintext PII and never
// interprets field values beyond scanning them.
package store

import (
	"context"

	"github.com/dstepanovs/teamplan/internal/server/pii"
)

// Query narrows a read. Filter keys are record field names compared for
// equality. Include names relation keys to populate, with dots for nesting
// ("memberships.user"). Zero Limit means no limit.
type Query struct {
	Filter  map[string]any
	Include []string
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store is the contract the services program against. Implementations map
// unique-constraint violations to common.ErrConflict — that rejection, not
// any application-level pre-check, is the authoritative "already exists"
// signal under concurrency.
type Store interface {
	// FindMany returns matching records in a stable order.
	FindMany(ctx context.Context, kind pii.Kind, q Query) ([]pii.Record, error)

	// FindOne returns the first match or common.ErrNotFound.
	FindOne(ctx context.Context, kind pii.Kind, q Query) (pii.Record, error)

	// Create inserts rec, generating an ID when absent, and returns the
	// stored record. Unique violations surface as common.ErrConflict.
	Create(ctx context.Context, kind pii.Kind, rec pii.Record) (pii.Record, error)

	// Update patches the named fields on the record with the given ID and
	// returns the stored result, or common.ErrNotFound.
	Update(ctx context.Context, kind pii.Kind, id string, fields pii.Record) (pii.Record, error)

	// Delete removes the record or returns common.ErrNotFound. Removal of
	// something absent is a not-found condition, not a no-op success.
	Delete(ctx context.Context, kind pii.Kind, id string) error

	// Count returns the number of records matching the filter. List
	// endpoints compute pagination totals from this, before any
	// post-decrypt search narrows the page.
	Count(ctx context.Context, kind pii.Kind, filter map[string]any) (int64, error)

	// Transact runs fn against a store handle whose writes commit together
	// or not at all (project + owner membership, goal + creator membership).
	Transact(ctx context.Context, fn func(Store) error) error

	// Schema exposes the record field names per kind, so the PII field
	// tables can be verified at startup.
	Schema() map[pii.Kind][]string
}
