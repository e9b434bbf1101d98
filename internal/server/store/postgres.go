package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/dbx"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres implements Store over a dbx.DBTX (*sql.DB or *sql.Tx), so services
// can run multi-step flows inside one transaction via dbx.WithTx.
type Postgres struct {
	db dbx.DBTX
}

func NewPostgres(db dbx.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Schema() map[pii.Kind][]string {
	return schemaFields()
}

// Transact begins a transaction and runs fn with a store bound to it. When
// the handle is already transactional, fn runs on it directly.
func (p *Postgres) Transact(ctx context.Context, fn func(Store) error) error {
	db, ok := p.db.(*sql.DB)
	if !ok {
		return fn(p)
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(NewPostgres(tx))
	})
}

func (p *Postgres) FindMany(ctx context.Context, kind pii.Kind, q Query) ([]pii.Record, error) {
	spec, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	query, args, err := buildSelect(spec, q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var records []pii.Record
	for rows.Next() {
		rec, err := scanRecord(rows, spec)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := p.attachIncludes(ctx, kind, records, q.Include); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Postgres) FindOne(ctx context.Context, kind pii.Kind, q Query) (pii.Record, error) {
	q.Limit = 1
	q.Offset = 0
	records, err := p.FindMany(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, common.ErrNotFound
	}
	return records[0], nil
}

func (p *Postgres) Create(ctx context.Context, kind pii.Kind, rec pii.Record) (pii.Record, error) {
	spec, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	if _, ok := rec["id"]; !ok {
		rec = withField(rec, "id", uuid.NewString())
	}

	var (
		columns      []string
		placeholders []string
		args         []any
	)
	for _, c := range spec.columns {
		value, ok := rec[c.field]
		if !ok {
			continue // let column defaults apply (created_at)
		}
		columns = append(columns, c.name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, value)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: empty record", common.ErrValidation)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		spec.table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		selectList(spec),
	)

	row := p.db.QueryRowContext(ctx, query, args...)
	created, err := scanRecordRow(row, spec)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (p *Postgres) Update(ctx context.Context, kind pii.Kind, id string, fields pii.Record) (pii.Record, error) {
	spec, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	var (
		assignments []string
		args        []any
	)
	for _, c := range spec.columns {
		if c.field == "id" {
			continue
		}
		value, ok := fields[c.field]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", c.name, len(args)+1))
		args = append(args, value)
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		spec.table,
		strings.Join(assignments, ", "),
		len(args),
		selectList(spec),
	)

	row := p.db.QueryRowContext(ctx, query, args...)
	updated, err := scanRecordRow(row, spec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return updated, nil
}

func (p *Postgres) Delete(ctx context.Context, kind pii.Kind, id string) error {
	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	res, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", spec.table), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context, kind pii.Kind, filter map[string]any) (int64, error) {
	spec, ok := tables[kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown kind %q", common.ErrValidation, kind)
	}

	where, args, err := buildWhere(spec, filter, 0)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", spec.table, where)
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

// attachIncludes populates the requested relation keys on the already-loaded
// records. Each relation level costs one extra query over the collected keys;
// dotted paths recurse into the loaded children.
func (p *Postgres) attachIncludes(ctx context.Context, kind pii.Kind, records []pii.Record, includes []string) error {
	if len(records) == 0 || len(includes) == 0 {
		return nil
	}

	// Group sub-paths by their first segment so "memberships.user" and
	// "memberships.project" trigger one memberships load.
	children := map[string][]string{}
	for _, include := range includes {
		head, rest, found := strings.Cut(include, ".")
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
		if rel.many {
			if err := p.attachMany(ctx, records, key, rel, subIncludes); err != nil {
				return err
			}
		} else {
			if err := p.attachOne(ctx, records, key, rel, subIncludes); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Postgres) attachMany(ctx context.Context, parents []pii.Record, key string, rel relationSpec, subIncludes []string) error {
	ids := collectValues(parents, "id")
	if len(ids) == 0 {
		return nil
	}

	children, err := p.FindMany(ctx, rel.kind, Query{
		Filter:  map[string]any{rel.childField: ids},
		Include: subIncludes,
	})
	if err != nil {
		return err
	}

	grouped := map[any][]pii.Record{}
	for _, child := range children {
		parentID := child[rel.childField]
		grouped[parentID] = append(grouped[parentID], child)
	}
	for _, parent := range parents {
		group := grouped[parent["id"]]
		if group == nil {
			group = []pii.Record{}
		}
		parent[key] = group
	}
	return nil
}

func (p *Postgres) attachOne(ctx context.Context, parents []pii.Record, key string, rel relationSpec, subIncludes []string) error {
	ids := collectValues(parents, rel.localField)
	if len(ids) == 0 {
		return nil
	}

	children, err := p.FindMany(ctx, rel.kind, Query{
		Filter:  map[string]any{"id": ids},
		Include: subIncludes,
	})
	if err != nil {
		return err
	}

	byID := map[any]pii.Record{}
	for _, child := range children {
		byID[child["id"]] = child
	}
	for _, parent := range parents {
		ref := parent[rel.localField]
		if ref == nil {
			continue
		}
		if child, ok := byID[ref]; ok {
			parent[key] = child
		}
	}
	return nil
}

// --- SQL assembly helpers ---

func selectList(spec tableSpec) string {
	names := make([]string, len(spec.columns))
	for i, c := range spec.columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

func buildSelect(spec tableSpec, q Query) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList(spec), spec.table)

	where, args, err := buildWhere(spec, q.Filter, 0)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)

	// Stable default order: insertion time, then ID as tiebreaker. List
	// rendering and pagination depend on a deterministic order.
	orderColumn := "created_at"
	if q.OrderBy != "" {
		name, ok := spec.columnFor(q.OrderBy)
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown order field %q", common.ErrValidation, q.OrderBy)
		}
		orderColumn = name
	}
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id ASC", orderColumn, direction)

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String(), args, nil
}

func buildWhere(spec tableSpec, filter map[string]any, argOffset int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	var (
		conditions []string
		args       []any
	)
	// Deterministic argument order keeps queries testable.
	for _, c := range spec.columns {
		value, ok := filter[c.field]
		if !ok {
			continue
		}
		if list, isList := value.([]any); isList {
			placeholders := make([]string, len(list))
			for i, item := range list {
				args = append(args, item)
				placeholders[i] = fmt.Sprintf("$%d", argOffset+len(args))
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", c.name, strings.Join(placeholders, ", ")))
			continue
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", c.name, argOffset+len(args)))
	}
	if len(conditions) != len(filter) {
		return "", nil, fmt.Errorf("%w: filter references unknown fields", common.ErrValidation)
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// collectValues gathers the distinct non-nil values of field across records,
// preserving first-seen order.
func collectValues(records []pii.Record, field string) []any {
	seen := map[any]struct{}{}
	var out []any
	for _, rec := range records {
		value := rec[field]
		if value == nil {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(rows *sql.Rows, spec tableSpec) (pii.Record, error) {
	return scanInto(rows, spec)
}

func scanRecordRow(row *sql.Row, spec tableSpec) (pii.Record, error) {
	return scanInto(row, spec)
}

func scanInto(scanner rowScanner, spec tableSpec) (pii.Record, error) {
	values := make([]any, len(spec.columns))
	dests := make([]any, len(spec.columns))
	for i := range values {
		dests[i] = &values[i]
	}
	if err := scanner.Scan(dests...); err != nil {
		return nil, err
	}

	rec := make(pii.Record, len(spec.columns))
	for i, c := range spec.columns {
		switch v := values[i].(type) {
		case []byte:
			rec[c.field] = string(v)
		default:
			rec[c.field] = v
		}
	}
	return rec, nil
}

func withField(rec pii.Record, field string, value any) pii.Record {
	out := make(pii.Record, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	out[field] = value
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
