package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres_FindMany(t *testing.T) {
	s, mock := newMockStore(t)

	query := regexp.QuoteMeta(
		"SELECT id, name, description, owner_id, created_at FROM projects" +
			" WHERE owner_id = $1 ORDER BY created_at ASC, id ASC LIMIT 10")
	mock.ExpectQuery(query).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "owner_id", "created_at"}).
			AddRow("p1", "enc:v1:abc", nil, "u1", nil).
			AddRow("p2", "enc:v1:def", "enc:v1:ghi", "u1", nil))

	records, err := s.FindMany(context.Background(), pii.KindProject, Query{
		Filter: map[string]any{"ownerID": "u1"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p1", records[0]["id"])
	assert.Equal(t, "enc:v1:abc", records[0]["name"])
	assert.Nil(t, records[0]["description"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindOne_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "email_hash", "first_name", "last_name", "password_hash", "role", "created_at"}))

	_, err := s.FindOne(context.Background(), pii.KindUser, Query{Filter: map[string]any{"id": "missing"}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_Create_UniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO memberships").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "memberships_project_id_user_id_key"})

	_, err := s.Create(context.Background(), pii.KindMembership, pii.Record{
		"projectID": "p1", "userID": "u5", "role": "member",
	})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestPostgres_Create_ReturnsStoredRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO memberships").
		WithArgs(sqlmock.AnyArg(), "p1", "u5", "member").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "user_id", "role", "created_at"}).
			AddRow("m1", "p1", "u5", "member", nil))

	created, err := s.Create(context.Background(), pii.KindMembership, pii.Record{
		"projectID": "p1", "userID": "u5", "role": "member",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", created["id"])
	assert.Equal(t, "member", created["role"])
}

func TestPostgres_Delete_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), pii.KindProject, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_Count(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM projects WHERE owner_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := s.Count(context.Background(), pii.KindProject, map[string]any{"ownerID": "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestPostgres_UnknownFilterField(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.FindMany(context.Background(), pii.KindProject, Query{
		Filter: map[string]any{"nope": 1},
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}
