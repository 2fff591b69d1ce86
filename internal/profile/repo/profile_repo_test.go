package repo

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shekshuev/athena-backend/internal/profile/entity"
)

var (
	recordID  = uuid.MustParse("0e6c3a52-54b7-4d7e-8d59-0f4a1c6b2a11")
	accountID = uuid.MustParse("5b1f3f7e-8f61-4c4e-9a57-2f8a7a3c9e10")
	fixedNow  = time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	columns   = []string{"id", "account_id", "key", "value", "source", "created_at", "updated_at"}
)

func newMockRepo(t *testing.T) (*ProfileRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewProfileRepo(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t).Sugar())
	r.newID = func() uuid.UUID { return recordID }
	return r, mock
}

func recordRow(key string, value any, source string) *sqlmock.Rows {
	return sqlmock.NewRows(columns).
		AddRow(recordID.String(), accountID.String(), key, value, source, fixedNow, fixedNow)
}

func TestProfileRepo_Create(t *testing.T) {
	ctx := context.Background()
	insert := regexp.QuoteMeta("INSERT INTO profiles (id, account_id, key, value, source)")
	value := "Ada"

	t.Run("defaults source to user", func(t *testing.T) {
		r, mock := newMockRepo(t)
		mock.ExpectQuery(insert).
			WithArgs(recordID, accountID, "first_name", value, "user").
			WillReturnRows(recordRow("first_name", value, "user"))

		rec, err := r.Create(ctx, accountID, entity.NewRecord{Key: entity.KeyFirstName, Value: &value})
		require.NoError(t, err)
		assert.Equal(t, entity.KeyFirstName, rec.Key)
		assert.Equal(t, entity.SourceUser, rec.Source)
		require.NotNil(t, rec.Value)
		assert.Equal(t, "Ada", *rec.Value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate key for account maps to ErrAlreadyExists", func(t *testing.T) {
		r, mock := newMockRepo(t)
		mock.ExpectQuery(insert).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "profiles_account_key_uniq"})

		_, err := r.Create(ctx, accountID, entity.NewRecord{Key: entity.KeyFirstName})
		require.ErrorIs(t, err, ErrAlreadyExists)

		oe, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "PROFILE_ALREADY_EXISTS", oe.Code())
		assert.Equal(t, "profiles_account_key_uniq", oe.Context()["constraint"])
	})

	t.Run("unknown account maps to ErrAccountMissing", func(t *testing.T) {
		r, mock := newMockRepo(t)
		mock.ExpectQuery(insert).
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "profiles_account_id_fkey"})

		_, err := r.Create(ctx, accountID, entity.NewRecord{Key: entity.KeyLastName})
		require.ErrorIs(t, err, ErrAccountMissing)
		assert.NotErrorIs(t, err, ErrRepository)
	})
}

func TestProfileRepo_GetByID(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT id, account_id, key, value, source, created_at, updated_at FROM profiles WHERE id = $1")

	r, mock := newMockRepo(t)
	mock.ExpectQuery(query).WithArgs(recordID).WillReturnRows(recordRow("last_name", nil, "admin"))
	mock.ExpectQuery(query).WithArgs(recordID).WillReturnError(sql.ErrNoRows)

	rec, err := r.GetByID(ctx, recordID)
	require.NoError(t, err)
	assert.Nil(t, rec.Value)
	assert.Equal(t, entity.SourceAdmin, rec.Source)

	_, err = r.GetByID(ctx, recordID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_List(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by account and source", func(t *testing.T) {
		r, mock := newMockRepo(t)
		source := entity.SourceSync
		mock.ExpectQuery(regexp.QuoteMeta(
			"SELECT id, account_id, key, value, source, created_at, updated_at FROM profiles WHERE account_id = $1 AND source = $2 ORDER BY created_at ASC, id ASC LIMIT 10 OFFSET 5",
		)).
			WithArgs(accountID, "sync").
			WillReturnRows(recordRow("date_of_birth", "1990-01-01", "sync"))

		out, err := r.List(ctx, entity.Filter{AccountID: &accountID, Source: &source, Limit: 10, Offset: 5})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, entity.KeyDateOfBirth, out[0].Key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match is an empty slice", func(t *testing.T) {
		r, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles ORDER BY created_at ASC, id ASC LIMIT 10 OFFSET 0")).
			WillReturnRows(sqlmock.NewRows(columns))

		out, err := r.List(ctx, entity.Filter{Limit: 10})
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("fault maps to ErrRepository", func(t *testing.T) {
		r, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT").WillReturnError(&pgconn.PgError{Code: "57014"})

		_, err := r.List(ctx, entity.Filter{Limit: 10})
		require.ErrorIs(t, err, ErrRepository)
	})
}

func TestProfileRepo_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("sets value and source", func(t *testing.T) {
		r, mock := newMockRepo(t)
		value := "Lovelace"
		source := entity.SourceAdmin
		mock.ExpectQuery(regexp.QuoteMeta(
			"UPDATE profiles SET value = $1, source = $2, updated_at = NOW() WHERE id = $3 RETURNING id,",
		)).
			WithArgs(value, "admin", recordID).
			WillReturnRows(recordRow("last_name", value, "admin"))

		rec, err := r.Update(ctx, recordID, entity.Patch{Value: &value, Source: &source})
		require.NoError(t, err)
		assert.Equal(t, "Lovelace", *rec.Value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty patch fails before touching the database", func(t *testing.T) {
		r, mock := newMockRepo(t)
		_, err := r.Update(ctx, recordID, entity.Patch{})
		require.ErrorIs(t, err, ErrEmptyPatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		r, mock := newMockRepo(t)
		value := "x"
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles SET value = $1")).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := r.Update(ctx, recordID, entity.Patch{Value: &value})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestProfileRepo_Delete(t *testing.T) {
	stmt := regexp.QuoteMeta("DELETE FROM profiles WHERE id = $1")
	r, mock := newMockRepo(t)
	mock.ExpectExec(stmt).WithArgs(recordID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs(recordID).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Delete(context.Background(), recordID))
	require.ErrorIs(t, r.Delete(context.Background(), recordID), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_EnsureTable(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS profiles")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS profiles_created_at_idx")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
