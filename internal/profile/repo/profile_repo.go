package repo

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/profile/entity"
	"github.com/shekshuev/athena-backend/pkg/database"
	"github.com/shekshuev/athena-backend/pkg/metrics"
	"github.com/shekshuev/athena-backend/pkg/utilities"
)

var (
	ErrAlreadyExists  = errors.New("profile record already exists")
	ErrNotFound       = errors.New("profile record not found")
	ErrAccountMissing = errors.New("profile account does not exist")
	ErrRepository     = errors.New("profile repository error")
	ErrEmptyPatch     = errors.New("no fields to update")
)

const recordColumns = `id, account_id, key, value, source, created_at, updated_at`

// ProfileRepo stores profile records. Rows are removed with a hard delete and
// disappear with their account through ON DELETE CASCADE.
type ProfileRepo struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
	psql   sq.StatementBuilderType
	newID  func() uuid.UUID
}

func NewProfileRepo(db *sqlx.DB, logger *zap.SugaredLogger) *ProfileRepo {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ProfileRepo{
		db:     db,
		logger: logger,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		newID:  utilities.NewUUID,
	}
}

// EnsureTable creates the profiles table. The accounts table must exist.
func (r *ProfileRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  account_id UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
  key TEXT NOT NULL,
  value TEXT,
  source TEXT NOT NULL DEFAULT 'user',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT profiles_account_key_uniq UNIQUE (account_id, key)
)`,
		`CREATE INDEX IF NOT EXISTS profiles_created_at_idx ON profiles (created_at, id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return r.fail("ensure table", err)
		}
	}
	return nil
}

// Create inserts a record. A second record with the same account and key
// yields ErrAlreadyExists; an unknown account yields ErrAccountMissing.
func (r *ProfileRepo) Create(ctx context.Context, accountID uuid.UUID, in entity.NewRecord) (*entity.Record, error) {
	source := in.Source
	if source == "" {
		source = entity.SourceUser
	}
	const q = `INSERT INTO profiles (id, account_id, key, value, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + recordColumns
	var rec entity.Record
	if err := r.db.GetContext(ctx, &rec, q, r.newID(), accountID, string(in.Key), in.Value, string(source)); err != nil {
		return nil, r.fail("create", err, "account_id", accountID.String(), "key", string(in.Key))
	}
	return &rec, nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM profiles WHERE id = $1`
	var rec entity.Record
	if err := r.db.GetContext(ctx, &rec, q, id); err != nil {
		return nil, r.fail("get by id", err, "id", id.String())
	}
	return &rec, nil
}

// List returns records matching f, oldest first.
func (r *ProfileRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Record, error) {
	b := r.psql.Select(recordColumns).From("profiles")
	if f.AccountID != nil {
		b = b.Where(sq.Eq{"account_id": *f.AccountID})
	}
	if f.Source != nil {
		b = b.Where(sq.Eq{"source": string(*f.Source)})
	}
	b = b.OrderBy("created_at ASC", "id ASC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	q, args, err := b.ToSql()
	if err != nil {
		return nil, r.fail("build list", err)
	}
	out := []*entity.Record{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, r.fail("list", err, "limit", f.Limit, "offset", f.Offset)
	}
	return out, nil
}

// Update sets value and/or source and refreshes updated_at.
func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, patch entity.Patch) (*entity.Record, error) {
	if patch.IsEmpty() {
		return nil, oops.
			In("profile_repository").
			Code("PROFILE_EMPTY_PATCH").
			With("operation", "update", "id", id.String()).
			Wrap(ErrEmptyPatch)
	}

	b := r.psql.Update("profiles")
	if patch.Value != nil {
		b = b.Set("value", *patch.Value)
	}
	if patch.Source != nil {
		b = b.Set("source", string(*patch.Source))
	}
	b = b.Set("updated_at", sq.Expr("NOW()")).
		Where("id = ?", id).
		Suffix("RETURNING " + recordColumns)

	q, args, err := b.ToSql()
	if err != nil {
		return nil, r.fail("build update", err, "id", id.String())
	}
	var rec entity.Record
	if err := r.db.GetContext(ctx, &rec, q, args...); err != nil {
		return nil, r.fail("update", err, "id", id.String())
	}
	return &rec, nil
}

// Delete removes a record for good.
func (r *ProfileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return r.fail("delete", err, "id", id.String())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.fail("delete rows affected", err, "id", id.String())
	}
	if n == 0 {
		return oops.
			In("profile_repository").
			Code("PROFILE_NOT_FOUND").
			With("operation", "delete", "id", id.String()).
			Wrap(ErrNotFound)
	}
	return nil
}

func (r *ProfileRepo) fail(op string, err error, kv ...any) error {
	b := oops.In("profile_repository").With("operation", op).With(kv...)

	switch {
	case database.IsNoRows(err):
		return b.Code("PROFILE_NOT_FOUND").Wrap(ErrNotFound)
	case database.IsUniqueViolation(err):
		metrics.RepositoryErrors.WithLabelValues("profiles", "already_exists").Inc()
		return b.Code("PROFILE_ALREADY_EXISTS").
			With("constraint", database.ConstraintName(err)).
			Wrap(ErrAlreadyExists)
	case database.IsForeignKeyViolation(err):
		metrics.RepositoryErrors.WithLabelValues("profiles", "account_missing").Inc()
		return b.Code("PROFILE_ACCOUNT_MISSING").
			With("constraint", database.ConstraintName(err)).
			Wrap(ErrAccountMissing)
	default:
		metrics.RepositoryErrors.WithLabelValues("profiles", "repository").Inc()
		r.logger.Errorw("profile repository failure", append([]any{"operation", op, "err", err}, kv...)...)
		return b.Code("PROFILE_REPOSITORY_ERROR").
			With("sqlstate", database.SQLState(err), "cause", err.Error()).
			Wrap(ErrRepository)
	}
}
