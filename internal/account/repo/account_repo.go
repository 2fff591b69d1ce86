package repo

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/pkg/database"
	"github.com/shekshuev/athena-backend/pkg/metrics"
	"github.com/shekshuev/athena-backend/pkg/utilities"
)

// Error kinds returned by AccountRepo. Driver errors never appear in the
// returned chain; match with errors.Is.
var (
	ErrAlreadyExists = errors.New("account already exists")
	ErrNotFound      = errors.New("account not found")
	ErrRepository    = errors.New("account repository error")
	ErrEmptyPatch    = errors.New("no fields to update")
)

const accountColumns = `id, email, password_hash, is_superadmin, status,
	confirmed_at, created_at, updated_at, deleted_at`

// AccountRepo provides data access for the accounts table using sqlx.
// Every read and write only sees rows with deleted_at IS NULL.
type AccountRepo struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
	psql   sq.StatementBuilderType
	newID  func() uuid.UUID
}

func NewAccountRepo(db *sqlx.DB, logger *zap.SugaredLogger) *AccountRepo {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AccountRepo{
		db:     db,
		logger: logger,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		newID:  utilities.NewUUID,
	}
}

// EnsureTable creates the accounts table and its partial unique email index
// if they do not exist. Prefer proper migrations in production.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS accounts (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT NOT NULL,
  password_hash TEXT,
  is_superadmin BOOLEAN NOT NULL DEFAULT false,
  status TEXT NOT NULL DEFAULT 'created',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  confirmed_at TIMESTAMPTZ,
  deleted_at TIMESTAMPTZ
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_idx ON accounts (email) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS accounts_created_at_idx ON accounts (created_at, id) WHERE deleted_at IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return r.fail("ensure table", err)
		}
	}
	return nil
}

// Create inserts a new account. passwordHash may be nil for accounts that
// authenticate elsewhere.
func (r *AccountRepo) Create(ctx context.Context, email string, passwordHash *string) (*entity.Account, error) {
	const q = `INSERT INTO accounts (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + accountColumns
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, r.newID(), email, passwordHash); err != nil {
		return nil, r.fail("create", err, "email", email)
	}
	return &a, nil
}

// GetByID returns a live account or ErrNotFound.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, r.fail("get by id", err, "id", id.String())
	}
	return &a, nil
}

// GetByEmail returns a live account or ErrNotFound.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1 AND deleted_at IS NULL`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, email); err != nil {
		return nil, r.fail("get by email", err, "email", email)
	}
	return &a, nil
}

// List returns a page of live accounts ordered by creation time, then id.
func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]*entity.Account, error) {
	const q = `SELECT ` + accountColumns + `
		FROM accounts
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`
	var out []*entity.Account
	if err := r.db.SelectContext(ctx, &out, q, limit, offset); err != nil {
		return nil, r.fail("list", err, "limit", limit, "offset", offset)
	}
	if out == nil {
		out = []*entity.Account{}
	}
	return out, nil
}

// Update applies the non-nil fields of patch and refreshes updated_at.
// Column names come from a fixed set; only values are bound as parameters.
func (r *AccountRepo) Update(ctx context.Context, id uuid.UUID, patch entity.Patch) (*entity.Account, error) {
	if patch.IsEmpty() {
		return nil, oops.
			In("account_repository").
			Code("ACCOUNT_EMPTY_PATCH").
			With("operation", "update", "id", id.String()).
			Wrap(ErrEmptyPatch)
	}

	b := r.psql.Update("accounts")
	if patch.Email != nil {
		b = b.Set("email", *patch.Email)
	}
	if patch.Status != nil {
		b = b.Set("status", string(*patch.Status))
	}
	if patch.ConfirmedAt != nil {
		b = b.Set("confirmed_at", *patch.ConfirmedAt)
	}
	if patch.IsSuperadmin != nil {
		b = b.Set("is_superadmin", *patch.IsSuperadmin)
	}
	b = b.Set("updated_at", sq.Expr("NOW()")).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Suffix("RETURNING " + accountColumns)

	q, args, err := b.ToSql()
	if err != nil {
		return nil, r.fail("build update", err, "id", id.String())
	}

	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, args...); err != nil {
		return nil, r.fail("update", err, "id", id.String())
	}
	return &a, nil
}

// Delete soft-deletes an account. Deleting a missing or already deleted
// account returns ErrNotFound.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE accounts
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return r.fail("delete", err, "id", id.String())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.fail("delete rows affected", err, "id", id.String())
	}
	if n == 0 {
		return oops.
			In("account_repository").
			Code("ACCOUNT_NOT_FOUND").
			With("operation", "delete", "id", id.String()).
			Wrap(ErrNotFound)
	}
	return nil
}

// fail maps a driver error onto one of the repository error kinds.
func (r *AccountRepo) fail(op string, err error, kv ...any) error {
	b := oops.In("account_repository").With("operation", op).With(kv...)

	switch {
	case database.IsNoRows(err):
		return b.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
	case database.IsUniqueViolation(err):
		metrics.RepositoryErrors.WithLabelValues("accounts", "already_exists").Inc()
		return b.Code("ACCOUNT_ALREADY_EXISTS").
			With("constraint", database.ConstraintName(err)).
			Wrap(ErrAlreadyExists)
	default:
		metrics.RepositoryErrors.WithLabelValues("accounts", "repository").Inc()
		r.logger.Errorw("account repository failure", append([]any{"operation", op, "err", err}, kv...)...)
		return b.Code("ACCOUNT_REPOSITORY_ERROR").
			With("sqlstate", database.SQLState(err), "cause", err.Error()).
			Wrap(ErrRepository)
	}
}
