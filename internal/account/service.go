package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account/entity"
	accountrepo "github.com/shekshuev/athena-backend/internal/account/repo"
	"github.com/shekshuev/athena-backend/internal/auth"
	"github.com/shekshuev/athena-backend/pkg/security"
	"github.com/shekshuev/athena-backend/pkg/validator"
)

// Repository is the storage contract the service depends on.
// *repo.AccountRepo satisfies it.
type Repository interface {
	Create(ctx context.Context, email string, passwordHash *string) (*entity.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Account, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.Patch) (*entity.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ Repository = (*accountrepo.AccountRepo)(nil)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = errors.New("passwords do not match")

// ErrorKind classifies a ServiceError for callers mapping to external responses.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindAlreadyExists ErrorKind = "already_exists"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindDatabase      ErrorKind = "database"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindForbidden     ErrorKind = "forbidden"
)

// ServiceError is the single error type the account service returns for
// storage and validation failures. It deliberately does not unwrap to the
// repository error kinds.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Fields  validator.ValidationErrors
}

func (e *ServiceError) Error() string { return e.Message }

// IsKind reports whether err is a *ServiceError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == kind
}

// RegisterInput is the transient credentials payload for registration.
type RegisterInput struct {
	Email                string `json:"email" validate:"required,email,max=254"`
	Password             string `json:"password" validate:"required,bcrypt_max"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ListQuery is an offset/limit page request.
type ListQuery struct {
	Limit  int `json:"limit" validate:"min=1,max=500"`
	Offset int `json:"offset" validate:"min=0"`
}

// DefaultListLimit is used when ListQuery.Limit is zero.
const DefaultListLimit = 20

// Service orchestrates registration and the account lifecycle.
type Service struct {
	repo   Repository
	hasher security.PasswordHasher
	logger *zap.SugaredLogger
}

func NewService(r Repository, hasher security.PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = security.HasherFromEnv()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, hasher: hasher, logger: logger}
}

// Register creates an account with a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Account, error) {
	in.Email = entity.NormalizeEmail(in.Email)
	s.logger.Infow("registration started", "email", in.Email)

	if err := validator.ValidateStruct(in); err != nil {
		return nil, invalidInput(err)
	}
	if in.Password != in.PasswordConfirmation {
		s.logger.Warnw("registration aborted: password mismatch", "email", in.Email)
		return nil, ErrPasswordMismatch
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Errorw("password hashing failed", "email", in.Email, "err", err)
		return nil, &ServiceError{Kind: KindInvalidInput, Message: "password cannot be hashed"}
	}

	a, err := s.repo.Create(ctx, in.Email, &hash)
	if err != nil {
		if errors.Is(err, accountrepo.ErrAlreadyExists) {
			s.logger.Warnw("duplicate email on registration", "email", in.Email)
		}
		return nil, s.translate(err, "creating account")
	}
	s.logger.Infow("account registered", "id", a.ID, "email", a.Email)
	return a, nil
}

// Get returns a live account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "fetching account")
	}
	return a, nil
}

// GetByEmail returns a live account by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	a, err := s.repo.GetByEmail(ctx, entity.NormalizeEmail(email))
	if err != nil {
		return nil, s.translate(err, "fetching account")
	}
	return a, nil
}

// List returns a page of live accounts, oldest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*entity.Account, error) {
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}
	if err := validator.ValidateStruct(q); err != nil {
		return nil, invalidInput(err)
	}
	out, err := s.repo.List(ctx, q.Limit, q.Offset)
	if err != nil {
		return nil, s.translate(err, "fetching accounts")
	}
	s.logger.Debugw("accounts listed", "count", len(out), "limit", q.Limit, "offset", q.Offset)
	return out, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch entity.Patch) (*entity.Account, error) {
	if patch.Email != nil {
		e := entity.NormalizeEmail(*patch.Email)
		patch.Email = &e
	}
	if err := validator.ValidateStruct(patch); err != nil {
		return nil, invalidInput(err)
	}
	a, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, s.translate(err, "updating account")
	}
	s.logger.Infow("account updated", "id", id)
	return a, nil
}

// Delete soft-deletes an account.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.translate(err, "deleting account")
	}
	s.logger.Infow("account deleted", "id", id)
	return nil
}

// Authorize checks that the holder of claims may act on the target account.
// Callers may act on their own account unless privileged is set; superadmins
// may act on any account. A uuid.Nil target always requires a superadmin.
func (s *Service) Authorize(ctx context.Context, claims *auth.Claims, target uuid.UUID, privileged bool) error {
	if claims == nil {
		return &ServiceError{Kind: KindUnauthorized, Message: "unauthorized"}
	}
	caller, err := uuid.Parse(claims.Subject)
	if err != nil {
		return &ServiceError{Kind: KindUnauthorized, Message: "unauthorized"}
	}
	if caller == target && target != uuid.Nil && !privileged {
		return nil
	}

	a, err := s.repo.GetByID(ctx, caller)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return &ServiceError{Kind: KindUnauthorized, Message: "unauthorized"}
		}
		return s.translate(err, "authorizing request")
	}
	if !a.IsSuperadmin {
		s.logger.Warnw("forbidden account access", "caller", caller, "target", target, "privileged", privileged)
		return &ServiceError{Kind: KindForbidden, Message: "forbidden"}
	}
	return nil
}

func (s *Service) translate(err error, action string) *ServiceError {
	switch {
	case errors.Is(err, accountrepo.ErrNotFound):
		return &ServiceError{Kind: KindNotFound, Message: "account not found"}
	case errors.Is(err, accountrepo.ErrAlreadyExists):
		return &ServiceError{Kind: KindAlreadyExists, Message: "account with this email already exists"}
	case errors.Is(err, accountrepo.ErrEmptyPatch):
		return &ServiceError{Kind: KindInvalidInput, Message: "no fields to update"}
	default:
		s.logger.Errorw("account storage failure", "action", action, "err", err)
		return &ServiceError{Kind: KindDatabase, Message: "database error while " + action}
	}
}

func invalidInput(err error) *ServiceError {
	se := &ServiceError{Kind: KindInvalidInput, Message: "invalid input: " + err.Error()}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		se.Fields = ve
	}
	return se
}
