// Package profile manages the key-value profile records attached to accounts.
package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account"
	accountentity "github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/internal/profile/entity"
	profilerepo "github.com/shekshuev/athena-backend/internal/profile/repo"
	"github.com/shekshuev/athena-backend/pkg/validator"
)

// Repository is the storage contract of the service.
type Repository interface {
	Create(ctx context.Context, accountID uuid.UUID, in entity.NewRecord) (*entity.Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Record, error)
	List(ctx context.Context, f entity.Filter) ([]*entity.Record, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.Patch) (*entity.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ Repository = (*profilerepo.ProfileRepo)(nil)

// AccountLookup resolves live accounts. *account.Service satisfies it.
type AccountLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*accountentity.Account, error)
}

type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindAlreadyExists ErrorKind = "already_exists"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindDatabase      ErrorKind = "database"
)

type ServiceError struct {
	Kind    ErrorKind
	Message string
	Fields  validator.ValidationErrors
}

func (e *ServiceError) Error() string { return e.Message }

func IsKind(err error, kind ErrorKind) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == kind
}

// ListQuery pages through one account's records, optionally by source.
type ListQuery struct {
	Source *entity.Source `json:"source" validate:"omitempty,profile_source"`
	Limit  int            `json:"limit" validate:"min=1,max=500"`
	Offset int            `json:"offset" validate:"min=0"`
}

const DefaultListLimit = 10

type Service struct {
	repo     Repository
	accounts AccountLookup
	logger   *zap.SugaredLogger
}

func NewService(r Repository, accounts AccountLookup, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, accounts: accounts, logger: logger}
}

// Create stores a new record for a live account. Each key may appear once per account.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in entity.NewRecord) (*entity.Record, error) {
	if err := validator.ValidateStruct(in); err != nil {
		return nil, invalidInput(err)
	}
	if err := s.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}
	rec, err := s.repo.Create(ctx, accountID, in)
	if err != nil {
		return nil, s.translate(err, "creating profile record")
	}
	s.logger.Infow("profile record created", "id", rec.ID, "account_id", accountID, "key", rec.Key)
	return rec, nil
}

// Get returns a record that belongs to accountID.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*entity.Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "fetching profile record")
	}
	if rec.AccountID != accountID {
		return nil, &ServiceError{Kind: KindNotFound, Message: "profile record not found"}
	}
	return rec, nil
}

// List returns a page of the account's records, oldest first.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, q ListQuery) ([]*entity.Record, error) {
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}
	if err := validator.ValidateStruct(q); err != nil {
		return nil, invalidInput(err)
	}
	out, err := s.repo.List(ctx, entity.Filter{
		AccountID: &accountID,
		Source:    q.Source,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, s.translate(err, "fetching profile records")
	}
	return out, nil
}

// Update changes value and/or source of a record owned by accountID.
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, patch entity.Patch) (*entity.Record, error) {
	if err := validator.ValidateStruct(patch); err != nil {
		return nil, invalidInput(err)
	}
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return nil, err
	}
	rec, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, s.translate(err, "updating profile record")
	}
	s.logger.Infow("profile record updated", "id", id, "account_id", accountID)
	return rec, nil
}

// Delete removes a record owned by accountID.
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.translate(err, "deleting profile record")
	}
	s.logger.Infow("profile record deleted", "id", id, "account_id", accountID)
	return nil
}

func (s *Service) requireAccount(ctx context.Context, id uuid.UUID) error {
	if _, err := s.accounts.Get(ctx, id); err != nil {
		if account.IsKind(err, account.KindNotFound) {
			return &ServiceError{Kind: KindNotFound, Message: "account not found"}
		}
		s.logger.Errorw("account lookup failed", "account_id", id, "err", err)
		return &ServiceError{Kind: KindDatabase, Message: "database error while fetching account"}
	}
	return nil
}

func (s *Service) translate(err error, action string) *ServiceError {
	switch {
	case errors.Is(err, profilerepo.ErrNotFound):
		return &ServiceError{Kind: KindNotFound, Message: "profile record not found"}
	case errors.Is(err, profilerepo.ErrAlreadyExists):
		return &ServiceError{Kind: KindAlreadyExists, Message: "profile record with this key already exists"}
	case errors.Is(err, profilerepo.ErrAccountMissing):
		// account removed between the lookup and the insert
		return &ServiceError{Kind: KindNotFound, Message: "account not found"}
	case errors.Is(err, profilerepo.ErrEmptyPatch):
		return &ServiceError{Kind: KindInvalidInput, Message: "no fields to update"}
	default:
		s.logger.Errorw("profile storage failure", "action", action, "err", err)
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
