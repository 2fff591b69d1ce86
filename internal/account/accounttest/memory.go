// Package accounttest provides an in-memory account repository for tests.
package accounttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/internal/account/repo"
)

// MemoryRepo mirrors the semantics of repo.AccountRepo: soft deletes, email
// uniqueness among live rows, and the same error kinds.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []*entity.Account
	now  func() time.Time

	// Fault, when set, makes every call fail with repo.ErrRepository.
	Fault error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{now: time.Now}
}

func (m *MemoryRepo) fault() error {
	if m.Fault == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", repo.ErrRepository, m.Fault)
}

func (m *MemoryRepo) live(pred func(*entity.Account) bool) *entity.Account {
	for _, a := range m.rows {
		if a.DeletedAt == nil && pred(a) {
			return a
		}
	}
	return nil
}

func clone(a *entity.Account) *entity.Account {
	cp := *a
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, email string, passwordHash *string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	if m.live(func(a *entity.Account) bool { return a.Email == email }) != nil {
		return nil, repo.ErrAlreadyExists
	}
	now := m.now()
	a := &entity.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       entity.StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.rows = append(m.rows, a)
	return clone(a), nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	a := m.live(func(a *entity.Account) bool { return a.ID == id })
	if a == nil {
		return nil, repo.ErrNotFound
	}
	return clone(a), nil
}

func (m *MemoryRepo) GetByEmail(_ context.Context, email string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	a := m.live(func(a *entity.Account) bool { return a.Email == email })
	if a == nil {
		return nil, repo.ErrNotFound
	}
	return clone(a), nil
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	out := []*entity.Account{}
	skipped := 0
	for _, a := range m.rows {
		if a.DeletedAt != nil {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, clone(a))
	}
	return out, nil
}

func (m *MemoryRepo) Update(_ context.Context, id uuid.UUID, patch entity.Patch) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.IsEmpty() {
		return nil, repo.ErrEmptyPatch
	}
	if err := m.fault(); err != nil {
		return nil, err
	}
	a := m.live(func(a *entity.Account) bool { return a.ID == id })
	if a == nil {
		return nil, repo.ErrNotFound
	}
	if patch.Email != nil {
		if other := m.live(func(o *entity.Account) bool { return o.Email == *patch.Email && o.ID != id }); other != nil {
			return nil, repo.ErrAlreadyExists
		}
		a.Email = *patch.Email
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.ConfirmedAt != nil {
		t := *patch.ConfirmedAt
		a.ConfirmedAt = &t
	}
	if patch.IsSuperadmin != nil {
		a.IsSuperadmin = *patch.IsSuperadmin
	}
	a.UpdatedAt = m.now()
	return clone(a), nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return err
	}
	a := m.live(func(a *entity.Account) bool { return a.ID == id })
	if a == nil {
		return repo.ErrNotFound
	}
	now := m.now()
	a.DeletedAt = &now
	a.UpdatedAt = now
	return nil
}

// SetStatus changes an account's status directly, bypassing the service layer.
func (m *MemoryRepo) SetStatus(id uuid.UUID, status entity.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.live(func(a *entity.Account) bool { return a.ID == id }); a != nil {
		a.Status = status
	}
}

// Seed inserts an account as-is, e.g. one without a password hash.
func (m *MemoryRepo) Seed(a entity.Account) *entity.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = entity.StatusCreated
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
		a.UpdatedAt = a.CreatedAt
	}
	row := a
	m.rows = append(m.rows, &row)
	return clone(&row)
}
