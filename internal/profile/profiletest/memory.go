// Package profiletest provides an in-memory profile repository for tests.
package profiletest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shekshuev/athena-backend/internal/profile/entity"
	"github.com/shekshuev/athena-backend/internal/profile/repo"
)

// MemoryRepo mirrors repo.ProfileRepo: unique (account, key), hard deletes
// and the same error kinds.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []*entity.Record
	now  func() time.Time

	// AccountExists, when set, stands in for the accounts foreign key.
	AccountExists func(uuid.UUID) bool
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

func (m *MemoryRepo) find(id uuid.UUID) *entity.Record {
	for _, r := range m.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func clone(r *entity.Record) *entity.Record {
	cp := *r
	if r.Value != nil {
		v := *r.Value
		cp.Value = &v
	}
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, accountID uuid.UUID, in entity.NewRecord) (*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	if m.AccountExists != nil && !m.AccountExists(accountID) {
		return nil, repo.ErrAccountMissing
	}
	for _, r := range m.rows {
		if r.AccountID == accountID && r.Key == in.Key {
			return nil, repo.ErrAlreadyExists
		}
	}
	source := in.Source
	if source == "" {
		source = entity.SourceUser
	}
	now := m.now()
	rec := &entity.Record{
		ID:        uuid.New(),
		AccountID: accountID,
		Key:       in.Key,
		Value:     in.Value,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rows = append(m.rows, rec)
	return clone(rec), nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	r := m.find(id)
	if r == nil {
		return nil, repo.ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepo) List(_ context.Context, f entity.Filter) ([]*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return nil, err
	}
	out := []*entity.Record{}
	skipped := 0
	for _, r := range m.rows {
		if f.AccountID != nil && r.AccountID != *f.AccountID {
			continue
		}
		if f.Source != nil && r.Source != *f.Source {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if len(out) == f.Limit {
			break
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func (m *MemoryRepo) Update(_ context.Context, id uuid.UUID, patch entity.Patch) (*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.IsEmpty() {
		return nil, repo.ErrEmptyPatch
	}
	if err := m.fault(); err != nil {
		return nil, err
	}
	r := m.find(id)
	if r == nil {
		return nil, repo.ErrNotFound
	}
	if patch.Value != nil {
		v := *patch.Value
		r.Value = &v
	}
	if patch.Source != nil {
		r.Source = *patch.Source
	}
	r.UpdatedAt = m.now()
	return clone(r), nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(); err != nil {
		return err
	}
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}
