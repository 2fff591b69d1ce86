package account_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/shekshuev/athena-backend/internal/account"
	"github.com/shekshuev/athena-backend/internal/account/accounttest"
	"github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/internal/account/repo"
	"github.com/shekshuev/athena-backend/internal/auth"
	"github.com/shekshuev/athena-backend/pkg/security"
)

func newService(t *testing.T) (*account.Service, *accounttest.MemoryRepo) {
	t.Helper()
	store := accounttest.NewMemoryRepo()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	return account.NewService(store, hasher, zaptest.NewLogger(t).Sugar()), store
}

func register(t *testing.T, svc *account.Service, email, password string) *entity.Account {
	t.Helper()
	a, err := svc.Register(context.Background(), account.RegisterInput{
		Email:                email,
		Password:             password,
		PasswordConfirmation: password,
	})
	require.NoError(t, err)
	return a
}

func requireKind(t *testing.T, err error, kind account.ErrorKind) *account.ServiceError {
	t.Helper()
	var se *account.ServiceError
	require.True(t, errors.As(err, &se), "expected *ServiceError, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind)
	return se
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes the password", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "a@x.com", "secret1")

		require.NotNil(t, a.PasswordHash)
		assert.NotEqual(t, "secret1", *a.PasswordHash)
		assert.True(t, security.NewBcryptHasher(0).Verify("secret1", *a.PasswordHash))
		assert.Equal(t, entity.StatusCreated, a.Status)
	})

	t.Run("normalizes email", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "  Mixed@X.com ", "secret1")
		assert.Equal(t, "mixed@x.com", a.Email)
	})

	t.Run("password mismatch", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Register(ctx, account.RegisterInput{
			Email: "a@x.com", Password: "secret1", PasswordConfirmation: "secret2",
		})
		assert.ErrorIs(t, err, account.ErrPasswordMismatch)
	})

	t.Run("duplicate email reports already exists", func(t *testing.T) {
		svc, _ := newService(t)
		register(t, svc, "a@x.com", "secret1")

		_, err := svc.Register(ctx, account.RegisterInput{
			Email: "a@x.com", Password: "secret2", PasswordConfirmation: "secret2",
		})
		se := requireKind(t, err, account.KindAlreadyExists)
		assert.Contains(t, se.Error(), "already exists")
		assert.NotErrorIs(t, err, repo.ErrAlreadyExists)
	})

	t.Run("email can be reused after deletion", func(t *testing.T) {
		svc, _ := newService(t)
		first := register(t, svc, "a@x.com", "secret1")
		require.NoError(t, svc.Delete(ctx, first.ID))

		second := register(t, svc, "a@x.com", "secret2")
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("malformed email is invalid input", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Register(ctx, account.RegisterInput{
			Email: "not-an-email", Password: "secret1", PasswordConfirmation: "secret1",
		})
		se := requireKind(t, err, account.KindInvalidInput)
		require.Len(t, se.Fields, 1)
		assert.Equal(t, "email", se.Fields[0].Field)
	})

	t.Run("empty password is invalid input", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Register(ctx, account.RegisterInput{Email: "a@x.com"})
		requireKind(t, err, account.KindInvalidInput)
	})

	t.Run("password limit counts bytes", func(t *testing.T) {
		svc, _ := newService(t)
		pw := strings.Repeat("п", 40)
		_, err := svc.Register(ctx, account.RegisterInput{
			Email: "a@x.com", Password: pw, PasswordConfirmation: pw,
		})
		se := requireKind(t, err, account.KindInvalidInput)
		require.Len(t, se.Fields, 1)
		assert.Equal(t, "password", se.Fields[0].Field)
		assert.Equal(t, "bcrypt_max", se.Fields[0].Tag)

		fits := strings.Repeat("п", 36)
		a := register(t, svc, "a@x.com", fits)
		assert.True(t, security.NewBcryptHasher(0).Verify(fits, *a.PasswordHash))
	})

	t.Run("default hasher follows BCRYPT_COST", func(t *testing.T) {
		t.Setenv("BCRYPT_COST", "5")
		svc := account.NewService(accounttest.NewMemoryRepo(), nil, nil)
		a := register(t, svc, "a@x.com", "secret1")

		cost, err := bcrypt.Cost([]byte(*a.PasswordHash))
		require.NoError(t, err)
		assert.Equal(t, security.HasherFromEnv().Cost, cost)
	})

	t.Run("storage fault reports database error", func(t *testing.T) {
		svc, store := newService(t)
		store.Fault = errors.New("connection refused")

		_, err := svc.Register(ctx, account.RegisterInput{
			Email: "a@x.com", Password: "secret1", PasswordConfirmation: "secret1",
		})
		se := requireKind(t, err, account.KindDatabase)
		assert.Equal(t, "database error while creating account", se.Message)
		assert.NotErrorIs(t, err, repo.ErrRepository)
	})
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "a@x.com", "secret1")

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Email, got.Email)

	byEmail, err := svc.GetByEmail(ctx, "A@X.COM")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	require.NoError(t, svc.Delete(ctx, a.ID))

	_, err = svc.Get(ctx, a.ID)
	se := requireKind(t, err, account.KindNotFound)
	assert.Equal(t, "account not found", se.Message)

	err = svc.Delete(ctx, a.ID)
	requireKind(t, err, account.KindNotFound)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, account.IsKind(err, account.KindNotFound))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		register(t, svc, e, "secret1")
	}

	t.Run("default limit", func(t *testing.T) {
		out, err := svc.List(ctx, account.ListQuery{})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "a@x.com", out[0].Email)
	})

	t.Run("offset and limit", func(t *testing.T) {
		out, err := svc.List(ctx, account.ListQuery{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "b@x.com", out[0].Email)
	})

	t.Run("rejects out of range page", func(t *testing.T) {
		_, err := svc.List(ctx, account.ListQuery{Limit: 501})
		requireKind(t, err, account.KindInvalidInput)
		_, err = svc.List(ctx, account.ListQuery{Limit: 5, Offset: -1})
		requireKind(t, err, account.KindInvalidInput)
	})

	t.Run("storage fault", func(t *testing.T) {
		svc, store := newService(t)
		store.Fault = errors.New("timeout")
		_, err := svc.List(ctx, account.ListQuery{})
		se := requireKind(t, err, account.KindDatabase)
		assert.Equal(t, "database error while fetching accounts", se.Message)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies patch", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "a@x.com", "secret1")
		email := "New@X.com"
		status := entity.StatusActive
		confirmed := time.Now().UTC()

		got, err := svc.Update(ctx, a.ID, entity.Patch{Email: &email, Status: &status, ConfirmedAt: &confirmed})
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", got.Email)
		assert.Equal(t, entity.StatusActive, got.Status)
		require.NotNil(t, got.ConfirmedAt)
		assert.False(t, got.UpdatedAt.Before(a.UpdatedAt))
	})

	t.Run("empty patch is invalid input", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "a@x.com", "secret1")
		_, err := svc.Update(ctx, a.ID, entity.Patch{})
		se := requireKind(t, err, account.KindInvalidInput)
		assert.Equal(t, "no fields to update", se.Message)
	})

	t.Run("status must be active or blocked", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "a@x.com", "secret1")
		status := entity.StatusCreated
		_, err := svc.Update(ctx, a.ID, entity.Patch{Status: &status})
		requireKind(t, err, account.KindInvalidInput)
	})

	t.Run("email collision", func(t *testing.T) {
		svc, _ := newService(t)
		register(t, svc, "a@x.com", "secret1")
		b := register(t, svc, "b@x.com", "secret1")
		email := "a@x.com"
		_, err := svc.Update(ctx, b.ID, entity.Patch{Email: &email})
		requireKind(t, err, account.KindAlreadyExists)
	})

	t.Run("deleted account is not found", func(t *testing.T) {
		svc, _ := newService(t)
		a := register(t, svc, "a@x.com", "secret1")
		require.NoError(t, svc.Delete(ctx, a.ID))
		status := entity.StatusBlocked
		_, err := svc.Update(ctx, a.ID, entity.Patch{Status: &status})
		requireKind(t, err, account.KindNotFound)
	})
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	alice := register(t, svc, "alice@x.com", "secret1")
	bob := register(t, svc, "bob@x.com", "secret1")
	root := store.Seed(entity.Account{Email: "root@x.com", IsSuperadmin: true, Status: entity.StatusActive})

	claims := func(id uuid.UUID) *auth.Claims {
		c := &auth.Claims{Type: auth.TokenAccess}
		c.Subject = id.String()
		return c
	}

	t.Run("self", func(t *testing.T) {
		assert.NoError(t, svc.Authorize(ctx, claims(alice.ID), alice.ID, false))
	})

	t.Run("other account is forbidden", func(t *testing.T) {
		err := svc.Authorize(ctx, claims(alice.ID), bob.ID, false)
		requireKind(t, err, account.KindForbidden)
	})

	t.Run("privileged change on self is forbidden", func(t *testing.T) {
		err := svc.Authorize(ctx, claims(alice.ID), alice.ID, true)
		requireKind(t, err, account.KindForbidden)
	})

	t.Run("listing needs a superadmin", func(t *testing.T) {
		requireKind(t, svc.Authorize(ctx, claims(alice.ID), uuid.Nil, true), account.KindForbidden)
		assert.NoError(t, svc.Authorize(ctx, claims(root.ID), uuid.Nil, true))
	})

	t.Run("superadmin may act on anyone", func(t *testing.T) {
		assert.NoError(t, svc.Authorize(ctx, claims(root.ID), bob.ID, true))
	})

	t.Run("missing or unknown caller", func(t *testing.T) {
		requireKind(t, svc.Authorize(ctx, nil, alice.ID, false), account.KindUnauthorized)
		bad := &auth.Claims{}
		bad.Subject = "not-a-uuid"
		requireKind(t, svc.Authorize(ctx, bad, alice.ID, false), account.KindUnauthorized)
		requireKind(t, svc.Authorize(ctx, claims(uuid.New()), alice.ID, false), account.KindUnauthorized)
	})

	t.Run("deleted superadmin loses access", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, root.ID))
		requireKind(t, svc.Authorize(ctx, claims(root.ID), bob.ID, false), account.KindUnauthorized)
	})
}
