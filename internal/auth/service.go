package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/pkg/metrics"
	"github.com/shekshuev/athena-backend/pkg/security"
)

// ErrInvalidCredentials is the single outcome of every failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Config holds token secrets, lifetimes and the signing algorithm.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Algorithm     string
}

// ConfigFromEnv reads ACCESS_TOKEN_*, REFRESH_TOKEN_* and HASH_ALGORITHM.
// Lifetimes are given in seconds.
func ConfigFromEnv() Config {
	return Config{
		AccessSecret:  envOr("ACCESS_TOKEN_SECRET", "super_secret_access_token_key"),
		RefreshSecret: envOr("REFRESH_TOKEN_SECRET", "super_secret_refresh_token_key"),
		AccessTTL:     time.Duration(envSeconds("ACCESS_TOKEN_EXPIRES", 3600)) * time.Second,
		RefreshTTL:    time.Duration(envSeconds("REFRESH_TOKEN_EXPIRES", 86400)) * time.Second,
		Algorithm:     envOr("HASH_ALGORITHM", "HS256"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envSeconds(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Validate rejects configurations that would weaken token separation.
func (c Config) Validate() error {
	switch {
	case c.AccessSecret == "" || c.RefreshSecret == "":
		return errors.New("auth: token secrets must not be empty")
	case c.AccessSecret == c.RefreshSecret:
		return errors.New("auth: access and refresh secrets must differ")
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return errors.New("auth: token lifetimes must be positive")
	}
	return nil
}

// TokenPair is the login and refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AccountFinder is the read side of the account store used for authentication.
type AccountFinder interface {
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)
}

// Service authenticates credentials and rotates token pairs.
type Service struct {
	cfg      Config
	accounts AccountFinder
	hasher   security.PasswordHasher
	tokens   *TokenIssuer
	logger   *zap.SugaredLogger

	// verified against when the account does not exist
	dummyHash string
}

func NewService(cfg Config, accounts AccountFinder, hasher security.PasswordHasher, tokens *TokenIssuer, logger *zap.SugaredLogger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if accounts == nil || tokens == nil {
		return nil, errors.New("auth: account finder and token issuer are required")
	}
	if hasher == nil {
		hasher = security.HasherFromEnv()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, err := hasher.Hash("athena-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy hash: %w", err)
	}
	logger.Infow("auth service configured",
		"alg", tokens.Algorithm(),
		"access_ttl", cfg.AccessTTL,
		"refresh_ttl", cfg.RefreshTTL,
	)
	return &Service{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Login verifies email and password and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = entity.NormalizeEmail(email)

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		s.hasher.Verify(password, s.dummyHash)
		return nil, s.loginFailed(email, "lookup failed", err)
	}
	if !a.HasPassword() {
		s.hasher.Verify(password, s.dummyHash)
		return nil, s.loginFailed(email, "account has no password", nil)
	}
	if !s.hasher.Verify(password, *a.PasswordHash) {
		return nil, s.loginFailed(email, "password mismatch", nil)
	}
	if a.Status == entity.StatusBlocked {
		return nil, s.loginFailed(email, "account blocked", nil)
	}

	pair, err := s.issuePair(a)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Infow("login succeeded", "id", a.ID)
	return pair, nil
}

func (s *Service) loginFailed(email, reason string, cause error) error {
	metrics.AuthAttempts.WithLabelValues(metrics.ResultFailure).Inc()
	if cause != nil {
		s.logger.Infow("login failed", "email", email, "reason", reason, "err", cause)
	} else {
		s.logger.Infow("login failed", "email", email, "reason", reason)
	}
	return ErrInvalidCredentials
}

// Refresh exchanges a valid refresh token for a new pair built from the
// current state of the account.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Decode(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return nil, s.refreshFailed("decode failed")
	}
	if claims.Type != TokenRefresh {
		return nil, s.refreshFailed("wrong token type")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, s.refreshFailed("malformed subject")
	}
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		s.logger.Debugw("refresh account lookup failed", "id", id, "err", err)
		return nil, s.refreshFailed("account unavailable")
	}
	if a.Status == entity.StatusBlocked {
		return nil, s.refreshFailed("account blocked")
	}

	pair, err := s.issuePair(a)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	return pair, nil
}

func (s *Service) refreshFailed(reason string) error {
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailure).Inc()
	s.logger.Debugw("refresh rejected", "reason", reason)
	return ErrTokenInvalid
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.Decode(accessToken, s.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) issuePair(a *entity.Account) (*TokenPair, error) {
	base := Claims{Email: a.Email, Status: string(a.Status)}
	base.Subject = a.ID.String()

	access := base
	access.Type = TokenAccess
	at, err := s.tokens.Issue(access, s.cfg.AccessTTL, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh := base
	refresh.Type = TokenRefresh
	rt, err := s.tokens.Issue(refresh, s.cfg.RefreshTTL, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}
