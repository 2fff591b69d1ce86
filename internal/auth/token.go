package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/pkg/utilities"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// ErrTokenInvalid covers every decode failure: bad signature, wrong
// algorithm, expiry, malformed input, wrong type.
var ErrTokenInvalid = errors.New("token is invalid")

// ErrUnsupportedAlgorithm is returned for non-HMAC signing algorithms.
var ErrUnsupportedAlgorithm = errors.New("unsupported token algorithm")

// Claims carried by both token types. Subject holds the account id.
type Claims struct {
	Email  string    `json:"email"`
	Status string    `json:"status"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HMAC JWTs. It holds no secrets; callers
// pass the secret matching the token type on every call.
type TokenIssuer struct {
	method *jwt.SigningMethodHMAC
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewTokenIssuer accepts HS256, HS384 or HS512. A nil clock means time.Now.
func NewTokenIssuer(alg string, clock func() time.Time, logger *zap.SugaredLogger) (*TokenIssuer, error) {
	var method *jwt.SigningMethodHMAC
	switch alg {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TokenIssuer{method: method, now: clock, logger: logger}, nil
}

// Algorithm returns the configured signing algorithm name.
func (t *TokenIssuer) Algorithm() string { return t.method.Alg() }

// Issue signs claims with exp = now + ttl. IssuedAt and ID are overwritten.
func (t *TokenIssuer) Issue(claims Claims, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	now := t.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = utilities.NewKSUID()

	tok := jwt.NewWithClaims(t.method, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies algorithm, signature and expiry. The cause of a failure is
// only logged at debug level; callers always get ErrTokenInvalid.
func (t *TokenIssuer) Decode(token, secret string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		t.logger.Debugw("token rejected", "err", err)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
