package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/restaurant-api/internal/config"
	"github.com/spec-kit/restaurant-api/internal/domain"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and kind mismatches.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned once now is past the token's expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims describes the JWT payload shared by both token kinds.
type Claims struct {
	Kind domain.TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type keyset struct {
	secret []byte
	ttl    time.Duration
}

// TokenManager issues and verifies access and refresh tokens. Each kind has
// its own secret and lifetime.
type TokenManager struct {
	keys map[domain.TokenKind]keyset
	now  func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager builds a manager from the auth configuration.
func NewTokenManager(cfg config.AuthConfig, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{
		keys: map[domain.TokenKind]keyset{
			domain.TokenKindAccess:  {secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
			domain.TokenKindRefresh: {secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Lifetime returns the configured lifetime for kind.
func (tm *TokenManager) Lifetime(kind domain.TokenKind) time.Duration {
	return tm.keys[kind].ttl
}

// Issue builds and signs a token of the given kind for subjectID.
func (tm *TokenManager) Issue(kind domain.TokenKind, subjectID string) (*domain.IssuedToken, error) {
	keys, ok := tm.keys[kind]
	if !ok {
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}

	issuedAt := tm.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(keys.ttl)
	id := uuid.NewString()

	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	value, err := token.SignedString(keys.secret)
	if err != nil {
		return nil, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return &domain.IssuedToken{
		Value:     value,
		ID:        id,
		Kind:      kind,
		SubjectID: subjectID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, expiry and kind, and returns the claims.
func (tm *TokenManager) Verify(kind domain.TokenKind, tokenStr string) (*Claims, error) {
	keys, ok := tm.keys[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrTokenInvalid, kind)
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return keys.secret, nil
	},
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrTokenInvalid)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, kind, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// PeekExpiry reads the exp claim without checking the signature. The result
// must only inform scheduling decisions; call Verify before trusting a token.
func (tm *TokenManager) PeekExpiry(tokenStr string) (time.Time, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}
	return claims.ExpiresAt.Time, nil
}

// Now returns the manager's current time.
func (tm *TokenManager) Now() time.Time {
	return tm.now()
}
