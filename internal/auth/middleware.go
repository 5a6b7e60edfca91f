package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/restaurant-api/internal/domain"
	"github.com/spec-kit/restaurant-api/internal/observability"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
)

const principalKey = "auth_principal"

// ErrNoToken is the internal cause when the access cookie is absent.
var ErrNoToken = errors.New("no access token")

// ErrTokenRevoked is the internal cause for denylisted tokens.
var ErrTokenRevoked = errors.New("token revoked")

// ErrPrincipalInactive is the internal cause for deactivated accounts.
var ErrPrincipalInactive = errors.New("principal inactive")

// Principal represents the authenticated caller.
type Principal struct {
	User    *domain.User
	TokenID string
}

// PrincipalFinder resolves a subject id to a user record. It returns
// domain.ErrUserNotFound when the user no longer exists.
type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Gate resolves the caller from the access token cookie and enforces
// identity and role requirements. It never writes to the user store.
type Gate struct {
	tokens   *TokenManager
	users    PrincipalFinder
	denylist Denylist
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithDenylist makes the gate reject revoked token ids.
func WithDenylist(d Denylist) GateOption {
	return func(g *Gate) {
		g.denylist = d
	}
}

// WithMetrics records gate decisions.
func WithMetrics(m *observability.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGate constructs the authorization gate.
func NewGate(tokens *TokenManager, users PrincipalFinder, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{tokens: tokens, users: users, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve verifies an access token and loads its principal. Returned errors
// are fine-grained; callers collapse them before responding.
func (g *Gate) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	claims, err := g.tokens.Verify(domain.TokenKindAccess, token)
	if err != nil {
		return nil, err
	}
	if g.denylist != nil {
		revoked, err := g.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	user, err := g.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrPrincipalInactive
	}
	return &Principal{User: user, TokenID: claims.ID}, nil
}

// Protect requires a valid access token. Any failure short-circuits with 401
// and the downstream handler never runs.
func (g *Gate) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, err := g.Resolve(c.UserContext(), AccessToken(c))
		if err != nil {
			g.logFailure(c, "authentication failed", err)
			g.metrics.RecordAuth("gate", observability.OutcomeFailure)
			return apperrors.NewUnauthenticated(err)
		}
		g.metrics.RecordAuth("gate", observability.OutcomeSuccess)
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// OptionalAuth attaches the principal when the access token resolves and
// otherwise proceeds anonymously.
func (g *Gate) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := AccessToken(c)
		if token == "" {
			return c.Next()
		}
		principal, err := g.Resolve(c.UserContext(), token)
		if err != nil {
			g.logFailure(c, "optional auth failed", err)
			return c.Next()
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

func (g *Gate) logFailure(c *fiber.Ctx, msg string, err error) {
	fields := []zap.Field{zap.String("path", c.Path()), zap.Error(err)}
	if isTokenFailure(err) {
		g.logger.Debug(msg, fields...)
		return
	}
	g.logger.Warn(msg, fields...)
}

func isTokenFailure(err error) bool {
	return errors.Is(err, ErrNoToken) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrPrincipalInactive) ||
		errors.Is(err, domain.ErrUserNotFound)
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil && principal.User != nil
}
