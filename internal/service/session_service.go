package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/restaurant-api/internal/auth"
	"github.com/spec-kit/restaurant-api/internal/config"
	"github.com/spec-kit/restaurant-api/internal/domain"
	"github.com/spec-kit/restaurant-api/internal/events"
	"github.com/spec-kit/restaurant-api/internal/observability"
	"github.com/spec-kit/restaurant-api/internal/repository"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
	"github.com/spec-kit/restaurant-api/pkg/validator"
)

var errInactive = errors.New("account inactive")

// Session is the result of a successful login, registration or refresh.
// Refresh is nil when the caller's existing refresh token stays in place.
type Session struct {
	User    *domain.User
	Access  *domain.IssuedToken
	Refresh *domain.IssuedToken
}

// RegisterInput carries self-registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     domain.Role
}

// SessionService coordinates registration, login, refresh and logout.
type SessionService struct {
	users         repository.UserRepository
	tokens        *auth.TokenManager
	denylist      auth.Denylist
	events        events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	bcryptCost    int
	rotateWithin  time.Duration
	allowSelfRole bool
}

// SessionDependencies encapsulates collaborators of the session service.
type SessionDependencies struct {
	Users    repository.UserRepository
	Tokens   *auth.TokenManager
	Denylist auth.Denylist
	Events   events.Dispatcher
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewSessionService builds the service.
func NewSessionService(cfg config.AuthConfig, deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		users:         deps.Users,
		tokens:        deps.Tokens,
		denylist:      deps.Denylist,
		events:        deps.Events,
		logger:        logger,
		metrics:       deps.Metrics,
		bcryptCost:    cfg.BcryptCost,
		rotateWithin:  cfg.RotateRefreshWithin,
		allowSelfRole: cfg.AllowSelfAssignedRole,
	}
}

// Register creates an account and opens a session for it.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.Validate(newAccount{Name: in.Name, Email: in.Email, Phone: in.Phone, Password: in.Password}); err != nil {
		return nil, err
	}

	role := domain.RoleUser
	if s.allowSelfRole && in.Role != "" {
		if !in.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": in.Role})
		}
		role = in.Role
	} else if in.Role != "" && in.Role != domain.RoleUser {
		s.logger.Info("ignoring self-assigned role on registration", zap.String("role", string(in.Role)))
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		s.metrics.RecordAuth("register", observability.OutcomeFailure)
		return nil, apperrors.NewConflict("user already exists", nil)
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	user, err := s.users.Create(ctx, domain.NewUser{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Password: in.Password,
		Role:     role,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			s.metrics.RecordAuth("register", observability.OutcomeFailure)
			return nil, apperrors.NewConflict("user already exists", nil)
		}
		return nil, mapUserErr(err)
	}

	session, err := s.open(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuth("register", observability.OutcomeSuccess)
	publish(ctx, s.events, events.Event{
		Type:    events.EventUserRegistered,
		UserID:  user.ID,
		Payload: events.UserRegisteredPayload{Email: user.Email, Role: user.Role},
	})
	return session, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords produce the same error.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperrors.NewValidationError("please provide email and password", nil)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		auth.CompareDummy(s.bcryptCost, password)
		return nil, s.loginFailed(err)
	}
	if !s.users.VerifyPassword(user, password) {
		return nil, s.loginFailed(errors.New("password mismatch"))
	}
	if !user.Active {
		return nil, s.loginFailed(errInactive)
	}

	session, err := s.open(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuth("login", observability.OutcomeSuccess)
	publish(ctx, s.events, events.Event{Type: events.EventUserLoggedIn, UserID: user.ID})
	return session, nil
}

func (s *SessionService) loginFailed(cause error) error {
	s.logger.Debug("login failed", zap.Error(cause))
	s.metrics.RecordAuth("login", observability.OutcomeFailure)
	return apperrors.NewInvalidCredentials(cause)
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is re-issued only when less than rotateWithin remains.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, s.refreshFailed(auth.ErrNoToken)
	}

	claims, err := s.tokens.Verify(domain.TokenKindRefresh, refreshToken)
	if err != nil {
		return nil, s.refreshFailed(err)
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, s.refreshFailed(err)
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !user.Active {
		return nil, s.refreshFailed(errInactive)
	}

	access, err := s.tokens.Issue(domain.TokenKindAccess, user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	session := &Session{User: user, Access: access}

	expiresAt, err := s.tokens.PeekExpiry(refreshToken)
	if err != nil {
		return nil, s.refreshFailed(err)
	}
	if expiresAt.Sub(s.tokens.Now()) < s.rotateWithin {
		refresh, err := s.tokens.Issue(domain.TokenKindRefresh, user.ID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		session.Refresh = refresh
		publish(ctx, s.events, events.Event{
			Type:    events.EventRefreshRotated,
			UserID:  user.ID,
			Payload: events.RefreshRotatedPayload{OldExpiresAt: expiresAt, NewExpiresAt: refresh.ExpiresAt},
		})
	}

	s.metrics.RecordAuth("refresh", observability.OutcomeSuccess)
	return session, nil
}

func (s *SessionService) refreshFailed(cause error) error {
	s.logger.Debug("refresh failed", zap.Error(cause))
	s.metrics.RecordAuth("refresh", observability.OutcomeFailure)
	return apperrors.NewUnauthenticated(cause)
}

// Logout always succeeds. With a denylist configured, the presented access
// token is revoked until its natural expiry; otherwise it stays valid.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	s.metrics.RecordAuth("logout", observability.OutcomeSuccess)
	if accessToken == "" {
		return nil
	}
	claims, err := s.tokens.Verify(domain.TokenKindAccess, accessToken)
	if err != nil {
		return nil
	}
	publish(ctx, s.events, events.Event{Type: events.EventUserLoggedOut, UserID: claims.Subject})
	if s.denylist == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Warn("failed to revoke access token", zap.String("user_id", claims.Subject), zap.Error(err))
	}
	return nil
}

// CurrentPrincipal resolves the user behind an access token. Every failure
// is reported as Unauthenticated.
func (s *SessionService) CurrentPrincipal(ctx context.Context, accessToken string) (*domain.User, error) {
	if accessToken == "" {
		return nil, apperrors.NewUnauthenticated(auth.ErrNoToken)
	}
	claims, err := s.tokens.Verify(domain.TokenKindAccess, accessToken)
	if err != nil {
		return nil, apperrors.NewUnauthenticated(err)
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperrors.NewUnauthenticated(err)
	}
	if !user.Active {
		return nil, apperrors.NewUnauthenticated(errInactive)
	}
	return user, nil
}

func (s *SessionService) open(user *domain.User) (*Session, error) {
	access, err := s.tokens.Issue(domain.TokenKindAccess, user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refresh, err := s.tokens.Issue(domain.TokenKindRefresh, user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Access: access, Refresh: refresh}, nil
}
