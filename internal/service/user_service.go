package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/restaurant-api/internal/domain"
	"github.com/spec-kit/restaurant-api/internal/events"
	"github.com/spec-kit/restaurant-api/internal/repository"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
	"github.com/spec-kit/restaurant-api/pkg/validator"
)

// UserPageSize is the fixed page size of the admin user listing.
const UserPageSize = 10

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users []*domain.User
	Page  int
	Pages int
	Count int
}

// newAccount and accountChange carry the account rules for callers that
// reach the services without going through the request DTOs.
type newAccount struct {
	Name     string `validate:"required,max=40"`
	Email    string `validate:"required,email,max=100"`
	Phone    string `validate:"omitempty,max=20"`
	Password string `validate:"required,min=6,max=72,maxbytes=72"`
}

type accountChange struct {
	Name     string `validate:"required,max=40"`
	Email    string `validate:"required,email,max=100"`
	Phone    string `validate:"omitempty,max=20"`
	Password string `validate:"omitempty,min=6,max=72,maxbytes=72"`
}

// UpdateUserInput holds optional changes; empty fields are left unchanged.
type UpdateUserInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     domain.Role
	Active   *bool
}

// UserService implements admin user management. It is the only path that
// assigns non-default roles.
type UserService struct {
	users  repository.UserRepository
	events events.Dispatcher
}

// NewUserService builds the service. dispatcher may be nil.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher) *UserService {
	return &UserService{users: users, events: dispatcher}
}

// List returns one page of users, optionally filtered by keyword.
func (s *UserService) List(ctx context.Context, page int, keyword string) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	users, count, err := s.users.List(ctx, domain.UserFilter{
		Keyword: keyword,
		Limit:   UserPageSize,
		Offset:  UserPageSize * (page - 1),
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &UserPage{
		Users: users,
		Page:  page,
		Pages: (count + UserPageSize - 1) / UserPageSize,
		Count: count,
	}, nil
}

// Get loads a single user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

// Create adds a user with an explicit role on behalf of actorID.
func (s *UserService) Create(ctx context.Context, actorID string, in domain.NewUser) (*domain.User, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.Validate(newAccount{Name: in.Name, Email: in.Email, Phone: in.Phone, Password: in.Password}); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if !in.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": in.Role})
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.NewConflict("user already exists", nil)
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	user, err := s.users.Create(ctx, in)
	if err != nil {
		return nil, mapUserErr(err)
	}
	publish(ctx, s.events, events.Event{
		Type:    events.EventUserRegistered,
		UserID:  user.ID,
		ActorID: actorID,
		Payload: events.UserRegisteredPayload{Email: user.Email, Role: user.Role},
	})
	return user, nil
}

// Update applies the non-empty fields of in to the user on behalf of actorID.
func (s *UserService) Update(ctx context.Context, actorID, id string, in UpdateUserInput) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = name
	}
	if email := repository.NormalizeEmail(in.Email); email != "" && email != user.Email {
		if _, err := s.users.FindByEmail(ctx, email); err == nil {
			return nil, apperrors.NewConflict("email already exists", nil)
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		user.Email = email
	}
	if in.Phone != "" {
		user.Phone = strings.TrimSpace(in.Phone)
	}
	oldRole := user.Role
	if in.Role != "" {
		if !in.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": in.Role})
		}
		user.Role = in.Role
	}
	if in.Active != nil {
		user.Active = *in.Active
	}
	if err := validator.Validate(accountChange{Name: user.Name, Email: user.Email, Phone: user.Phone, Password: in.Password}); err != nil {
		return nil, err
	}

	if err := s.users.Update(ctx, user, in.Password); err != nil {
		return nil, mapUserErr(err)
	}

	payload := events.UserUpdatedPayload{PasswordChanged: in.Password != "", Active: user.Active}
	if oldRole != user.Role {
		payload.OldRole, payload.NewRole = oldRole, user.Role
	}
	publish(ctx, s.events, events.Event{Type: events.EventUserUpdated, UserID: user.ID, ActorID: actorID, Payload: payload})
	return user, nil
}

// Delete removes a user on behalf of actorID.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return mapUserErr(err)
	}
	publish(ctx, s.events, events.Event{Type: events.EventUserDeleted, UserID: id, ActorID: actorID})
	return nil
}

func mapUserErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NewNotFound("user", nil)
	case errors.Is(err, domain.ErrEmailTaken):
		return apperrors.NewConflict("email already exists", nil)
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return apperrors.NewValidationError("password must be at most 72 bytes", map[string]any{"password": "must be at most 72 bytes"})
	default:
		return apperrors.NewInternalError(err)
	}
}
