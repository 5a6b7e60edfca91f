package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/restaurant-api/internal/api/dto"
	"github.com/spec-kit/restaurant-api/internal/auth"
	"github.com/spec-kit/restaurant-api/internal/domain"
	"github.com/spec-kit/restaurant-api/internal/service"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
	"github.com/spec-kit/restaurant-api/pkg/validator"
)

// UsersHandler exposes session endpoints and admin user management.
type UsersHandler struct {
	sessions *service.SessionService
	users    *service.UserService
	cookies  *auth.CookieManager
}

// NewUsersHandler constructs handler.
func NewUsersHandler(sessions *service.SessionService, users *service.UserService, cookies *auth.CookieManager) *UsersHandler {
	return &UsersHandler{sessions: sessions, users: users, cookies: cookies}
}

// Register handles POST /api/users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validator.Validate(req); err != nil {
		return err
	}

	session, err := h.sessions.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}

	h.writeSession(c, session)
	return c.Status(http.StatusCreated).JSON(dto.NewUserResponse(session.User))
}

// Login handles POST /api/users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.writeSession(c, session)
	return c.JSON(dto.NewUserResponse(session.User))
}

// Refresh handles POST /api/users/refresh. The refresh cookie is rewritten
// only when the service rotated it.
func (h *UsersHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.sessions.Refresh(c.UserContext(), auth.RefreshToken(c))
	if err != nil {
		return err
	}

	h.writeSession(c, session)
	return c.JSON(dto.NewUserResponse(session.User))
}

// Logout handles POST /api/users/logout. It succeeds with or without a session.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.Logout(c.UserContext(), auth.AccessToken(c)); err != nil {
		return err
	}
	h.cookies.Clear(c)
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/users/me; Protect has already resolved the principal.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated(auth.ErrNoToken)
	}
	return c.JSON(dto.NewUserResponse(principal.User))
}

// WhoAmI handles GET /api/users/whoami behind OptionalAuth.
func (h *UsersHandler) WhoAmI(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return c.JSON(dto.WhoAmIResponse{Authenticated: false})
	}
	user := dto.NewUserResponse(principal.User)
	return c.JSON(dto.WhoAmIResponse{Authenticated: true, User: &user})
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	page, err := h.users.List(c.UserContext(), c.QueryInt("pageNumber", 1), c.Query("keyword"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserListResponse(page.Users, page.Page, page.Pages, page.Count))
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validator.Validate(req); err != nil {
		return err
	}

	user, err := h.users.Create(c.UserContext(), actorID(c), domain.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewUserResponse(user))
}

// Update handles PUT /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validator.Validate(req); err != nil {
		return err
	}

	user, err := h.users.Update(c.UserContext(), actorID(c), c.Params("id"), service.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Delete handles DELETE /api/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	if err := h.users.Delete(c.UserContext(), actorID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "User removed successfully"})
}

func (h *UsersHandler) writeSession(c *fiber.Ctx, session *service.Session) {
	h.cookies.SetAccess(c, session.Access)
	if session.Refresh != nil {
		h.cookies.SetRefresh(c, session.Refresh)
	}
}

// actorID is the id of the admin performing a management call.
func actorID(c *fiber.Ctx) string {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		return principal.User.ID
	}
	return ""
}
