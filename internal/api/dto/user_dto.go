package dto

import (
	"time"

	"github.com/spec-kit/restaurant-api/internal/domain"
)

// RegisterRequest payload for self-registration. Role is honoured only when
// self-assigned roles are enabled.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=40"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72,maxbytes=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user staff admin"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest payload for admin user creation.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,max=40"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72,maxbytes=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user staff admin"`
}

// UpdateUserRequest payload for admin user updates. Omitted fields are kept.
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"omitempty,max=40"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Password string `json:"password" validate:"omitempty,min=6,max=72,maxbytes=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user staff admin"`
	Active   *bool  `json:"active"`
}

// UserResponse is the public view of a user. It never carries the password hash.
type UserResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserListResponse is one page of the admin listing.
type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
	Count int            `json:"count"`
}

// WhoAmIResponse reports the optional principal of a request.
type WhoAmIResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user,omitempty"`
}

// MessageResponse carries a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewUserResponse maps a domain user to its public view.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Avatar:    u.Avatar,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NewUserListResponse maps a page of users.
func NewUserListResponse(users []*domain.User, page, pages, count int) UserListResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return UserListResponse{Users: out, Page: page, Pages: pages, Count: count}
}
