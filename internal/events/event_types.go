package events

import (
	"time"

	"github.com/spec-kit/restaurant-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserLoggedIn   EventType = "user_logged_in"
	EventUserLoggedOut  EventType = "user_logged_out"
	EventRefreshRotated EventType = "refresh_rotated"
	EventUserUpdated    EventType = "user_updated"
	EventUserDeleted    EventType = "user_deleted"
)

// Event represents an account or session event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// RefreshRotatedPayload payload.
type RefreshRotatedPayload struct {
	OldExpiresAt time.Time `json:"old_expires_at"`
	NewExpiresAt time.Time `json:"new_expires_at"`
}

// UserUpdatedPayload payload. Role is set only when it changed.
type UserUpdatedPayload struct {
	OldRole         domain.Role `json:"old_role,omitempty"`
	NewRole         domain.Role `json:"new_role,omitempty"`
	PasswordChanged bool        `json:"password_changed"`
	Active          bool        `json:"active"`
}
