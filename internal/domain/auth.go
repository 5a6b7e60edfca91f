package domain

import "time"

// TokenKind differentiates access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// IssuedToken is a signed token together with its metadata.
type IssuedToken struct {
	Value     string
	ID        string
	Kind      TokenKind
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
