package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/restaurant-api/internal/domain"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// CookieManager writes and clears the session cookie pair. Set and clear use
// the same attributes; browsers ignore a clear whose attributes differ.
type CookieManager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCookieManager builds a cookie manager. secure selects Secure +
// SameSite=None for cross-origin production clients; otherwise SameSite=Lax.
func NewCookieManager(secure bool, accessTTL, refreshTTL time.Duration) *CookieManager {
	return &CookieManager{secure: secure, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// SetAccess writes the access token cookie.
func (m *CookieManager) SetAccess(c *fiber.Ctx, token *domain.IssuedToken) {
	c.Cookie(m.cookie(AccessCookieName, token.Value, m.accessTTL))
}

// SetRefresh writes the refresh token cookie.
func (m *CookieManager) SetRefresh(c *fiber.Ctx, token *domain.IssuedToken) {
	c.Cookie(m.cookie(RefreshCookieName, token.Value, m.refreshTTL))
}

// Clear expires both session cookies.
func (m *CookieManager) Clear(c *fiber.Ctx) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		ck := m.cookie(name, "", 0)
		ck.Expires = time.Unix(0, 0)
		ck.MaxAge = -1
		c.Cookie(ck)
	}
}

func (m *CookieManager) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if m.secure {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: sameSite,
	}
}

// AccessToken returns the access token cookie value, if any.
func AccessToken(c *fiber.Ctx) string {
	return c.Cookies(AccessCookieName)
}

// RefreshToken returns the refresh token cookie value, if any.
func RefreshToken(c *fiber.Ctx) string {
	return c.Cookies(RefreshCookieName)
}
