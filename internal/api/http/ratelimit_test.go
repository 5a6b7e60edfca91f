package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVisitorStore_BurstThenRefill(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newVisitorStore(6, 2)
	store.now = func() time.Time { return now }

	assert.True(t, store.allow("10.0.0.1"))
	assert.True(t, store.allow("10.0.0.1"))
	assert.False(t, store.allow("10.0.0.1"))
	assert.True(t, store.allow("10.0.0.2"), "limits are per IP")

	now = now.Add(10 * time.Second)
	assert.True(t, store.allow("10.0.0.1"))
}

func TestVisitorStore_EvictsStaleVisitors(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newVisitorStore(10, 5)
	store.now = func() time.Time { return now }

	store.allow("10.0.0.1")
	store.allow("10.0.0.2")
	assert.Equal(t, 2, store.len())

	now = now.Add(visitorTTL + time.Second)
	store.allow("10.0.0.3")
	assert.Equal(t, 1, store.len())
}

func limitedApp(cfg fiber.Config) *fiber.App {
	cfg.ErrorHandler = ErrorHandler(zap.NewNop(), nil)
	app := fiber.New(cfg)
	app.Post("/login", RateLimit(1, 1, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app
}

func loginFrom(t *testing.T, app *fiber.App, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, forwardedFor)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimit_KeysOnProxyHeader(t *testing.T) {
	app := limitedApp(fiber.Config{ProxyHeader: fiber.HeaderXForwardedFor})

	assert.Equal(t, http.StatusNoContent, loginFrom(t, app, "203.0.113.1"))
	assert.Equal(t, http.StatusNoContent, loginFrom(t, app, "203.0.113.2"), "clients behind one proxy get separate buckets")
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, app, "203.0.113.1"))
}

func TestRateLimit_IgnoresHeaderFromUntrustedPeer(t *testing.T) {
	app := limitedApp(fiber.Config{
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"10.9.9.9"},
	})

	assert.Equal(t, http.StatusNoContent, loginFrom(t, app, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, app, "203.0.113.2"), "spoofed header must not open a new bucket")
}
