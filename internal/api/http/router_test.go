package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/restaurant-api/internal/api/http/handlers"
	"github.com/spec-kit/restaurant-api/internal/auth"
	"github.com/spec-kit/restaurant-api/internal/config"
	"github.com/spec-kit/restaurant-api/internal/domain"
	"github.com/spec-kit/restaurant-api/internal/observability"
	"github.com/spec-kit/restaurant-api/internal/repository"
	"github.com/spec-kit/restaurant-api/internal/service"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
)

// memoryUsers is an in-memory credential store.
type memoryUsers struct {
	mu    sync.Mutex
	byID  map[string]*domain.User
	clock func() time.Time
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]*domain.User{}, clock: time.Now}
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memoryUsers) Create(ctx context.Context, fields domain.NewUser) (*domain.User, error) {
	if _, err := m.FindByEmail(ctx, fields.Email); err == nil {
		return nil, domain.ErrEmailTaken
	}
	hash, err := auth.HashPassword(fields.Password, bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	role := fields.Role
	if role == "" {
		role = domain.RoleUser
	}
	now := m.clock()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         fields.Name,
		Email:        repository.NormalizeEmail(fields.Email),
		Phone:        fields.Phone,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.mu.Lock()
	m.byID[u.ID] = u
	m.mu.Unlock()
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) VerifyPassword(user *domain.User, plaintext string) bool {
	return user != nil && auth.ComparePassword(user.PasswordHash, plaintext) == nil
}

func (m *memoryUsers) List(_ context.Context, filter domain.UserFilter) ([]*domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.byID {
		if filter.Keyword == "" || strings.Contains(u.Name, filter.Keyword) || strings.Contains(u.Email, filter.Keyword) {
			copied := *u
			out = append(out, &copied)
		}
	}
	total := len(out)
	if filter.Offset >= total {
		return []*domain.User{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return out[filter.Offset:end], total, nil
}

func (m *memoryUsers) Update(_ context.Context, user *domain.User, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	if newPassword != "" {
		hash, err := auth.HashPassword(newPassword, bcrypt.MinCost)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	copied := *user
	m.byID[user.ID] = &copied
	return nil
}

func (m *memoryUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memoryUsers) promote(t *testing.T, email string, role domain.Role) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			u.Role = role
			return
		}
	}
	t.Fatalf("no user %s", email)
}

type testServer struct {
	app     *fiber.App
	users   *memoryUsers
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, loginPerMinute, loginBurst int) *testServer {
	t.Helper()
	cfg := config.AuthConfig{
		AccessSecret:        "test-access-secret",
		RefreshSecret:       "test-refresh-secret",
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          7 * 24 * time.Hour,
		RotateRefreshWithin: 24 * time.Hour,
		BcryptCost:          bcrypt.MinCost,
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics("restaurant-api-test")
	users := newMemoryUsers()
	tokens := auth.NewTokenManager(cfg)

	sessions := service.NewSessionService(cfg, service.SessionDependencies{
		Users:   users,
		Tokens:  tokens,
		Logger:  logger,
		Metrics: metrics,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		Timeout:        5 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	RegisterRoutes(app, RouteConfig{
		Health:    handlers.NewHealthHandler("restaurant-api", "test", nil),
		Users:     handlers.NewUsersHandler(sessions, service.NewUserService(users, nil), auth.NewCookieManager(false, cfg.AccessTTL, cfg.RefreshTTL)),
		Gate:      auth.NewGate(tokens, users, logger, auth.WithMetrics(metrics)),
		Metrics:   metrics,
		LoginRate: RateLimit(loginPerMinute, loginBurst, logger),
	})
	return &testServer{app: app, users: users, metrics: metrics}
}

type response struct {
	status  int
	body    map[string]any
	raw     string
	cookies map[string]*http.Cookie
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, raw: string(raw), cookies: map[string]*http.Cookie{}}
	for _, c := range resp.Cookies() {
		out.cookies[c.Name] = c
	}
	if len(raw) > 0 && raw[0] == '{' {
		out.body = map[string]any{}
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func (r response) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (r response) errorMessage() string {
	e, _ := r.body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

const annRegistration = `{"name":"Ann","email":"Ann@X.com","password":"secret1"}`

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, 0, 0)

	reg := s.do(t, http.MethodPost, "/api/users/register", annRegistration)
	require.Equal(t, http.StatusCreated, reg.status, reg.raw)
	assert.Equal(t, "ann@x.com", reg.body["email"])
	assert.Equal(t, "user", reg.body["role"])
	assert.NotContains(t, reg.raw, "password")
	assert.NotContains(t, reg.raw, "$2a$")

	access := reg.cookies[auth.AccessCookieName]
	refresh := reg.cookies[auth.RefreshCookieName]
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 15*60, access.MaxAge)
	assert.Equal(t, 7*24*60*60, refresh.MaxAge)

	me := s.do(t, http.MethodGet, "/api/users/me", "", access)
	require.Equal(t, http.StatusOK, me.status, me.raw)
	assert.Equal(t, reg.body["_id"], me.body["_id"])

	out := s.do(t, http.MethodPost, "/api/users/logout", "", access)
	require.Equal(t, http.StatusOK, out.status)
	assert.Equal(t, "Logged out successfully", out.body["message"])
	for _, name := range []string{auth.AccessCookieName, auth.RefreshCookieName} {
		cleared := out.cookies[name]
		require.NotNil(t, cleared, name)
		assert.Empty(t, cleared.Value)
		assert.True(t, cleared.Expires.Before(time.Now()))
		assert.True(t, cleared.HttpOnly)
		assert.Equal(t, "/", cleared.Path)
	}

	// Without a denylist the access token stays valid until it expires.
	again := s.do(t, http.MethodGet, "/api/users/me", "", access)
	assert.Equal(t, http.StatusOK, again.status)
}

func TestRegister_IgnoresRoleAndRejectsDuplicate(t *testing.T) {
	s := newTestServer(t, 0, 0)

	reg := s.do(t, http.MethodPost, "/api/users/register", `{"name":"Eve","email":"eve@x.com","password":"secret1","role":"admin"}`)
	require.Equal(t, http.StatusCreated, reg.status)
	assert.Equal(t, "user", reg.body["role"])

	dup := s.do(t, http.MethodPost, "/api/users/register", `{"name":"Eve","email":"EVE@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, dup.status)
	assert.Equal(t, apperrors.CodeConflict, dup.errorCode())
}

func TestRegister_InvalidPayload(t *testing.T) {
	s := newTestServer(t, 0, 0)

	res := s.do(t, http.MethodPost, "/api/users/register", `{"email":"ann@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, apperrors.CodeValidation, res.errorCode())
}

func TestRegister_RejectsOverlongPassword(t *testing.T) {
	s := newTestServer(t, 0, 0)

	body := fmt.Sprintf(`{"name":"Ann","email":"ann@x.com","password":%q}`, strings.Repeat("a", 80))
	res := s.do(t, http.MethodPost, "/api/users/register", body)
	require.Equal(t, http.StatusBadRequest, res.status, res.raw)
	assert.Equal(t, apperrors.CodeValidation, res.errorCode())
	details, _ := res.body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "must be at most 72 characters", details["password"])
	assert.Empty(t, s.users.byID)
}

func TestAdminRoutes_ValidateBodies(t *testing.T) {
	s := newTestServer(t, 0, 0)
	boss := s.do(t, http.MethodPost, "/api/users/register", `{"name":"Boss","email":"boss@x.com","password":"secret1"}`)
	s.users.promote(t, "boss@x.com", domain.RoleAdmin)
	bossCookie := boss.cookies[auth.AccessCookieName]

	long := strings.Repeat("b", 73)
	created := s.do(t, http.MethodPost, "/api/users", fmt.Sprintf(`{"name":"Chef","email":"chef@x.com","password":%q}`, long), bossCookie)
	assert.Equal(t, http.StatusBadRequest, created.status, created.raw)

	badRole := s.do(t, http.MethodPost, "/api/users", `{"name":"Chef","email":"chef@x.com","password":"secret1","role":"owner"}`, bossCookie)
	assert.Equal(t, http.StatusBadRequest, badRole.status)
	assert.Equal(t, apperrors.CodeValidation, badRole.errorCode())

	id := boss.body["_id"].(string)
	updated := s.do(t, http.MethodPut, "/api/users/"+id, fmt.Sprintf(`{"password":%q}`, long), bossCookie)
	assert.Equal(t, http.StatusBadRequest, updated.status, updated.raw)
	assert.Equal(t, apperrors.CodeValidation, updated.errorCode())
}

func TestLogin_FailuresLookIdentical(t *testing.T) {
	s := newTestServer(t, 0, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/users/register", annRegistration).status)

	wrong := s.do(t, http.MethodPost, "/api/users/login", `{"email":"ann@x.com","password":"nope-nope"}`)
	unknown := s.do(t, http.MethodPost, "/api/users/login", `{"email":"ghost@x.com","password":"nope-nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.status)
	assert.Equal(t, wrong.status, unknown.status)
	assert.Equal(t, wrong.raw, unknown.raw)
	assert.Empty(t, wrong.cookies)

	ok := s.do(t, http.MethodPost, "/api/users/login", `{"email":"ANN@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, ok.status)
	assert.NotNil(t, ok.cookies[auth.AccessCookieName])
	assert.NotNil(t, ok.cookies[auth.RefreshCookieName])
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, 0, 0)
	reg := s.do(t, http.MethodPost, "/api/users/register", annRegistration)
	require.Equal(t, http.StatusCreated, reg.status)

	res := s.do(t, http.MethodPost, "/api/users/refresh", "", reg.cookies[auth.RefreshCookieName])
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.NotNil(t, res.cookies[auth.AccessCookieName])
	assert.Nil(t, res.cookies[auth.RefreshCookieName], "refresh cookie is kept while far from expiry")

	missing := s.do(t, http.MethodPost, "/api/users/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, missing.status)
	assert.Equal(t, apperrors.MsgUnauthenticated, missing.errorMessage())

	wrongKind := s.do(t, http.MethodPost, "/api/users/refresh", "",
		&http.Cookie{Name: auth.RefreshCookieName, Value: reg.cookies[auth.AccessCookieName].Value})
	assert.Equal(t, http.StatusUnauthorized, wrongKind.status)
}

func TestMe_RequiresSession(t *testing.T) {
	s := newTestServer(t, 0, 0)

	res := s.do(t, http.MethodGet, "/api/users/me", "")
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, apperrors.CodeUnauthorized, res.errorCode())
}

func TestLogout_WithoutSession(t *testing.T) {
	s := newTestServer(t, 0, 0)

	res := s.do(t, http.MethodPost, "/api/users/logout", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Logged out successfully", res.body["message"])
}

func TestWhoAmI(t *testing.T) {
	s := newTestServer(t, 0, 0)

	anon := s.do(t, http.MethodGet, "/api/users/whoami", "")
	require.Equal(t, http.StatusOK, anon.status)
	assert.Equal(t, false, anon.body["authenticated"])

	forged := s.do(t, http.MethodGet, "/api/users/whoami", "", &http.Cookie{Name: auth.AccessCookieName, Value: "forged"})
	require.Equal(t, http.StatusOK, forged.status)
	assert.Equal(t, false, forged.body["authenticated"])

	reg := s.do(t, http.MethodPost, "/api/users/register", annRegistration)
	me := s.do(t, http.MethodGet, "/api/users/whoami", "", reg.cookies[auth.AccessCookieName])
	require.Equal(t, http.StatusOK, me.status)
	assert.Equal(t, true, me.body["authenticated"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, 0, 0)
	plain := s.do(t, http.MethodPost, "/api/users/register", annRegistration)
	boss := s.do(t, http.MethodPost, "/api/users/register", `{"name":"Boss","email":"boss@x.com","password":"secret1"}`)
	s.users.promote(t, "boss@x.com", domain.RoleAdmin)
	bossCookie := boss.cookies[auth.AccessCookieName]

	anon := s.do(t, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusUnauthorized, anon.status)

	denied := s.do(t, http.MethodGet, "/api/users", "", plain.cookies[auth.AccessCookieName])
	assert.Equal(t, http.StatusForbidden, denied.status)
	assert.Equal(t, "access denied - admin role required", denied.errorMessage())

	list := s.do(t, http.MethodGet, "/api/users?pageNumber=1", "", bossCookie)
	require.Equal(t, http.StatusOK, list.status, list.raw)
	assert.EqualValues(t, 2, list.body["count"])
	assert.EqualValues(t, 1, list.body["pages"])
	assert.NotContains(t, list.raw, "$2a$")

	created := s.do(t, http.MethodPost, "/api/users", `{"name":"Chef","email":"chef@x.com","password":"secret1","role":"staff"}`, bossCookie)
	require.Equal(t, http.StatusCreated, created.status, created.raw)
	assert.Equal(t, "staff", created.body["role"])
	chefID := created.body["_id"].(string)

	updated := s.do(t, http.MethodPut, "/api/users/"+chefID, `{"role":"admin"}`, bossCookie)
	require.Equal(t, http.StatusOK, updated.status, updated.raw)
	assert.Equal(t, "admin", updated.body["role"])

	got := s.do(t, http.MethodGet, "/api/users/"+chefID, "", bossCookie)
	require.Equal(t, http.StatusOK, got.status)

	removed := s.do(t, http.MethodDelete, "/api/users/"+chefID, "", bossCookie)
	require.Equal(t, http.StatusOK, removed.status)
	assert.Equal(t, "User removed successfully", removed.body["message"])

	gone := s.do(t, http.MethodGet, "/api/users/"+chefID, "", bossCookie)
	assert.Equal(t, http.StatusNotFound, gone.status)
	assert.Equal(t, apperrors.CodeNotFound, gone.errorCode())
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, 1, 2)

	body := `{"email":"ghost@x.com","password":"whatever"}`
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/users/login", body).status)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/users/login", body).status)

	limited := s.do(t, http.MethodPost, "/api/users/login", body)
	assert.Equal(t, http.StatusTooManyRequests, limited.status)
	assert.Equal(t, apperrors.CodeRateLimited, limited.errorCode())
}

func TestUnknownRouteRendersErrorEnvelope(t *testing.T) {
	s := newTestServer(t, 0, 0)

	res := s.do(t, http.MethodGet, "/api/nowhere", "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, apperrors.CodeNotFound, res.errorCode())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 0, 0)

	live := s.do(t, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, live.status)
	assert.Equal(t, "alive", live.body["status"])

	ready := s.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, ready.status)

	s.do(t, http.MethodGet, "/api/users/me", "")
	metrics := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.raw, "http_requests_total")
	assert.Contains(t, metrics.raw, `auth_events_total`)
}
