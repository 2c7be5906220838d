package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okisetiawan/authflow/internal/application"
	"github.com/okisetiawan/authflow/internal/domain/entity"
	repo "github.com/okisetiawan/authflow/internal/domain/repository"
	handlers "github.com/okisetiawan/authflow/internal/interface/http"
	"github.com/okisetiawan/authflow/internal/interface/middleware"
	"github.com/okisetiawan/authflow/internal/router"
	"github.com/okisetiawan/authflow/pkg/helpers"
	"github.com/okisetiawan/authflow/pkg/mailer"
	"github.com/okisetiawan/authflow/pkg/validation"
)

type memRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*entity.User
}

func newMemRepo() *memRepo { return &memRepo{users: map[string]*entity.User{}} }

func (f *memRepo) Create(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repo.ErrDuplicateEmail
		}
	}
	f.seq++
	u.ID = strconv.Itoa(f.seq)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *memRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *memRepo) Update(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *memRepo) otpFor(t *testing.T, email string) string {
	t.Helper()
	u, err := f.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.OTP
}

func (f *memRepo) resetOTPFor(t *testing.T, email string) string {
	t.Helper()
	u, err := f.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ResetOTP
}

type dropDispatcher struct{}

func (dropDispatcher) Dispatch(context.Context, mailer.EmailJob) error { return nil }

type envelope struct {
	Status  int            `json:"status"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Error   any            `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *memRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	mem := newMemRepo()
	sessions := helpers.NewSessionManager("test-secret", 7*24*time.Hour)
	cookies := helpers.NewCookie("", false)
	svc := application.NewService(mem, sessions, dropDispatcher{}, nil, nil, 10*time.Minute)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	reg := router.NewRegistry(r)
	router.InitModules(reg, router.Deps{Svc: svc, Sessions: sessions, Cookies: cookies})
	reg.RegisterAll()
	return r, mem
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body map[string]any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == helpers.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{"email": "ann@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "not-an-email", "password": "Pw1!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Only presence is checked on the password; short ones are accepted.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegisterVerifyLoginMeFlow(t *testing.T) {
	r, mem := newTestRouter(t)

	// Register
	w, env := doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data["user_id"])

	code := mem.otpFor(t, "ann@x.com")
	require.Len(t, code, 6)

	// Duplicate registration
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Login before verification: 403, distinguishable from bad credentials.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "ann@x.com", "password": "Pw1!",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Wrong OTP
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{
		"email": "ann@x.com", "otp": wrong,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Correct OTP
	w, env = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{
		"email": "ann@x.com", "otp": code,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	// Replaying the consumed OTP fails.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{
		"email": "ann@x.com", "otp": code,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong password on the verified account: 400.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "ann@x.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Login
	w, env = doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "ann@x.com", "password": "Pw1!",
	})
	require.Equal(t, http.StatusOK, w.Code)
	ck := sessionCookie(t, w)
	assert.True(t, ck.HttpOnly)
	assert.NotEmpty(t, ck.Value)

	user, ok := env.Data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ann", user["name"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, user, "otp")

	// GET /me with the cookie
	w, env = doJSON(t, r, http.MethodGet, "/api/auth/me", nil, ck)
	require.Equal(t, http.StatusOK, w.Code)
	user, ok = env.Data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ann@x.com", user["email"])
	assert.Equal(t, true, user["is_verified"])
	assert.NotContains(t, user, "password_hash")
}

func TestMeUnauthenticated(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/auth/me", nil, &http.Cookie{
		Name: helpers.SessionCookieName, Value: "not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRejectsForeignSignature(t *testing.T) {
	r, _ := newTestRouter(t)

	other := helpers.NewSessionManager("different-secret", time.Hour)
	token, _, err := other.Generate("1")
	require.NoError(t, err)

	w, _ := doJSON(t, r, http.MethodGet, "/api/auth/me", nil, &http.Cookie{
		Name: helpers.SessionCookieName, Value: token,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	ck := sessionCookie(t, w)
	assert.Empty(t, ck.Value)
	assert.Less(t, ck.MaxAge, 0)
}

func TestResendOTPEndpoint(t *testing.T) {
	r, mem := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/auth/resend-otp", map[string]any{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})

	w, env := doJSON(t, r, http.MethodPost, "/api/auth/resend-otp", map[string]any{"email": "ann@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	code := mem.otpFor(t, "ann@x.com")
	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{"email": "ann@x.com", "otp": code})

	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/resend-otp", map[string]any{"email": "ann@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	r, mem := newTestRouter(t)

	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})
	code := mem.otpFor(t, "ann@x.com")
	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{"email": "ann@x.com", "otp": code})

	// The response shape is identical for unknown and known emails.
	wUnknown, envUnknown := doJSON(t, r, http.MethodPost, "/api/auth/password/request-otp", map[string]any{"email": "nobody@x.com"})
	wKnown, envKnown := doJSON(t, r, http.MethodPost, "/api/auth/password/request-otp", map[string]any{"email": "ann@x.com"})
	assert.Equal(t, http.StatusOK, wUnknown.Code)
	assert.Equal(t, http.StatusOK, wKnown.Code)
	assert.Equal(t, envUnknown.Message, envKnown.Message)
	assert.Equal(t, envUnknown.Success, envKnown.Success)

	resetCode := mem.resetOTPFor(t, "ann@x.com")
	require.Len(t, resetCode, 6)

	wrong := "000000"
	if wrong == resetCode {
		wrong = "000001"
	}
	w, _ := doJSON(t, r, http.MethodPost, "/api/auth/password/reset", map[string]any{
		"email": "ann@x.com", "otp": wrong, "new_password": "NewPw2!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := doJSON(t, r, http.MethodPost, "/api/auth/password/reset", map[string]any{
		"email": "ann@x.com", "otp": resetCode, "new_password": "NewPw2!",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	// Old password no longer works, new one does.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "ann@x.com", "password": "Pw1!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "ann@x.com", "password": "NewPw2!",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Missing new_password is a validation error.
	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/password/reset", map[string]any{
		"email": "ann@x.com", "otp": resetCode,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFailedLoginLogsClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validation.Init()

	logger, hook := logtest.NewNullLogger()
	mem := newMemRepo()
	sessions := helpers.NewSessionManager("test-secret", time.Hour)
	svc := application.NewService(mem, sessions, dropDispatcher{}, nil, logger, 10*time.Minute)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	reg := router.NewRegistry(r)
	router.InitModules(reg, router.Deps{Svc: svc, Sessions: sessions, Cookies: helpers.NewCookie("", false)})
	reg.RegisterAll()

	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/register", map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "Pw1!",
	})
	_, _ = doJSON(t, r, http.MethodPost, "/api/auth/verify-otp", map[string]any{
		"email": "ann@x.com", "otp": mem.otpFor(t, "ann@x.com"),
	})

	body, err := json.Marshal(map[string]any{"email": "ann@x.com", "password": "nope"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "failed login attempt" {
			found = true
			assert.Equal(t, "203.0.113.9", e.Data["client_ip"])
			assert.Equal(t, "ann@x.com", e.Data["email"])
		}
	}
	assert.True(t, found, "failed login should be logged with the client address")
}

func TestMeWithoutAuthContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handlers.NewAuthHandler(nil, nil, helpers.NewCookie("", false))
	r := gin.New()
	r.GET("/me", h.Me)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
