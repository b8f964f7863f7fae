package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authsvc/internal/domain"
	"authsvc/internal/repository"
	"authsvc/internal/service"
)

type mockUserRepo struct {
	usersByID       map[string]domain.User
	usersByEmail    map[string]string
	usersByUsername map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:       make(map[string]domain.User),
		usersByEmail:    make(map[string]string),
		usersByUsername: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	if _, ok := m.usersByUsername[user.Username]; ok {
		return repository.ErrUsernameTaken
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	m.usersByUsername[user.Username] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.usersByUsername[username]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash, salt string, updatedAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.Salt = salt
	user.UpdatedAt = updatedAt
	m.usersByID[id] = user
	return nil
}

type captureSender struct {
	to  string
	url string
}

func (s *captureSender) SendPasswordReset(_ context.Context, toEmail string, resetURL string) error {
	s.to = toEmail
	s.url = resetURL
	return nil
}

func (s *captureSender) resetToken() string {
	parts := strings.Split(s.url, "/")
	return parts[len(parts)-1]
}

func newTestRouter(limiter service.ResetRateLimiter) (*gin.Engine, *mockUserRepo, *captureSender) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	repo := newMockUserRepo()
	sender := &captureSender{}
	tokens := service.NewTokenService("test-secret", 15*time.Minute, 30*time.Minute)
	if limiter == nil {
		limiter = service.NewResetRateLimiter(time.Minute, 100)
	}
	authSvc := service.NewAuthService(logger, repo, service.NewPasswordHasher(), tokens, sender, limiter, "http://auth.test")
	handler := NewAuthHandler(logger, authSvc, "/reset_password.html")
	return NewRouter(logger, handler, tokens, nil), repo, sender
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	msg, _ := body["detail"].(string)
	return msg
}

func registerBody(username, email, password string) map[string]string {
	return map[string]string{
		"username":  username,
		"full_name": "Full Name",
		"email":     email,
		"phone":     "555",
		"password":  password,
	}
}

func TestRegisterEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u1@x.com", "pw"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	raw := rec.Body.String()
	if strings.Contains(raw, "password_hash") || strings.Contains(raw, "\"salt\"") || strings.Contains(raw, "\"pw\"") {
		t.Fatalf("response leaks credential material: %s", raw)
	}
	var user map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user["username"] != "u1" || user["is_active"] != true {
		t.Fatalf("unexpected user view: %v", user)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u2", "u1@x.com", "pw"), nil)
	if rec.Code != http.StatusBadRequest || detail(t, rec) != "Email already registered" {
		t.Fatalf("expected 400 Email already registered, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u2@x.com", "pw"), nil)
	if rec.Code != http.StatusBadRequest || detail(t, rec) != "Username already registered" {
		t.Fatalf("expected 400 Username already registered, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestLoginEndpoint(t *testing.T) {
	router, repo, _ := newTestRouter(nil)

	doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u1@x.com", "pw"), nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login result: %v", err)
	}
	if result.AccessToken == "" || result.TokenType != "bearer" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "wrong"}, nil)
	if rec.Code != http.StatusBadRequest || detail(t, rec) != "Incorrect username or password" {
		t.Fatalf("expected 400 Incorrect username or password, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "ghost", "password": "pw"}, nil)
	if rec.Code != http.StatusBadRequest || detail(t, rec) != "Incorrect username or password" {
		t.Fatalf("unknown user should be indistinguishable, got %d %s", rec.Code, rec.Body.String())
	}

	// Usuario inactivo: mensaje propio.
	id := repo.usersByUsername["u1"]
	user := repo.usersByID[id]
	user.IsActive = false
	repo.usersByID[id] = user
	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "pw"}, nil)
	if rec.Code != http.StatusBadRequest || detail(t, rec) != "User is inactive" {
		t.Fatalf("expected 400 User is inactive, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordResetFlow(t *testing.T) {
	router, _, sender := newTestRouter(nil)

	doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u1@x.com", "pw"), nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/password/reset", map[string]string{"email": "u1@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sender.resetToken() == "" || sender.to != "u1@x.com" {
		t.Fatalf("reset token not delivered: %+v", sender)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/password/reset", map[string]string{"email": "nope@x.com"}, nil)
	if rec.Code != http.StatusNotFound || detail(t, rec) != "Email not found" {
		t.Fatalf("expected 404 Email not found, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/password/reset/"+sender.resetToken(), nil, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/reset_password.html" {
		t.Fatalf("unexpected redirect target: %s", loc)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/password/reset/garbage", nil, nil)
	if rec.Code != http.StatusNotFound || detail(t, rec) != "Invalid token" {
		t.Fatalf("expected 404 Invalid token, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/password/reset/"+sender.resetToken(), registerBody("u1", "u1@x.com", "newpw"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "Password reset successfully" {
		t.Fatalf("unexpected message: %s", body["message"])
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "pw"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("old password should fail after reset, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "newpw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new password should work after reset, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/password/reset/"+sender.resetToken(), registerBody("u1", "nope@x.com", "newpw"), nil)
	if rec.Code != http.StatusNotFound || detail(t, rec) != "Email not found" {
		t.Fatalf("expected 404 Email not found on completion, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordResetRateLimited(t *testing.T) {
	router, _, _ := newTestRouter(service.NewResetRateLimiter(time.Minute, 1))

	doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u1@x.com", "pw"), nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/password/reset", map[string]string{"email": "u1@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/password/reset", map[string]string{"email": "u1@x.com"}, nil)
	if rec.Code != http.StatusTooManyRequests || detail(t, rec) != "Too many requests" {
		t.Fatalf("expected 429 Too many requests, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMeEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	doJSON(t, router, http.MethodPost, "/api/v1/register", registerBody("u1", "u1@x.com", "pw"), nil)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{"username": "u1", "password": "pw"}, nil)
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login result: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, map[string]string{"Authorization": "Bearer " + result.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var user map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user["username"] != "u1" {
		t.Fatalf("unexpected user: %v", user)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
