package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/cmd/account"
	"authgate/cmd/internal/auth/credential"
	"authgate/cmd/internal/auth/flows"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/password"
)

const (
	testAdminSecret = "let-me-in-as-admin"
	strongPassword  = "correct horse battery staple"
)

type testResponse struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Token   string         `json:"token"`
	User    *account.View  `json:"user"`
	Users   []account.View `json:"users"`
}

type brokenLookupStore struct {
	account.Store
}

func (brokenLookupStore) GetByEmail(context.Context, string) (account.Account, error) {
	return account.Account{}, errors.New("connection reset by peer")
}

func newTestServer(t *testing.T, cfg Config, store account.Store) *httptest.Server {
	t.Helper()

	if store == nil {
		store = account.NewMemoryStore()
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	codec, err := credential.NewCodec(credential.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	auth, err := session.NewAuthority(codec, store, session.WithLogger(log))
	require.NoError(t, err)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	svc, err := flows.NewService(flows.Config{AdminSecret: testAdminSecret}, store, auth, pw, flows.WithLogger(log))
	require.NoError(t, err)

	h, err := NewHandler(log, svc, auth, cfg)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, testResponse, string) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out testResponse
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out, string(raw)
}

func registerAdmin(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()

	status, out, raw := doJSON(t, srv, http.MethodPost, "/admin/register", "", map[string]string{
		"email":      email,
		"password":   strongPassword,
		"adminToken": testAdminSecret,
	})
	require.Equal(t, http.StatusCreated, status, raw)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func registerUser(t *testing.T, srv *httptest.Server, adminToken, email string) testResponse {
	t.Helper()

	status, out, raw := doJSON(t, srv, http.MethodPost, "/register", adminToken, map[string]string{
		"name":     "Alice",
		"email":    email,
		"password": strongPassword,
	})
	require.Equal(t, http.StatusCreated, status, raw)
	return out
}

func login(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()

	status, out, raw := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email":    email,
		"password": strongPassword,
	})
	require.Equal(t, http.StatusOK, status, raw)
	assert.Equal(t, "Logged in", out.Message)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestAdminRegister(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	t.Run("missing fields", func(t *testing.T) {
		status, out, _ := doJSON(t, srv, http.MethodPost, "/admin/register", "", map[string]string{
			"email":      "boss@example.com",
			"adminToken": testAdminSecret,
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Fields required", out.Message)
	})

	t.Run("wrong admin token", func(t *testing.T) {
		status, out, _ := doJSON(t, srv, http.MethodPost, "/admin/register", "", map[string]string{
			"email":      "boss@example.com",
			"password":   strongPassword,
			"adminToken": "guess",
		})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Invalid admin token", out.Message)
	})

	t.Run("success and duplicate", func(t *testing.T) {
		status, out, raw := doJSON(t, srv, http.MethodPost, "/admin/register", "", map[string]string{
			"email":      "boss@example.com",
			"password":   strongPassword,
			"adminToken": testAdminSecret,
		})
		require.Equal(t, http.StatusCreated, status, raw)
		assert.Equal(t, "Admin registered successfully", out.Message)
		require.NotNil(t, out.User)
		assert.Equal(t, account.RoleAdmin, out.User.Role)
		assert.NotContains(t, raw, "argon2id")

		status, out, _ = doJSON(t, srv, http.MethodPost, "/admin/register", "", map[string]string{
			"email":      "BOSS@example.com",
			"password":   strongPassword,
			"adminToken": testAdminSecret,
		})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "Admin with this email already exists", out.Message)
	})
}

func TestRegister_RequiresAdmin(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)
	adminToken := registerAdmin(t, srv, "boss@example.com")

	body := map[string]string{"name": "Alice", "email": "alice@example.com", "password": strongPassword}

	status, out, _ := doJSON(t, srv, http.MethodPost, "/register", "", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Not authorized", out.Message)

	status, out, _ = doJSON(t, srv, http.MethodPost, "/register", "not-a-token", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Not authorized", out.Message)

	created := registerUser(t, srv, adminToken, "alice@example.com")
	assert.Equal(t, "User registered successfully", created.Message)
	require.NotNil(t, created.User)
	assert.Equal(t, account.RoleUser, created.User.Role)

	userToken := login(t, srv, "alice@example.com")
	status, out, _ = doJSON(t, srv, http.MethodPost, "/register", userToken, map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden", out.Message)

	status, out, _ = doJSON(t, srv, http.MethodPost, "/register", adminToken, body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User with this email already exists", out.Message)
}

func TestRegister_OpenWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegisterRequiresAdmin = false
	srv := newTestServer(t, cfg, nil)

	out := registerUser(t, srv, "", "open@example.com")
	assert.NotEmpty(t, out.Token)

	status, me, _ := doJSON(t, srv, http.MethodGet, "/me", out.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, me.User)
	assert.Equal(t, "open@example.com", me.User.Email)
}

func TestRegister_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegisterRequiresAdmin = false
	srv := newTestServer(t, cfg, nil)

	status, out, _ := doJSON(t, srv, http.MethodPost, "/register", "", map[string]string{"email": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Name, email, and password are required", out.Message)

	status, out, _ = doJSON(t, srv, http.MethodPost, "/register", "", map[string]string{
		"name": "A", "email": "a@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password does not meet requirements", out.Message)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)
	adminToken := registerAdmin(t, srv, "boss@example.com")
	registerUser(t, srv, adminToken, "alice@example.com")

	status, out, _ := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email and password are required", out.Message)

	_, wrongPw, wrongPwRaw := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email": "alice@example.com", "password": "not the password",
	})
	status, unknown, unknownRaw := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email": "nobody@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", unknown.Message)
	assert.Equal(t, wrongPwRaw, unknownRaw, "unknown email and wrong password must be indistinguishable")
	assert.Empty(t, wrongPw.Token)

	token := login(t, srv, "  ALICE@example.com ")
	assert.NotEmpty(t, token)
}

func TestLogin_SupersedesPreviousSession(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)
	adminToken := registerAdmin(t, srv, "boss@example.com")
	registerUser(t, srv, adminToken, "alice@example.com")

	first := login(t, srv, "alice@example.com")
	second := login(t, srv, "alice@example.com")
	require.NotEqual(t, first, second)

	status, out, _ := doJSON(t, srv, http.MethodGet, "/me", first, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Not authorized", out.Message)

	status, out, _ = doJSON(t, srv, http.MethodGet, "/me", second, nil)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, out.User)
	assert.Equal(t, "alice@example.com", out.User.Email)

	// The admin session registered before is untouched by the user's logins.
	status, _, _ = doJSON(t, srv, http.MethodGet, "/me", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)
	adminToken := registerAdmin(t, srv, "boss@example.com")
	registerUser(t, srv, adminToken, "alice@example.com")
	token := login(t, srv, "alice@example.com")

	status, _, _ := doJSON(t, srv, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, out, _ := doJSON(t, srv, http.MethodPost, "/logout", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logged out successfully", out.Message)

	status, _, _ = doJSON(t, srv, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = doJSON(t, srv, http.MethodPost, "/logout", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// A fresh login works after logout.
	login(t, srv, "alice@example.com")
}

func TestAdminUsers(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)
	adminToken := registerAdmin(t, srv, "boss@example.com")
	alice := registerUser(t, srv, adminToken, "alice@example.com")
	registerUser(t, srv, adminToken, "bob@example.com")

	status, out, raw := doJSON(t, srv, http.MethodGet, "/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status, raw)
	require.Len(t, out.Users, 2)
	for _, u := range out.Users {
		assert.Equal(t, account.RoleUser, u.Role)
	}
	assert.NotContains(t, raw, "argon2id")
	assert.NotContains(t, raw, "boss@example.com")

	userToken := login(t, srv, "bob@example.com")
	status, _, _ = doJSON(t, srv, http.MethodGet, "/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, out, _ = doJSON(t, srv, http.MethodDelete, "/admin/users", adminToken, map[string]string{
		"id": alice.User.ID, "email": "bob@example.com",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", out.Message)

	status, _, _ = doJSON(t, srv, http.MethodDelete, "/admin/users", adminToken, map[string]string{
		"id": alice.User.ID, "email": "alice@example.com",
	})
	assert.Equal(t, http.StatusOK, status)

	// A deleted account's credential no longer authenticates.
	status, _, _ = doJSON(t, srv, http.MethodGet, "/me", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, out, _ = doJSON(t, srv, http.MethodGet, "/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Users, 1)
	assert.Equal(t, "bob@example.com", out.Users[0].Email)
}

func TestRequestHygiene(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	status, _, _ := doJSON(t, srv, http.MethodGet, "/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _, _ = doJSON(t, srv, http.MethodPut, "/admin/users", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, out, _ := doJSON(t, srv, http.MethodPost, "/login", "", `{"email":"a@example.com","password":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_json", out.Code)

	status, out, _ = doJSON(t, srv, http.MethodPost, "/login", "", `{"email":"a@example.com","password":"x"} {}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_json", out.Code)
}

func TestBodyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 64
	srv := newTestServer(t, cfg, nil)

	status, out, _ := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email":    "a@example.com",
		"password": strings.Repeat("x", 256),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "body_too_large", out.Code)
}

func TestStoreFailureIsGeneric(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), brokenLookupStore{Store: account.NewMemoryStore()})

	status, out, raw := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"email": "alice@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Server error", out.Message)
	assert.NotContains(t, raw, "connection reset")
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	_, err := NewHandler(nil, nil, nil, DefaultConfig())
	assert.Error(t, err)
}
