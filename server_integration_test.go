package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fintrack/pkg/auth"
	"fintrack/pkg/password"
	"fintrack/pkg/store/memstore"
	"fintrack/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// performRequest sends body as JSON, with a bearer token when one is given.
func performRequest(t *testing.T, r http.Handler, method, path string, body any, tok string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := token.NewCodec(token.Options{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     7 * 24 * time.Hour,
		RefreshTTL:    30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memstore.New()
	svc := auth.NewService(st, st, st, codec, password.Bcrypt{Cost: bcrypt.MinCost}, auth.Options{
		Currency: "IDR",
		Logger:   logger,
	})
	return newRouter(&server{auth: svc, codec: codec}, logger)
}

var aliceRegistration = map[string]string{
	"userName":    "alice",
	"email":       "alice@x.com",
	"password":    "pw123456",
	"fullName":    "Alice Example",
	"dateOfBirth": "1990-04-01",
}

type loginData struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         map[string]any `json:"user"`
	Account      map[string]any `json:"account"`
}

func loginAlice(t *testing.T, r http.Handler) loginData {
	t.Helper()
	rec, env := performRequest(t, r, http.MethodPost, "/auth/login",
		map[string]string{"usernameOrEmail": "alice", "password": "pw123456"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[loginData](t, env.Data)
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register
	rec, env := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	reg := decode[struct {
		User    map[string]any `json:"user"`
		Account map[string]any `json:"account"`
		Token   string         `json:"token"`
	}](t, env.Data)
	assert.Equal(t, "alice", reg.User["userName"])
	assert.NotContains(t, reg.User, "passwordHash")
	assert.NotContains(t, rec.Body.String(), "pw123456")
	assert.Equal(t, float64(0), reg.Account["balance"])
	assert.NotEmpty(t, reg.Token)

	// 2. Duplicate registration
	rec, env = performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)

	// 3. Login
	login := loginAlice(t, r)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, reg.Account["id"], login.Account["id"])

	// 3b. Wrong password
	rec, env = performRequest(t, r, http.MethodPost, "/auth/login",
		map[string]string{"usernameOrEmail": "alice", "password": "wrong-pw"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	// 4. Refresh
	rec, env = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decode[loginData](t, env.Data)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	// 5. The superseded refresh token is rejected
	rec, env = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refreshToken": login.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	// 6. Verify
	rec, env = performRequest(t, r, http.MethodGet, "/auth/verify", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decode[struct {
		User map[string]any `json:"user"`
	}](t, env.Data)
	assert.Equal(t, reg.User["id"], verified.User["id"])

	// 7. Logout twice
	for i := 0; i < 2; i++ {
		rec, env = performRequest(t, r, http.MethodPost, "/auth/logout", nil, pair.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, env.Success)
		assert.NotEmpty(t, env.Message)
	}

	// 8. Refresh after logout, with either token
	for _, tok := range []string{login.RefreshToken, pair.RefreshToken} {
		rec, _ = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
			map[string]string{"refreshToken": tok}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRegister_ValidationMessages(t *testing.T) {
	r := setupTestServer(t)

	body := map[string]string{"userName": "alice", "email": "alice@x.com", "password": "pw"}
	rec, env := performRequest(t, r, http.MethodPost, "/auth/register", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)

	withRole := map[string]string{}
	for k, v := range aliceRegistration {
		withRole[k] = v
	}
	withRole["role"] = "admin"
	rec, env = performRequest(t, r, http.MethodPost, "/auth/register", withRole, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "role")

	rec, env = performRequest(t, r, http.MethodPost, "/auth/register", "{", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	_, wrongPw := performRequest(t, r, http.MethodPost, "/auth/login",
		map[string]string{"usernameOrEmail": "alice", "password": "nope-nope"}, "")
	rec, unknown := performRequest(t, r, http.MethodPost, "/auth/login",
		map[string]string{"usernameOrEmail": "bob@x.com", "password": "pw123456"}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, unknown.Success)
	assert.Equal(t, wrongPw.Message, unknown.Message)
}

func TestGate(t *testing.T) {
	r := setupTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestGate_RejectsRefreshToken(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	login := loginAlice(t, r)

	rec, _ = performRequest(t, r, http.MethodGet, "/api/profile", nil, login.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WithRefreshTokenBody(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	phone := loginAlice(t, r)
	laptop := loginAlice(t, r)

	// the laptop logs out the phone session as well as its own
	rec, _ = performRequest(t, r, http.MethodPost, "/auth/logout",
		map[string]string{"refreshToken": phone.RefreshToken}, laptop.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, tok := range []string{phone.RefreshToken, laptop.RefreshToken} {
		rec, _ = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
			map[string]string{"refreshToken": tok}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLogout_StaleAccessToken(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	login := loginAlice(t, r)

	rec, env := performRequest(t, r, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decode[loginData](t, env.Data)

	// logging out with the access token issued before the refresh
	rec, _ = performRequest(t, r, http.MethodPost, "/auth/logout", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refreshToken": pair.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	login := loginAlice(t, r)

	rec, env := performRequest(t, r, http.MethodPut, "/api/profile", map[string]string{
		"fullName":    "Alice B",
		"phoneNumber": "+62 812",
		"address":     "Jakarta",
	}, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = performRequest(t, r, http.MethodGet, "/api/profile", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[struct {
		User map[string]any `json:"user"`
	}](t, env.Data)
	assert.Equal(t, "Alice B", profile.User["fullName"])
	assert.Equal(t, "Jakarta", profile.User["address"])

	rec, env = performRequest(t, r, http.MethodGet, "/api/accounts/default", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := decode[struct {
		Account map[string]any `json:"account"`
	}](t, env.Data)
	assert.Equal(t, "IDR", acc.Account["currency"])
	assert.Equal(t, true, acc.Account["isDefault"])
}

func TestChangePasswordEndpoint(t *testing.T) {
	r := setupTestServer(t)
	rec, _ := performRequest(t, r, http.MethodPost, "/auth/register", aliceRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	login := loginAlice(t, r)

	rec, _ = performRequest(t, r, http.MethodPut, "/api/profile/password", map[string]string{
		"currentPassword": "wrong-pw",
		"newPassword":     "newpass1",
	}, login.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = performRequest(t, r, http.MethodPut, "/api/profile/password", map[string]string{
		"currentPassword": "pw123456",
		"newPassword":     "newpass1",
	}, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = performRequest(t, r, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refreshToken": login.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = performRequest(t, r, http.MethodPost, "/auth/login",
		map[string]string{"usernameOrEmail": "alice@x.com", "password": "newpass1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	r := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("DB_DRIVER", "memory")
	require.NoError(t, run([]string{"migrate"}))
}
