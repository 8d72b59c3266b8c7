package user_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/user"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t)
	mw := auth.Middleware{Tokens: f.tokens}
	adminOnly := func(next http.Handler) http.Handler {
		return mw.RequireAuth(mw.RequireRole("ADMIN")(next))
	}
	h := user.NewHandler(user.HandlerConfig{Service: f.svc})
	r := chi.NewRouter()
	r.Route("/api/v1/users", func(r chi.Router) { h.Routes(r, nil, adminOnly) })
	return r, f
}

func do(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func adminToken(t *testing.T, f fixture) string {
	t.Helper()
	token, _, err := f.tokens.Issue("00000000-0000-0000-0000-0000000000aa", "ADMIN")
	require.NoError(t, err)
	return token
}

func TestHandlersAdminManagesUsers(t *testing.T) {
	r, f := newRouter(t)
	token := adminToken(t, f)

	rec, env := do(t, r, http.MethodPost, "/api/v1/users", token,
		`{"username":"Sari","password":"rahasia123","email":"sari@example.com","phone":"081234567"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
	var created user.User
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, user.RoleStaff, created.Role)

	rec, env = do(t, r, http.MethodPost, "/api/v1/users", token,
		`{"username":"Sari 2","password":"rahasia123","email":"SARI@example.com","phone":"0899999"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "EMAIL_EXISTS", env.Error.Code)

	rec, _ = do(t, r, http.MethodPut, "/api/v1/users/"+created.ID, token, `{"username":"Sari Pagi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, r, http.MethodPatch, "/api/v1/users/"+created.ID+"/status", token, `{"status":"BLOCKED"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = do(t, r, http.MethodPatch, "/api/v1/users/"+created.ID+"/status", token, `{"status":"INACTIVE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var inactive user.User
	require.NoError(t, json.Unmarshal(env.Data, &inactive))
	require.Equal(t, user.StatusInactive, inactive.Status)

	rec, env = do(t, r, http.MethodGet, "/api/v1/users", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []user.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/users/"+created.ID, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlersAdminRoutesNeedAdmin(t *testing.T) {
	r, f := newRouter(t)

	rec, _ := do(t, r, http.MethodGet, "/api/v1/users", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	staff, _, err := f.tokens.Issue("00000000-0000-0000-0000-0000000000bb", "STAFF")
	require.NoError(t, err)
	rec, env := do(t, r, http.MethodGet, "/api/v1/users", staff, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestHandlersLoginAndReset(t *testing.T) {
	r, f := newRouter(t)
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	rec, env := do(t, r, http.MethodPost, "/api/v1/users/login", "", `{"email":"kasir@example.com","password":"rahasia123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var login user.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.AccessToken)

	rec, env = do(t, r, http.MethodPost, "/api/v1/users/login", "", `{"email":"kasir@example.com","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/users/otp/nobody@example.com", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, r, http.MethodPost, "/api/v1/users/otp/kasir@example.com", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var issued user.OTPIssued
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	require.Equal(t, u.ID, issued.UserID)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/users/otp/verify", "", `{"userId":"`+u.ID+`","otp":"12"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, r, http.MethodPost, "/api/v1/users/otp/verify", "", `{"userId":"`+u.ID+`","otp":"`+emailedCode(t, f.queue)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var grant user.ResetGrant
	require.NoError(t, json.Unmarshal(env.Data, &grant))

	rec, env = do(t, r, http.MethodPost, "/api/v1/users/password/reset", "", `{"userId":"`+u.ID+`","resetToken":"forged","password":"baru-rahasia"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_TOKEN", env.Error.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/users/password/reset", "", `{"userId":"`+u.ID+`","resetToken":"`+grant.ResetToken+`","password":"baru-rahasia"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/users/login", "", `{"email":"kasir@example.com","password":"baru-rahasia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}
