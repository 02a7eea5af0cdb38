package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/types"
)

func authRouter(t *testing.T) (*memUsers, http.Handler) {
	t.Helper()
	repo, users := seededUsers()
	auth := NewAuthenticator(users, testSecret)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, users, auth, testSecret, time.Hour)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth, requireStaff)
		r.Get("/desk", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{"actor": actor(r).ID})
		})
	})
	return repo, r
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterThenMe(t *testing.T) {
	_, h := authRouter(t)

	rec := do(t, h, jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"New.Reader@Uni.edu","firstName":"Nia","lastName":"Okafor","password":"correct-horse"}`), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, "new.reader@uni.edu", resp.User.Email)
	assert.Equal(t, types.RoleUser, resp.User.Role)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/auth/me", nil), resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"new.reader@uni.edu"`)

	rec = do(t, h, jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"new.reader@uni.edu","password":"wrong-horse"}`), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"new.reader@uni.edu","password":"correct-horse"}`), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	_, h := authRouter(t)

	rec := do(t, h, jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"not-an-email","firstName":"A","lastName":"B","password":"short"}`), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.ElementsMatch(t, []string{
		"email must be a valid email address",
		"password must be at least 8 characters",
	}, resp.Details)

	rec = do(t, h, jsonRequest(http.MethodPost, "/auth/register", `{"email":`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")

	rec = do(t, h, jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"reader@uni.edu","firstName":"A","lastName":"B","password":"long-enough"}`), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	_, h := authRouter(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not.a.jwt", want: http.StatusUnauthorized},
		{name: "unknown user", header: "Bearer " + tokenFor(t, 999), want: http.StatusUnauthorized},
		{name: "suspended user", header: "Bearer " + tokenFor(t, testSuspended.ID), want: http.StatusForbidden},
		{name: "reader is not staff", header: "Bearer " + tokenFor(t, testReader.ID), want: http.StatusForbidden},
		{name: "librarian", header: "Bearer " + tokenFor(t, testLibrarian.ID), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/desk", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := do(t, h, req, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSuspendedMessage(t *testing.T) {
	_, h := authRouter(t)
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/auth/me", nil), tokenFor(t, testSuspended.ID))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "account is suspended")
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := issueToken(testReader.ID, []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	_, err = parseTokenSubject(token, []byte(testSecret))
	assert.Error(t, err)

	other, err := issueToken(testReader.ID, []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	_, err = parseTokenSubject(other, []byte(testSecret))
	assert.Error(t, err)
}

func TestLoginThrottle(t *testing.T) {
	_, h := authRouter(t)

	for i := 0; i < loginBurst; i++ {
		rec := do(t, h, jsonRequest(http.MethodPost, "/auth/login", `{}`), "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "attempt %d", i+1)
	}
	rec := do(t, h, jsonRequest(http.MethodPost, "/auth/login", `{}`), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "12", rec.Header().Get("Retry-After"))

	other := jsonRequest(http.MethodPost, "/auth/login", `{}`)
	other.RemoteAddr = "198.51.100.7:4000"
	rec = do(t, h, other, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "other clients keep their own budget")
}

func TestChangePassword(t *testing.T) {
	_, h := authRouter(t)

	rec := do(t, h, jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"pw@uni.edu","firstName":"P","lastName":"W","password":"first-pass"}`), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = do(t, h, jsonRequest(http.MethodPut, "/auth/password",
		`{"currentPassword":"nope-nope","newPassword":"second-pass"}`), resp.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, jsonRequest(http.MethodPut, "/auth/password",
		`{"currentPassword":"first-pass","newPassword":"second-pass"}`), resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"pw@uni.edu","password":"second-pass"}`), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
