package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-taskauth"
)

type testServer struct {
	app   *fiber.App
	svc   *auth.Service
	clock *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := newTestClock()
	svc := auth.NewService(newTestDB(t), testOptions(),
		auth.WithServiceLogger(auth.NopLogger()),
		auth.WithServiceClock(clock.Now),
		auth.WithServiceMetrics(auth.NewMetrics(prometheus.NewRegistry())),
		auth.WithServiceActivitySink(&recordingSink{}),
	)

	app := fiber.New(fiber.Config{ErrorHandler: svc.ErrorHandler()})
	svc.Mount(app)

	return &testServer{app: app, svc: svc, clock: clock}
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
	header  map[string]string
}

func (s *testServer) do(t *testing.T, r request) *http.Response {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *testServer) login(t *testing.T, email, password string) (auth.AccessToken, *http.Cookie) {
	t.Helper()
	resp := s.do(t, request{
		method: "POST",
		path:   "/api/v1/auth",
		body:   map[string]string{"email": email, "password": password},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := findCookie(resp, "refreshToken")
	return decode[auth.AccessToken](t, resp), cookie
}

func assertProblem(t *testing.T, resp *http.Response, status int, code string) map[string]any {
	t.Helper()
	assert.Equal(t, status, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), auth.ProblemContentType),
		"content type %q", resp.Header.Get("Content-Type"))

	body := decode[map[string]any](t, resp)
	assert.Equal(t, code, body["code"])
	assert.Equal(t, float64(status), body["status"])
	return body
}

func TestEndToEnd_RegisterLoginExpireRefresh(t *testing.T) {
	s := newTestServer(t)

	// register
	resp := s.do(t, request{
		method: "POST",
		path:   "/api/v1/users",
		body:   map[string]string{"email": "a@x.com", "password": "Secret123"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[auth.AccountResponse](t, resp)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, "/api/v1/users/"+created.IdentityRef, resp.Header.Get("Location"))

	// login
	token, cookie := s.login(t, "a@x.com", "Secret123")
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api/v1/auth", cookie.Path)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	// protected call
	resp = s.do(t, request{method: "GET", path: "/api/v1/users/" + created.IdentityRef, token: token.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[auth.AccountResponse](t, resp)
	assert.Equal(t, created.IdentityRef, me.IdentityRef)

	// expired
	s.clock.Advance(3601 * time.Second)
	resp = s.do(t, request{method: "GET", path: "/api/v1/users/" + created.IdentityRef, token: token.AccessToken})
	assert.Equal(t, "true", resp.Header.Get(auth.HeaderTokenExpired))
	body := assertProblem(t, resp, http.StatusUnauthorized, "TOKEN_EXPIRED")
	assert.Equal(t, true, body["refresh"])

	// refresh
	resp = s.do(t, request{method: "POST", path: "/api/v1/auth/refresh", cookies: []*http.Cookie{
		{Name: cookie.Name, Value: cookie.Value},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := findCookie(resp, "refreshToken")
	require.NotNil(t, rotated)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	refreshed := decode[auth.AccessToken](t, resp)
	assert.Equal(t, int64(3600), refreshed.ExpiresIn)

	v := s.svc.Tokens.Verify(refreshed.AccessToken)
	require.Equal(t, auth.VerificationValid, v.Status)
	assert.True(t, s.clock.Now().Add(time.Hour).Equal(v.Claims.Expires()))
	assert.Equal(t, "a@x.com", v.Claims.Email())

	resp = s.do(t, request{method: "GET", path: "/api/v1/users/" + created.IdentityRef, token: refreshed.AccessToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGate_Rejections(t *testing.T) {
	s := newTestServer(t)
	registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")

	tests := []struct {
		name   string
		header map[string]string
		status int
		code   string
	}{
		{"no header", nil, http.StatusForbidden, "TOKEN_MISSING"},
		{"wrong scheme", map[string]string{"Authorization": "Basic " + token.AccessToken}, http.StatusForbidden, "TOKEN_MISSING"},
		{"scheme without token", map[string]string{"Authorization": "Bearer "}, http.StatusForbidden, "TOKEN_MISSING"},
		{"lowercase scheme", map[string]string{"Authorization": "bearer " + token.AccessToken}, http.StatusForbidden, "TOKEN_MISSING"},
		{"garbage token", map[string]string{"Authorization": "Bearer not.a.jwt"}, http.StatusForbidden, "TOKEN_INVALID"},
		{"tampered token", map[string]string{"Authorization": "Bearer " + token.AccessToken + "x"}, http.StatusForbidden, "TOKEN_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, request{method: "GET", path: "/api/v1/users", header: tt.header})
			body := assertProblem(t, resp, tt.status, tt.code)
			assert.Nil(t, body["refresh"])
			assert.Empty(t, resp.Header.Get(auth.HeaderTokenExpired))
		})
	}

	decisions := s.svc.Metrics.GateDecisions()
	assert.Equal(t, float64(4), testutil.ToFloat64(decisions.WithLabelValues("missing")))
	assert.Equal(t, float64(2), testutil.ToFloat64(decisions.WithLabelValues("malformed")))
}

func TestProblem_TimestampFromServiceClock(t *testing.T) {
	s := newTestServer(t)
	s.clock.Advance(90 * time.Minute)

	resp := s.do(t, request{method: "GET", path: "/api/v1/users"})
	body := assertProblem(t, resp, http.StatusForbidden, "TOKEN_MISSING")
	assert.Equal(t, "2025-03-01T10:30:00Z", body["timestamp"])

	registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")

	resp = s.do(t, request{method: "GET", path: "/api/v1/users/not-a-uuid", token: token.AccessToken})
	body = assertProblem(t, resp, http.StatusBadRequest, "INVALID_ARGUMENTS")
	assert.Equal(t, "2025-03-01T10:30:00Z", body["timestamp"])
}

func TestGate_PublicRoutesOnlyForPost(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, request{method: "POST", path: "/api/v1/auth/forgot-password", body: map[string]string{"email": "nobody@x.com"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "POST", path: "/api/v1/auth/forgot-password/", body: map[string]string{"email": "nobody@x.com"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: "/api/v1/auth"})
	assertProblem(t, resp, http.StatusForbidden, "TOKEN_MISSING")

	resp = s.do(t, request{method: "PATCH", path: "/api/v1/auth", body: map[string]string{"newPassword": "Changed456"}})
	assertProblem(t, resp, http.StatusForbidden, "TOKEN_MISSING")

	assert.Equal(t, float64(2), testutil.ToFloat64(s.svc.Metrics.GateDecisions().WithLabelValues("public")))
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)
	registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")

	unknown := s.do(t, request{method: "POST", path: "/api/v1/auth", body: map[string]string{"email": "b@x.com", "password": "Secret123"}})
	unknownBody := assertProblem(t, unknown, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	wrong := s.do(t, request{method: "POST", path: "/api/v1/auth", body: map[string]string{"email": "a@x.com", "password": "nope"}})
	wrongBody := assertProblem(t, wrong, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	assert.Equal(t, "Invalid email address or password", unknownBody["detail"])
	assert.Equal(t, unknownBody["detail"], wrongBody["detail"])

	invalid := s.do(t, request{method: "POST", path: "/api/v1/auth", body: map[string]string{"email": "not-an-email"}})
	body := assertProblem(t, invalid, http.StatusBadRequest, "INVALID_ARGUMENTS")
	errs, ok := body["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]string{"email": "a@x.com", "password": "Secret123"}

	resp := s.do(t, request{method: "POST", path: "/api/v1/users", body: payload})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, request{method: "POST", path: "/api/v1/users", body: payload})
	assertProblem(t, resp, http.StatusConflict, "RESOURCE_ALREADY_EXISTS")
}

func TestRefresh_Failures(t *testing.T) {
	s := newTestServer(t)
	registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")

	resp := s.do(t, request{method: "POST", path: "/api/v1/auth/refresh"})
	assertProblem(t, resp, http.StatusForbidden, "TOKEN_INVALID")

	resp = s.do(t, request{method: "POST", path: "/api/v1/auth/refresh", cookies: []*http.Cookie{
		{Name: "refreshToken", Value: token.AccessToken},
	}})
	assertProblem(t, resp, http.StatusForbidden, "TOKEN_INVALID")
}

func TestUsers_Authorization(t *testing.T) {
	s := newTestServer(t)
	a := registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	b := registerAccount(t, s.svc.Repo, "b@x.com", "Secret123")
	registerAccount(t, s.svc.Repo, "admin@x.com", "Secret123", auth.RoleAdmin)

	tokenA, _ := s.login(t, "a@x.com", "Secret123")
	tokenAdmin, _ := s.login(t, "admin@x.com", "Secret123")

	t.Run("owner reads own account", func(t *testing.T) {
		resp := s.do(t, request{method: "GET", path: "/api/v1/users/" + a.IdentityRef.String(), token: tokenA.AccessToken})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("other account denied", func(t *testing.T) {
		resp := s.do(t, request{method: "GET", path: "/api/v1/users/" + b.IdentityRef.String(), token: tokenA.AccessToken})
		assertProblem(t, resp, http.StatusForbidden, "PERMISSION_DENIED")
	})

	t.Run("admin has no ownership override", func(t *testing.T) {
		resp := s.do(t, request{method: "GET", path: "/api/v1/users/" + b.IdentityRef.String(), token: tokenAdmin.AccessToken})
		assertProblem(t, resp, http.StatusForbidden, "PERMISSION_DENIED")
	})

	t.Run("bad ref", func(t *testing.T) {
		resp := s.do(t, request{method: "GET", path: "/api/v1/users/not-a-uuid", token: tokenA.AccessToken})
		assertProblem(t, resp, http.StatusBadRequest, "INVALID_ARGUMENTS")
	})

	t.Run("list requires admin", func(t *testing.T) {
		resp := s.do(t, request{method: "GET", path: "/api/v1/users", token: tokenA.AccessToken})
		assertProblem(t, resp, http.StatusForbidden, "FORBIDDEN")

		resp = s.do(t, request{method: "GET", path: "/api/v1/users", token: tokenAdmin.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]auth.AccountResponse](t, resp), 3)
	})

	t.Run("delete requires admin", func(t *testing.T) {
		resp := s.do(t, request{method: "DELETE", path: "/api/v1/users/" + b.IdentityRef.String(), token: tokenA.AccessToken})
		assertProblem(t, resp, http.StatusForbidden, "FORBIDDEN")

		resp = s.do(t, request{method: "DELETE", path: "/api/v1/users/" + b.IdentityRef.String(), token: tokenAdmin.AccessToken})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = s.do(t, request{method: "POST", path: "/api/v1/auth", body: map[string]string{"email": "b@x.com", "password": "Secret123"}})
		assertProblem(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	})
}

func TestAccount_SelfService(t *testing.T) {
	s := newTestServer(t)
	a := registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")
	path := "/api/v1/users/" + a.IdentityRef.String()

	resp := s.do(t, request{method: "PATCH", path: "/api/v1/users", token: token.AccessToken,
		body: map[string]string{"firstName": "Ada", "lastName": "Lovelace"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: path, token: token.AccessToken})
	me := decode[auth.AccountResponse](t, resp)
	assert.Equal(t, "Ada", me.FirstName)
	assert.Equal(t, "Lovelace", me.LastName)

	resp = s.do(t, request{method: "PATCH", path: "/api/v1/users/deactivate", token: token.AccessToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: path, token: token.AccessToken})
	assert.Equal(t, auth.AccountStatusInactive, decode[auth.AccountResponse](t, resp).Status)

	resp = s.do(t, request{method: "PATCH", path: "/api/v1/users/deactivate", token: token.AccessToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: path, token: token.AccessToken})
	assert.Equal(t, auth.AccountStatusActive, decode[auth.AccountResponse](t, resp).Status)
}

func TestPasswordUpdate(t *testing.T) {
	s := newTestServer(t)
	registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")

	resp := s.do(t, request{method: "PATCH", path: "/api/v1/auth", token: token.AccessToken,
		body: map[string]string{"newPassword": "short"}})
	assertProblem(t, resp, http.StatusBadRequest, "INVALID_ARGUMENTS")

	resp = s.do(t, request{method: "PATCH", path: "/api/v1/auth", token: token.AccessToken,
		body: map[string]string{"newPassword": "Changed456"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "POST", path: "/api/v1/auth", body: map[string]string{"email": "a@x.com", "password": "Secret123"}})
	assertProblem(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	s.login(t, "a@x.com", "Changed456")
}

func TestGate_DeletedAccountTokenRejected(t *testing.T) {
	s := newTestServer(t)
	a := registerAccount(t, s.svc.Repo, "a@x.com", "Secret123")
	token, _ := s.login(t, "a@x.com", "Secret123")

	require.NoError(t, s.svc.Repo.Accounts().Delete(context.Background(), a.IdentityRef))

	resp := s.do(t, request{method: "GET", path: "/api/v1/users/" + a.IdentityRef.String(), token: token.AccessToken})
	assertProblem(t, resp, http.StatusForbidden, "TOKEN_INVALID")
	assert.Equal(t, float64(1), testutil.ToFloat64(s.svc.Metrics.GateDecisions().WithLabelValues("rejected")))
}
