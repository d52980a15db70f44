package tasks_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-taskauth"
	"github.com/goliatone/go-taskauth/tasks"
)

func newDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	require.NoError(t, tasks.Migrate(context.Background(), db))
	return db
}

func TestRepository(t *testing.T) {
	repo := tasks.NewRepository(newDB(t))
	ctx := context.Background()
	owner := uuid.New()

	task, err := repo.Create(ctx, owner, "write tests")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID)

	resolved, err := repo.ResolveOwner(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, resolved)

	_, err = repo.ResolveOwner(ctx, uuid.New())
	assert.True(t, auth.IsNotFound(err))

	_, err = repo.Create(ctx, uuid.New(), "someone else")
	require.NoError(t, err)

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "write tests", list[0].Title)

	done, err := repo.SetDone(ctx, task.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Done)

	require.NoError(t, repo.Delete(ctx, task.ID))
	assert.True(t, auth.IsNotFound(repo.Delete(ctx, task.ID)))
}

type server struct {
	app *fiber.App
	svc *auth.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := newDB(t)

	svc := auth.NewService(db, auth.Options{
		SigningKey:             "tasks-test-signing-key",
		SigningMethod:          "HS256",
		TokenExpiration:        3600,
		RefreshTokenExpiration: 604800,
		BasePath:               "/api/v1",
		BcryptCost:             bcrypt.MinCost,
		RefreshChecksAccount:   true,
	}, auth.WithServiceLogger(auth.NopLogger()))

	app := fiber.New(fiber.Config{ErrorHandler: svc.ErrorHandler()})
	api := svc.Mount(app)
	tasks.NewController(tasks.NewRepository(db), svc.ErrorHandler()).RegisterRoutes(api)

	return &server{app: app, svc: svc}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (s *server) token(t *testing.T, email string) string {
	t.Helper()
	err := auth.NewRegisterAccountHandler(s.svc.Repo, s.svc.Hasher).
		WithLogger(auth.NopLogger()).
		Execute(context.Background(), auth.RegisterAccountMessage{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	pair, err := s.svc.Auther.Login(context.Background(), email, "Secret123")
	require.NoError(t, err)
	return pair.Access.AccessToken
}

func TestController_Ownership(t *testing.T) {
	s := newServer(t)
	tokenA := s.token(t, "a@x.com")
	tokenB := s.token(t, "b@x.com")

	resp := s.do(t, "POST", "/api/v1/tasks", tokenA, map[string]string{"title": "buy milk"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var task tasks.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	path := "/api/v1/tasks/" + task.ID.String()

	resp = s.do(t, "GET", path, tokenA, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "GET", path, tokenB, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, "PATCH", path, tokenB, map[string]bool{"done": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, "DELETE", path, tokenB, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, "GET", "/api/v1/tasks", tokenB, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listB []tasks.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listB))
	assert.Empty(t, listB)

	resp = s.do(t, "PATCH", path, tokenA, map[string]bool{"done": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "DELETE", path, tokenA, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "GET", path, tokenA, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestController_RequiresToken(t *testing.T) {
	s := newServer(t)

	resp := s.do(t, "GET", "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, "POST", "/api/v1/tasks", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestController_Validation(t *testing.T) {
	s := newServer(t)
	token := s.token(t, "a@x.com")

	resp := s.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
