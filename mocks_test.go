package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-taskauth"
)

// newTestDB opens a private in-memory database with the auth tables
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	return db
}

func testOptions() auth.Options {
	return auth.Options{
		SigningKey:             string(testSigningKey),
		SigningMethod:          "HS256",
		ContextKey:             "user",
		TokenExpiration:        3600,
		RefreshTokenExpiration: 604800,
		TokenLookup:            "header:Authorization",
		AuthScheme:             "Bearer",
		Issuer:                 auth.DefaultIssuer,
		BasePath:               "/api/v1",
		RefreshCookieName:      "refreshToken",
		CookieSecure:           false,
		BcryptCost:             bcrypt.MinCost,
		RefreshChecksAccount:   true,
	}
}

func testHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

// registerAccount stores an account with the given roles
func registerAccount(t *testing.T, repo auth.RepositoryManager, email, password string, roles ...auth.Role) *auth.Account {
	t.Helper()

	var created *auth.Account
	err := auth.NewRegisterAccountHandler(repo, testHasher()).
		WithLogger(auth.NopLogger()).
		Execute(context.Background(), auth.RegisterAccountMessage{
			Email:    email,
			Password: password,
			Roles:    roles,
			OnResponse: func(a *auth.Account) {
				created = a
			},
		})
	require.NoError(t, err)
	require.NotNil(t, created)
	return created
}

// recordingSink keeps every recorded activity event
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// MockNotifier implements auth.PasswordResetNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPasswordResetLink(ctx context.Context, cred *auth.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}
