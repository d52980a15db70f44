package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-taskauth"
)

func TestCredentials_FindByEmailIsCaseSensitive(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	registerAccount(t, repo, "a@x.com", "Secret123")
	ctx := context.Background()

	cred, err := repo.Credentials().FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", cred.Email)

	_, err = repo.Credentials().FindByEmail(ctx, "A@X.com")
	assert.True(t, auth.IsNotFound(err))

	exists, err := repo.Credentials().ExistsByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Credentials().ExistsByEmail(ctx, "A@X.COM")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCredentials_SaveOverwritesByIdentityRef(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")
	ctx := context.Background()

	cred, err := repo.Credentials().FindByIdentityRef(ctx, account.IdentityRef)
	require.NoError(t, err)

	hash, err := testHasher().HashPassword("Changed456")
	require.NoError(t, err)
	cred.PasswordHash = hash
	require.NoError(t, repo.Credentials().Save(ctx, cred))

	stored, err := repo.Credentials().FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.IdentityRef, stored.IdentityRef)
	assert.True(t, testHasher().Verify("Changed456", stored.PasswordHash))
	assert.False(t, testHasher().Verify("Secret123", stored.PasswordHash))
}

func TestCredentials_SaveInsertsNewCredential(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	ctx := context.Background()

	ref := uuid.New()
	require.NoError(t, repo.Credentials().Save(ctx, &auth.Credential{
		IdentityRef:  ref,
		Email:        "solo@x.com",
		PasswordHash: "hash",
	}))

	cred, err := repo.Credentials().FindByIdentityRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "solo@x.com", cred.Email)
}

func TestAccounts_RegisterDefaults(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")

	assert.NotEqual(t, uuid.Nil, account.IdentityRef)
	assert.Equal(t, auth.AccountStatusActive, account.Status)
	assert.Equal(t, []auth.Role{auth.RoleUser}, account.Roles)

	found, err := repo.Accounts().FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.IdentityRef, found.IdentityRef)
	assert.Equal(t, "a@x.com", found.Email())
	assert.Equal(t, []auth.Role{auth.RoleUser}, found.Roles)
}

func TestAccounts_RowKeysAreDistinctFromIdentityRefs(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")
	ctx := context.Background()

	found, err := repo.Accounts().FindByIdentityRef(ctx, account.IdentityRef)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, found.ID)
	assert.NotEqual(t, found.IdentityRef, found.ID)

	require.NotNil(t, found.Credential)
	assert.NotEqual(t, uuid.Nil, found.Credential.ID)
	assert.NotEqual(t, found.ID, found.Credential.ID)
	assert.Equal(t, found.IdentityRef, found.Credential.IdentityRef)

	// a password overwrite keeps the stored row key
	before := found.Credential.ID
	require.NoError(t, repo.Credentials().Save(ctx, found.Credential))
	after, err := repo.Credentials().FindByIdentityRef(ctx, account.IdentityRef)
	require.NoError(t, err)
	assert.Equal(t, before, after.ID)
}

func TestRepositoryManager_RunInTx(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	require.NoError(t, repo.Validate())

	var tm repository.TransactionManager = repo
	err := tm.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Accounts().RegisterTx(ctx, tx, &auth.Account{
			Credential: &auth.Credential{Email: "tx@x.com", PasswordHash: "hash"},
		})
		require.NoError(t, err)
		return auth.ErrInternal
	})
	assert.ErrorIs(t, err, auth.ErrInternal)

	_, err = repo.Accounts().FindByEmail(context.Background(), "tx@x.com")
	assert.True(t, auth.IsNotFound(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = repo.RunInTx(ctx, nil, func(context.Context, bun.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccounts_IdentityRefsAreUnique(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	a := registerAccount(t, repo, "a@x.com", "Secret123")
	b := registerAccount(t, repo, "b@x.com", "Secret123")

	assert.NotEqual(t, a.IdentityRef, b.IdentityRef)
}

func TestAccounts_DuplicateEmail(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	registerAccount(t, repo, "a@x.com", "Secret123")

	err := auth.NewRegisterAccountHandler(repo, testHasher()).
		WithLogger(auth.NopLogger()).
		Execute(context.Background(), auth.RegisterAccountMessage{
			Email:    "a@x.com",
			Password: "Other1234",
		})
	assert.ErrorIs(t, err, auth.ErrResourceAlreadyExists)

	all, err := repo.Accounts().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccounts_ConcurrentDuplicateRegistration(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	handler := auth.NewRegisterAccountHandler(repo, testHasher()).WithLogger(auth.NopLogger())

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = handler.Execute(context.Background(), auth.RegisterAccountMessage{
				Email:    "race@x.com",
				Password: "Secret123",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case auth.IsNotFound(err):
			t.Fatalf("unexpected not found: %v", err)
		default:
			assert.ErrorIs(t, err, auth.ErrResourceAlreadyExists)
			conflicts++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)

	all, err := repo.Accounts().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccounts_ListLoadsCredentials(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	registerAccount(t, repo, "a@x.com", "Secret123")
	registerAccount(t, repo, "b@x.com", "Secret123", auth.RoleAdmin)

	all, err := repo.Accounts().List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	emails := []string{all[0].Email(), all[1].Email()}
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, emails)
}

func TestAccounts_UpdateAndStatus(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")
	ctx := context.Background()

	account.FirstName = "Ada"
	account.LastName = "Lovelace"
	updated, err := repo.Accounts().Update(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.NotNil(t, updated.UpdatedAt)

	updated, err = repo.Accounts().UpdateStatus(ctx, account.IdentityRef, auth.AccountStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusInactive, updated.Status)

	_, err = repo.Accounts().UpdateStatus(ctx, uuid.New(), auth.AccountStatusActive)
	assert.True(t, auth.IsNotFound(err))
}

func TestAccounts_DeleteRemovesCredential(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")
	ctx := context.Background()

	require.NoError(t, repo.Accounts().Delete(ctx, account.IdentityRef))

	_, err := repo.Accounts().FindByIdentityRef(ctx, account.IdentityRef)
	assert.True(t, auth.IsNotFound(err))

	_, err = repo.Credentials().FindByEmail(ctx, "a@x.com")
	assert.True(t, auth.IsNotFound(err))

	err = repo.Accounts().Delete(ctx, account.IdentityRef)
	assert.True(t, auth.IsNotFound(err))
}

func TestAccounts_ResolveOwner(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t))
	account := registerAccount(t, repo, "a@x.com", "Secret123")

	owner, err := repo.Accounts().ResolveOwner(context.Background(), account.IdentityRef)
	require.NoError(t, err)
	assert.Equal(t, account.IdentityRef, owner)

	_, err = repo.Accounts().ResolveOwner(context.Background(), uuid.New())
	assert.True(t, auth.IsNotFound(err))
}
