package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-taskauth"
)

func newProvider(t *testing.T) (auth.RepositoryManager, *auth.AccountProvider) {
	t.Helper()
	repo := auth.NewRepositoryManager(newTestDB(t))
	provider := auth.NewAccountProvider(repo.Accounts(), repo.Credentials(), testHasher()).
		WithLogger(auth.NopLogger())
	return repo, provider
}

func TestAccountProvider_VerifyIdentity(t *testing.T) {
	repo, provider := newProvider(t)
	account := registerAccount(t, repo, "a@x.com", "Secret123", auth.RoleAdmin)

	identity, err := provider.VerifyIdentity(context.Background(), "a@x.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, account.IdentityRef.String(), identity.ID())
	assert.Equal(t, "a@x.com", identity.Email())
	assert.Contains(t, identity.Roles(), "ADMIN")
	assert.Equal(t, auth.AccountStatusActive, identity.Status())
}

func TestAccountProvider_FailuresAreIndistinguishable(t *testing.T) {
	repo, provider := newProvider(t)
	registerAccount(t, repo, "a@x.com", "Secret123")

	_, wrongPassword := provider.VerifyIdentity(context.Background(), "a@x.com", "nope")
	_, unknownEmail := provider.VerifyIdentity(context.Background(), "b@x.com", "Secret123")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.ErrorIs(t, wrongPassword, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, auth.ErrInvalidCredentials)
	assert.Equal(t, auth.AsError(wrongPassword).Message, auth.AsError(unknownEmail).Message)
}

func TestAccountProvider_FindIdentityByEmail(t *testing.T) {
	repo, provider := newProvider(t)
	account := registerAccount(t, repo, "a@x.com", "Secret123")

	identity, err := provider.FindIdentityByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.IdentityRef.String(), identity.ID())

	_, err = provider.FindIdentityByEmail(context.Background(), "nobody@x.com")
	assert.True(t, auth.IsNotFound(err))
}
