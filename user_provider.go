package auth

import (
	"context"
	"sync"
)

// AccountProvider verifies credentials against the stores
type AccountProvider struct {
	accounts    AccountStore
	credentials CredentialStore
	hasher      PasswordAuthenticator
	logger      Logger

	dummyOnce sync.Once
	dummyHash string
}

var _ IdentityProvider = (*AccountProvider)(nil)

// NewAccountProvider creates a new AccountProvider
func NewAccountProvider(accounts AccountStore, credentials CredentialStore, hasher PasswordAuthenticator) *AccountProvider {
	return &AccountProvider{
		accounts:    accounts,
		credentials: credentials,
		hasher:      hasher,
		logger:      newDefaultLogger(),
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

// VerifyIdentity finds the credential for email and compares the
// password. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials.
func (p *AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	cred, err := p.credentials.FindByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		// spend a comparison so unknown emails are not faster to reject
		_ = p.hasher.ComparePasswordAndHash(password, p.fakeHash())
		return nil, ErrInvalidCredentials
	}

	if err := p.hasher.ComparePasswordAndHash(password, cred.PasswordHash); err != nil {
		return nil, Derive(ErrInvalidCredentials, "", err)
	}

	account, err := p.accounts.FindByIdentityRef(ctx, cred.IdentityRef)
	if err != nil {
		if IsNotFound(err) {
			p.logger.Error("credential has no account", "identity_ref", cred.IdentityRef.String())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return NewIdentityFromAccount(account), nil
}

// FindIdentityByEmail resolves an identity without a password
func (p *AccountProvider) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return NewIdentityFromAccount(account), nil
}

func (p *AccountProvider) fakeHash() string {
	p.dummyOnce.Do(func() {
		p.dummyHash = RandomPasswordHash(p.hasher)
	})
	return p.dummyHash
}
