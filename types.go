package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging interface used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated account
type Identity interface {
	ID() string
	Email() string
	Roles() []string
	Status() AccountStatus
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetRefreshTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetBasePath() string
	GetRefreshCookieName() string
	GetCookieSecure() bool
	GetBcryptCost() int
	GetBlockInactiveAccounts() bool
	GetRefreshChecksAccount() bool
}

// IdentityProvider verifies login credentials and resolves identities
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// CredentialStore persists email and password hash pairs.
// Email lookups are case sensitive exact matches.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByIdentityRef(ctx context.Context, ref uuid.UUID) (*Credential, error)
	// Save inserts the credential or overwrites the password hash of the
	// credential that already holds the same identity ref.
	Save(ctx context.Context, credential *Credential) error
}

// AccountStore persists accounts together with their credential
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByIdentityRef(ctx context.Context, ref uuid.UUID) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Register(ctx context.Context, account *Account) (*Account, error)
	Update(ctx context.Context, account *Account) (*Account, error)
	UpdateStatus(ctx context.Context, ref uuid.UUID, status AccountStatus) (*Account, error)
	Delete(ctx context.Context, ref uuid.UUID) error
}

// TokenService issues and verifies access and refresh tokens
type TokenService interface {
	Issue(identityRef, email string) (AccessToken, error)
	IssueRefresh(identityRef, email string) (string, time.Time, error)
	Refresh(refreshToken string) (AccessToken, error)
	RefreshEmail(refreshToken string) (string, error)
	ExtractSubjectEmail(token string) (string, error)
	Verify(token string) Verification
}

// AccessToken is the login and refresh response payload
type AccessToken struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// TokenPair is the result of a successful login
type TokenPair struct {
	Access           AccessToken
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// PasswordResetNotifier delivers password reset links. Delivery is
// owned by the host application.
type PasswordResetNotifier interface {
	SendPasswordResetLink(ctx context.Context, credential *Credential) error
}
