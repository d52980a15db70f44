package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle status of an account
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
)

// Credential is the email and password hash pair of an account. ID is
// the row key, IdentityRef the identity shared with the account.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"-"`
	IdentityRef   uuid.UUID  `bun:"identity_ref,notnull,unique,type:uuid" json:"identityRef"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updatedAt,omitempty"`
}

// Account is the owner of business resources. It shares its identity
// ref with exactly one credential.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"-"`
	IdentityRef   uuid.UUID     `bun:"identity_ref,notnull,unique,type:uuid" json:"identityRef"`
	FirstName     string        `bun:"first_name,notnull" json:"firstName"`
	LastName      string        `bun:"last_name,notnull" json:"lastName"`
	Roles         []Role        `bun:"roles,notnull" json:"roles"`
	Status        AccountStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero" json:"updatedAt,omitempty"`

	Credential *Credential `bun:"-" json:"-"`
}

// Email returns the credential email, empty when the credential was
// not loaded.
func (a *Account) Email() string {
	if a == nil || a.Credential == nil {
		return ""
	}
	return a.Credential.Email
}

// EnsureStatus defaults an empty status to ACTIVE
func (a *Account) EnsureStatus() {
	if a != nil && a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsActive reports whether the account is ACTIVE
func (a *Account) IsActive() bool {
	return a != nil && (a.Status == "" || a.Status == AccountStatusActive)
}
