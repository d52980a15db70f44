package auth

// AccountIdentity adapts an Account into the Identity interface
type AccountIdentity struct {
	account *Account
}

// NewIdentityFromAccount returns an Identity adapter for the provided account.
func NewIdentityFromAccount(account *Account) Identity {
	if account == nil {
		return nil
	}
	return AccountIdentity{account: account}
}

// ID returns the identity ref as a string.
func (a AccountIdentity) ID() string {
	return a.account.IdentityRef.String()
}

// Email returns the credential email.
func (a AccountIdentity) Email() string {
	return a.account.Email()
}

// Roles returns the account role tags.
func (a AccountIdentity) Roles() []string {
	out := make([]string, 0, len(a.account.Roles))
	for _, r := range a.account.Roles {
		out = append(out, r.String())
	}
	return out
}

// Status returns the account lifecycle status.
func (a AccountIdentity) Status() AccountStatus {
	if a.account.Status == "" {
		return AccountStatusActive
	}
	return a.account.Status
}
