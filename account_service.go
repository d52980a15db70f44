package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountService runs account operations on behalf of a principal
type AccountService struct {
	accounts  Accounts
	ownership *OwnershipGate
	lifecycle AccountStateMachine
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

// NewAccountService creates an AccountService. Account reads are
// guarded by an ownership gate where the owner of an account is itself.
func NewAccountService(accounts Accounts, lifecycle AccountStateMachine) *AccountService {
	return &AccountService{
		accounts:  accounts,
		ownership: NewOwnershipGate(accounts),
		lifecycle: lifecycle,
		activity:  noopActivitySink{},
		logger:    newDefaultLogger(),
		now:       time.Now,
	}
}

func (s *AccountService) WithActivitySink(sink ActivitySink) *AccountService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *AccountService) WithLogger(logger Logger) *AccountService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Get returns the account ref if the principal owns it
func (s *AccountService) Get(ctx context.Context, principal Principal, ref uuid.UUID) (*Account, error) {
	if err := s.ownership.Check(ctx, principal, ref); err != nil {
		return nil, err
	}
	return s.accounts.FindByIdentityRef(ctx, ref)
}

// List returns every account
func (s *AccountService) List(ctx context.Context) ([]*Account, error) {
	return s.accounts.List(ctx)
}

// UpdateProfile changes the display names of the principal's account
func (s *AccountService) UpdateProfile(ctx context.Context, principal Principal, firstName, lastName string) (*Account, error) {
	account, err := s.accounts.FindByIdentityRef(ctx, principal.IdentityRef)
	if err != nil {
		return nil, err
	}

	account.FirstName = firstName
	account.LastName = lastName

	updated, err := s.accounts.Update(ctx, account)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, s.now, ActivityEvent{
		EventType:   ActivityEventAccountUpdated,
		Actor:       actorFromPrincipal(principal),
		IdentityRef: principal.IdentityRef.String(),
	})
	return updated, nil
}

// ToggleStatus flips the principal's own account status
func (s *AccountService) ToggleStatus(ctx context.Context, principal Principal) (*Account, error) {
	return s.lifecycle.Toggle(ctx, principal)
}

// Delete removes account ref and its credential. Callers gate this
// operation by role.
func (s *AccountService) Delete(ctx context.Context, principal Principal, ref uuid.UUID) error {
	if err := s.accounts.Delete(ctx, ref); err != nil {
		return err
	}

	s.logger.Info("account deleted", "identity_ref", ref.String(), "actor", principal.IdentityRef.String())
	recordActivity(ctx, s.activity, s.logger, s.now, ActivityEvent{
		EventType:   ActivityEventAccountDeleted,
		Actor:       actorFromPrincipal(principal),
		IdentityRef: ref.String(),
	})
	return nil
}
