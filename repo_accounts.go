package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the bun backed AccountStore
type Accounts interface {
	AccountStore
	OwnerResolver
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	FindByIdentityRefTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) (*Account, error)
	DeleteTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) error
}

type accounts struct {
	repository.Repository[*Account]
	db          *bun.DB
	credentials Credentials
	now         func() time.Time
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository returns an account store backed by db. Accounts
// are identified by their identity ref.
func NewAccountsRepository(db *bun.DB, credentials Credentials) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "identity_ref"
		},
	})

	if credentials == nil {
		credentials = NewCredentialsRepository(db)
	}

	return &accounts{
		Repository:  repo,
		db:          db,
		credentials: credentials,
		now:         time.Now,
	}
}

func (a *accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	cred, err := a.credentials.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return nil, DeriveWithMetadata(ErrResourceNotFound, "account not found", map[string]any{
				"email": email,
			})
		}
		return nil, err
	}

	account, err := a.findAccount(ctx, a.db, cred.IdentityRef)
	if err != nil {
		return nil, err
	}
	account.Credential = cred
	return account, nil
}

func (a *accounts) FindByIdentityRef(ctx context.Context, ref uuid.UUID) (*Account, error) {
	return a.FindByIdentityRefTx(ctx, a.db, ref)
}

func (a *accounts) FindByIdentityRefTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) (*Account, error) {
	account, err := a.findAccount(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	cred, err := a.credentials.FindByIdentityRefTx(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	account.Credential = cred
	return account, nil
}

func (a *accounts) findAccount(ctx context.Context, tx bun.IDB, ref uuid.UUID) (*Account, error) {
	record, err := a.Repository.GetByIdentifierTx(ctx, tx, ref.String())
	if err != nil {
		return nil, recordError(err, "account", map[string]any{"identityRef": ref.String()})
	}
	record.EnsureStatus()
	return record, nil
}

func (a *accounts) List(ctx context.Context) ([]*Account, error) {
	records := []*Account{}
	if err := a.db.NewSelect().Model(&records).Order("created_at ASC", "identity_ref ASC").Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	if len(records) == 0 {
		return records, nil
	}

	refs := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.IdentityRef)
	}

	creds := []*Credential{}
	if err := a.db.NewSelect().Model(&creds).Where("identity_ref IN (?)", bun.In(refs)).Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list credentials")
	}

	byRef := make(map[uuid.UUID]*Credential, len(creds))
	for _, c := range creds {
		byRef[c.IdentityRef] = c
	}
	for _, r := range records {
		r.EnsureStatus()
		r.Credential = byRef[r.IdentityRef]
	}
	return records, nil
}

// Register stores the account and its credential in one transaction
func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	var out *Account
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.RegisterTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account == nil || account.Credential == nil {
		return nil, Derive(ErrInvalidArguments, "account requires a credential", nil)
	}

	email := account.Credential.Email
	exists, err := a.credentials.ExistsByEmailTx(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, DeriveWithMetadata(ErrResourceAlreadyExists, "account already exists", map[string]any{
			"email": email,
		})
	}

	prepareAccountDefaults(account)
	account.CreatedAt = a.now().UTC()
	account.Credential.IdentityRef = account.IdentityRef
	account.Credential.CreatedAt = account.CreatedAt

	cred, err := a.credentials.CreateTx(ctx, tx, account.Credential)
	if err != nil {
		return nil, err
	}

	record, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil {
		return nil, recordError(err, "account", map[string]any{"email": email})
	}
	record.Credential = cred
	return record, nil
}

// Update writes the profile, roles and status of account
func (a *accounts) Update(ctx context.Context, account *Account) (*Account, error) {
	if account == nil || account.IdentityRef == uuid.Nil {
		return nil, Derive(ErrInvalidArguments, "account requires an identity reference", nil)
	}

	now := a.now().UTC()
	account.UpdatedAt = &now
	account.EnsureStatus()

	res, err := a.db.NewUpdate().
		Model(account).
		Column("first_name", "last_name", "roles", "status", "updated_at").
		Where("identity_ref = ?", account.IdentityRef).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account")
	}
	if err := requireAffected(res, account.IdentityRef); err != nil {
		return nil, err
	}
	return a.FindByIdentityRef(ctx, account.IdentityRef)
}

func (a *accounts) UpdateStatus(ctx context.Context, ref uuid.UUID, status AccountStatus) (*Account, error) {
	now := a.now().UTC()
	res, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("identity_ref = ?", ref).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account status")
	}
	if err := requireAffected(res, ref); err != nil {
		return nil, err
	}
	return a.FindByIdentityRef(ctx, ref)
}

// Delete removes the account and its credential
func (a *accounts) Delete(ctx context.Context, ref uuid.UUID) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.DeleteTx(ctx, tx, ref)
	})
}

func (a *accounts) DeleteTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("identity_ref = ?", ref).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
	}
	if err := requireAffected(res, ref); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*Credential)(nil)).
		Where("identity_ref = ?", ref).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete credential")
	}
	return nil
}

// ResolveOwner returns the owner of an account, which is the account itself
func (a *accounts) ResolveOwner(ctx context.Context, ref uuid.UUID) (uuid.UUID, error) {
	account, err := a.findAccount(ctx, a.db, ref)
	if err != nil {
		return uuid.Nil, err
	}
	return account.IdentityRef, nil
}

func prepareAccountDefaults(account *Account) {
	if account == nil {
		return
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.IdentityRef == uuid.Nil {
		account.IdentityRef = uuid.New()
	}
	if len(account.Roles) == 0 {
		account.Roles = []Role{RoleUser}
	}
	account.EnsureStatus()
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffected, ref uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	if n == 0 {
		return DeriveWithMetadata(ErrResourceNotFound, "account not found", map[string]any{
			"identityRef": ref.String(),
		})
	}
	return nil
}
