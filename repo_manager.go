package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Credentials() Credentials
}

type mngr struct {
	db          *bun.DB
	accounts    Accounts
	credentials Credentials
}

// NewRepositoryManager wires the account and credential repositories
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	credentials := NewCredentialsRepository(db)
	return &mngr{
		db:          db,
		accounts:    NewAccountsRepository(db, credentials),
		credentials: credentials,
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Credentials() Credentials {
	return m.credentials
}

// Models lists the tables owned by this package
var Models = []any{
	(*Credential)(nil),
	(*Account)(nil),
}

// Migrate creates the tables for models, defaulting to Models
func Migrate(ctx context.Context, db bun.IDB, models ...any) error {
	if len(models) == 0 {
		models = Models
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}
	return nil
}
