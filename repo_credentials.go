package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Credentials is the bun backed CredentialStore
type Credentials interface {
	CredentialStore
	ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Credential, error)
	FindByIdentityRefTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) (*Credential, error)
	CreateTx(ctx context.Context, tx bun.IDB, credential *Credential, criteria ...repository.InsertCriteria) (*Credential, error)
	SaveTx(ctx context.Context, tx bun.IDB, credential *Credential) error
}

type credentials struct {
	repository.Repository[*Credential]
	db  *bun.DB
	now func() time.Time
}

var _ Credentials = (*credentials)(nil)

// NewCredentialsRepository returns a credential store backed by db.
// Credentials are identified by email.
func NewCredentialsRepository(db *bun.DB) Credentials {
	repo := repository.NewRepository[*Credential](db, repository.ModelHandlers[*Credential]{
		NewRecord: func() *Credential { return &Credential{} },
		GetID: func(c *Credential) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Credential, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &credentials{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *credentials) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	return r.FindByEmailTx(ctx, r.db, email)
}

func (r *credentials) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Credential, error) {
	record, err := r.Repository.GetByIdentifierTx(ctx, tx, email)
	if err != nil {
		return nil, recordError(err, "credential", map[string]any{"email": email})
	}
	return record, nil
}

func (r *credentials) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.ExistsByEmailTx(ctx, r.db, email)
}

func (r *credentials) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*Credential)(nil)).
		Where("email = ?", email).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check credential email")
	}
	return exists, nil
}

func (r *credentials) FindByIdentityRef(ctx context.Context, ref uuid.UUID) (*Credential, error) {
	return r.FindByIdentityRefTx(ctx, r.db, ref)
}

func (r *credentials) FindByIdentityRefTx(ctx context.Context, tx bun.IDB, ref uuid.UUID) (*Credential, error) {
	record := &Credential{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.identity_ref = ?", ref).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordError(err, "credential", map[string]any{"identityRef": ref.String()})
	}
	return record, nil
}

// CreateTx inserts a new credential row
func (r *credentials) CreateTx(ctx context.Context, tx bun.IDB, credential *Credential, criteria ...repository.InsertCriteria) (*Credential, error) {
	if credential == nil || credential.IdentityRef == uuid.Nil {
		return nil, Derive(ErrInvalidArguments, "credential requires an identity reference", nil)
	}

	if credential.ID == uuid.Nil {
		credential.ID = uuid.New()
	}
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = r.now().UTC()
	}

	record, err := r.Repository.CreateTx(ctx, tx, credential, criteria...)
	if err != nil {
		return nil, recordError(err, "credential", map[string]any{"email": credential.Email})
	}
	return record, nil
}

func (r *credentials) Save(ctx context.Context, credential *Credential) error {
	return r.SaveTx(ctx, r.db, credential)
}

// SaveTx inserts credential, or overwrites the password hash of the
// row holding the same identity ref. Email is never updated.
func (r *credentials) SaveTx(ctx context.Context, tx bun.IDB, credential *Credential) error {
	if credential == nil || credential.IdentityRef == uuid.Nil {
		return Derive(ErrInvalidArguments, "credential requires an identity reference", nil)
	}

	now := r.now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = &now

	// the row key of an existing row is kept, the fresh one only lands
	// on insert
	row := *credential
	row.ID = uuid.New()

	_, err := tx.NewInsert().
		Model(&row).
		On("CONFLICT (identity_ref) DO UPDATE").
		Set("password_hash = EXCLUDED.password_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return recordError(err, "credential", map[string]any{"email": credential.Email})
	}
	return nil
}

// recordError maps store errors: missing rows to ErrResourceNotFound,
// unique violations to ErrResourceAlreadyExists, anything else to an
// internal error.
func recordError(err error, resource string, md map[string]any) error {
	switch {
	case repository.IsRecordNotFound(err):
		return DeriveWithMetadata(ErrResourceNotFound, resource+" not found", md)
	case isUniqueViolation(err):
		return Derive(ErrResourceAlreadyExists, resource+" already exists", err).WithMetadata(md)
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to access "+resource)
	}
}

// isUniqueViolation recognizes the unique constraint errors of the
// sqlite and postgres drivers, and conflicts already classified by the
// repository layer.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var e *goerrors.Error
	if goerrors.As(err, &e) && e.Category == goerrors.CategoryConflict {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
