// Package tasks is a per-account task list. Every task belongs to the
// account that created it and only that account can read or change it.
package tasks

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-taskauth"
)

// Task is a single item of an account's list. ID doubles as the public
// task ref.
type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"ref"`
	OwnerRef      uuid.UUID  `bun:"owner_ref,notnull,type:uuid" json:"ownerRef"`
	Title         string     `bun:"title,notnull" json:"title"`
	Done          bool       `bun:"done,notnull" json:"done"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updatedAt,omitempty"`
}

// Repository stores tasks and resolves their owners
type Repository struct {
	repository.Repository[*Task]
	db  *bun.DB
	now func() time.Time
}

var _ auth.OwnerResolver = (*Repository)(nil)

func NewRepository(db *bun.DB) *Repository {
	repo := repository.NewRepository[*Task](db, repository.ModelHandlers[*Task]{
		NewRecord: func() *Task { return &Task{} },
		GetID: func(t *Task) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Task, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})
	return &Repository{Repository: repo, db: db, now: time.Now}
}

// Migrate creates the tasks table
func Migrate(ctx context.Context, db bun.IDB) error {
	return auth.Migrate(ctx, db, (*Task)(nil))
}

func (r *Repository) Create(ctx context.Context, owner uuid.UUID, title string) (*Task, error) {
	task := &Task{
		ID:        uuid.New(),
		OwnerRef:  owner,
		Title:     title,
		CreatedAt: r.now().UTC(),
	}
	record, err := r.Repository.CreateTx(ctx, r.db, task)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create task")
	}
	return record, nil
}

func (r *Repository) Get(ctx context.Context, ref uuid.UUID) (*Task, error) {
	task, err := r.Repository.GetByID(ctx, ref.String())
	if err != nil {
		return nil, notFound(err, ref)
	}
	return task, nil
}

// ListByOwner returns the tasks of owner, oldest first
func (r *Repository) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Task, error) {
	out := []*Task{}
	err := r.db.NewSelect().Model(&out).
		Where("owner_ref = ?", owner).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list tasks")
	}
	return out, nil
}

func (r *Repository) SetDone(ctx context.Context, ref uuid.UUID, done bool) (*Task, error) {
	now := r.now().UTC()
	res, err := r.db.NewUpdate().Model((*Task)(nil)).
		Set("done = ?", done).
		Set("updated_at = ?", now).
		Where("id = ?", ref).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update task")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, notFound(repository.NewRecordNotFound(), ref)
	}
	return r.Get(ctx, ref)
}

func (r *Repository) Delete(ctx context.Context, ref uuid.UUID) error {
	res, err := r.db.NewDelete().Model((*Task)(nil)).Where("id = ?", ref).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete task")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(repository.NewRecordNotFound(), ref)
	}
	return nil
}

// ResolveOwner returns the account owning task ref
func (r *Repository) ResolveOwner(ctx context.Context, ref uuid.UUID) (uuid.UUID, error) {
	task, err := r.Get(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}
	return task.OwnerRef, nil
}

func notFound(err error, ref uuid.UUID) error {
	if repository.IsRecordNotFound(err) {
		return auth.DeriveWithMetadata(auth.ErrResourceNotFound, "task not found", map[string]any{
			"ref": ref.String(),
		})
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load task")
}
