package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	goerrors "github.com/goliatone/go-errors"
)

type UpdatePasswordMessage struct {
	Principal   Principal
	NewPassword string
}

func (m UpdatePasswordMessage) Type() string { return "auth.password.update" }

// UpdatePasswordHandler replaces the password hash of the principal's
// credential.
type UpdatePasswordHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewUpdatePasswordHandler creates a handler with sane defaults.
func NewUpdatePasswordHandler(repo RepositoryManager, hasher PasswordAuthenticator) *UpdatePasswordHandler {
	return &UpdatePasswordHandler{
		repo:     repo,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   newDefaultLogger(),
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit password events.
func (h *UpdatePasswordHandler) WithActivitySink(sink ActivitySink) *UpdatePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdatePasswordHandler) WithLogger(logger Logger) *UpdatePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdatePasswordHandler) Execute(ctx context.Context, event UpdatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdatePasswordHandler) execute(ctx context.Context, event UpdatePasswordMessage) error {
	hash, err := h.hasher.HashPassword(event.NewPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		cred, err := h.repo.Credentials().FindByIdentityRefTx(ctx, tx, event.Principal.IdentityRef)
		if err != nil {
			return err
		}

		cred.PasswordHash = hash
		return h.repo.Credentials().SaveTx(ctx, tx, cred)
	})
	if err != nil {
		return AsError(err)
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventPasswordUpdated,
		Actor:       actorFromPrincipal(event.Principal),
		IdentityRef: event.Principal.IdentityRef.String(),
	})
	return nil
}
