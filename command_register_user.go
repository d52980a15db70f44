package auth

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterAccountMessage struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Roles      []Role
	OnResponse func(account *Account)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// RegisterAccountHandler creates an account and its credential
type RegisterAccountHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewRegisterAccountHandler creates a handler with sane defaults.
func NewRegisterAccountHandler(repo RepositoryManager, hasher PasswordAuthenticator) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:     repo,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   newDefaultLogger(),
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if strings.TrimSpace(event.Email) == "" {
		return Derive(ErrInvalidArguments, "email is required", nil)
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account := &Account{
		FirstName: event.FirstName,
		LastName:  event.LastName,
		Roles:     event.Roles,
		Status:    AccountStatusActive,
		Credential: &Credential{
			Email:        event.Email,
			PasswordHash: hash,
		},
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = h.repo.Accounts().RegisterTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return AsError(err)
	}

	h.logger.Info("account registered", "identity_ref", account.IdentityRef.String())
	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventAccountRegistered,
		Actor:       ActorRef{ID: account.IdentityRef.String(), Type: "account"},
		IdentityRef: account.IdentityRef.String(),
		ToStatus:    account.Status,
		Metadata:    map[string]any{"email": event.Email},
	})

	if event.OnResponse != nil {
		event.OnResponse(account)
	}

	return nil
}
