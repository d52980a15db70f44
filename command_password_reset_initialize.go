package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RequestPasswordResetMessage struct {
	Email string
}

func (m RequestPasswordResetMessage) Type() string { return "auth.password.reset_request" }

// RequestPasswordResetHandler hands a reset link request to the
// notifier. Unknown emails succeed silently.
type RequestPasswordResetHandler struct {
	credentials CredentialStore
	notifier    PasswordResetNotifier
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

// NewRequestPasswordResetHandler creates a handler with sane defaults.
func NewRequestPasswordResetHandler(credentials CredentialStore, notifier PasswordResetNotifier) *RequestPasswordResetHandler {
	h := &RequestPasswordResetHandler{
		credentials: credentials,
		notifier:    notifier,
		activity:    noopActivitySink{},
		logger:      newDefaultLogger(),
		now:         time.Now,
	}
	if h.notifier == nil {
		h.notifier = loggingResetNotifier{logger: h.logger}
	}
	return h
}

// WithActivitySink sets the sink used to emit reset events.
func (h *RequestPasswordResetHandler) WithActivitySink(sink ActivitySink) *RequestPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestPasswordResetHandler) WithLogger(logger Logger) *RequestPasswordResetHandler {
	if logger != nil {
		h.logger = logger
		if n, ok := h.notifier.(loggingResetNotifier); ok {
			n.logger = logger
			h.notifier = n
		}
	}
	return h
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	cred, err := h.credentials.FindByEmail(ctx, event.Email)
	if err != nil {
		if IsNotFound(err) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	if err := h.notifier.SendPasswordResetLink(ctx, cred); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send password reset link")
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventPasswordResetRequest,
		Actor:       anonymousActor,
		IdentityRef: cred.IdentityRef.String(),
	})
	return nil
}

type loggingResetNotifier struct {
	logger Logger
}

func (n loggingResetNotifier) SendPasswordResetLink(_ context.Context, cred *Credential) error {
	n.logger.Info("password reset link requested", "identity_ref", cred.IdentityRef.String())
	return nil
}
