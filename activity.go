package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountRegistered    ActivityEventType = "account.registered"
	ActivityEventAccountUpdated       ActivityEventType = "account.updated"
	ActivityEventAccountDeleted       ActivityEventType = "account.deleted"
	ActivityEventAccountStatusChanged ActivityEventType = "account.status.changed"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed       ActivityEventType = "auth.token.refreshed"
	ActivityEventPasswordUpdated      ActivityEventType = "auth.password.updated"
	ActivityEventPasswordResetRequest ActivityEventType = "auth.password.reset_requested"
)

// ActorRef identifies who triggered an event
type ActorRef struct {
	ID   string
	Type string
}

func actorFromPrincipal(p Principal) ActorRef {
	return ActorRef{ID: p.IdentityRef.String(), Type: "account"}
}

var anonymousActor = ActorRef{Type: "anonymous"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	IdentityRef string
	FromStatus  AccountStatus
	ToStatus    AccountStatus
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggingActivitySink writes every event to logger at info level
func LoggingActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, e ActivityEvent) error {
		logger.Info("activity",
			"event", string(e.EventType),
			"actor_type", e.Actor.Type,
			"actor_id", e.Actor.ID,
			"identity_ref", e.IdentityRef,
			"metadata", e.Metadata,
		)
		return nil
	})
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink record error", "error", err, "event", string(event.EventType))
	}
}
