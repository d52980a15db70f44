package auth

import (
	"context"
	"maps"
	"time"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    AccountStatus
	To      AccountStatus
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine moves an account between ACTIVE and INACTIVE.
// Only the account itself can change its status.
type AccountStateMachine interface {
	Toggle(ctx context.Context, principal Principal, opts ...TransitionOption) (*Account, error)
	Transition(ctx context.Context, principal Principal, target AccountStatus, opts ...TransitionOption) (*Account, error)
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(opts.metadata.Metadata, metadata)
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by accounts.
func NewAccountStateMachine(accounts AccountStore, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusActive: {
				AccountStatusInactive: {},
			},
			AccountStatusInactive: {
				AccountStatusActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       newDefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts     AccountStore
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// Toggle flips the principal's account between ACTIVE and INACTIVE
func (sm *accountStateMachine) Toggle(ctx context.Context, principal Principal, opts ...TransitionOption) (*Account, error) {
	account, err := sm.accounts.FindByIdentityRef(ctx, principal.IdentityRef)
	if err != nil {
		return nil, err
	}

	target := AccountStatusInactive
	if account.Status == AccountStatusInactive {
		target = AccountStatusActive
	}
	return sm.transition(ctx, principal, account, target, opts...)
}

func (sm *accountStateMachine) Transition(ctx context.Context, principal Principal, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	account, err := sm.accounts.FindByIdentityRef(ctx, principal.IdentityRef)
	if err != nil {
		return nil, err
	}
	return sm.transition(ctx, principal, account, target, opts...)
}

func (sm *accountStateMachine) transition(ctx context.Context, principal Principal, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	account.EnsureStatus()
	from := account.Status
	if from == target {
		return account, nil
	}

	if !sm.canTransition(from, target) {
		return nil, DeriveWithMetadata(ErrInvalidTransition, "", map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	actor := actorFromPrincipal(principal)
	tc := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    from,
		To:      target,
		Meta:    options.metadata,
	}

	if err := runHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	updated, err := sm.accounts.UpdateStatus(ctx, account.IdentityRef, target)
	if err != nil {
		return nil, err
	}

	if err := runHooks(ctx, options.afterHooks, tc); err != nil {
		return nil, err
	}

	md := map[string]any{}
	if tc.Meta.Reason != "" {
		md["reason"] = tc.Meta.Reason
	}
	maps.Copy(md, tc.Meta.Metadata)

	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType:   ActivityEventAccountStatusChanged,
		Actor:       actor,
		IdentityRef: account.IdentityRef.String(),
		FromStatus:  from,
		ToStatus:    target,
		Metadata:    md,
	})

	return updated, nil
}

func runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return AsError(err)
		}
	}
	return nil
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
