package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-print"
)

// Auther runs login, refresh and principal resolution
type Auther struct {
	provider             IdentityProvider
	accounts             AccountStore
	tokenService         TokenService
	logger               Logger
	activitySink         ActivitySink
	metrics              *Metrics
	blockInactive        bool
	refreshChecksAccount bool
	now                  func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, accounts AccountStore, tokens TokenService, opts Config) *Auther {
	return &Auther{
		provider:             provider,
		accounts:             accounts,
		tokenService:         tokens,
		logger:               newDefaultLogger(),
		activitySink:         noopActivitySink{},
		blockInactive:        opts.GetBlockInactiveAccounts(),
		refreshChecksAccount: opts.GetRefreshChecksAccount(),
		now:                  time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithMetrics records login and refresh outcomes
func (s *Auther) WithMetrics(m *Metrics) *Auther {
	s.metrics = m
	return s
}

// WithBlockInactiveAccounts makes INACTIVE accounts unable to log in,
// refresh or pass the gate.
func (s *Auther) WithBlockInactiveAccounts(block bool) *Auther {
	s.blockInactive = block
	return s
}

// WithRefreshChecksAccount makes refresh look up the account named by
// the refresh token before issuing a new access token.
func (s *Auther) WithRefreshChecksAccount(check bool) *Auther {
	s.refreshChecksAccount = check
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies email and password and issues a token pair
func (s *Auther) Login(ctx context.Context, email, password string) (TokenPair, error) {
	pair, err := s.login(ctx, email, password)
	s.metrics.observeLogin(err)
	return pair, err
}

func (s *Auther) login(ctx context.Context, email, password string) (TokenPair, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Warn("login verify identity error", "email", email, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, anonymousActor, "", map[string]any{
			"email": email,
			"error": AsError(err).TextCode,
		})
		return TokenPair{}, err
	}

	actor := ActorRef{ID: identity.ID(), Type: "account"}
	if err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("login blocked due to account status", "identity_ref", identity.ID(), "status", identity.Status())
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, actor, identity.ID(), map[string]any{
			"email":  email,
			"status": string(identity.Status()),
		})
		return TokenPair{}, err
	}

	access, err := s.tokenService.Issue(identity.ID(), identity.Email())
	if err != nil {
		return TokenPair{}, err
	}

	refresh, refreshExp, err := s.tokenService.IssueRefresh(identity.ID(), identity.Email())
	if err != nil {
		return TokenPair{}, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, actor, identity.ID(), map[string]any{
		"email": email,
	})

	return TokenPair{
		Access:           access,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a refresh token for a new access token and a
// rotated refresh token.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	s.metrics.observeRefresh(err)
	return pair, err
}

func (s *Auther) refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	email, err := s.tokenService.RefreshEmail(refreshToken)
	if err != nil {
		s.logger.Debug("refresh token rejected", "error", err)
		return TokenPair{}, err
	}

	subject := email
	if s.refreshChecksAccount {
		account, err := s.accounts.FindByEmail(ctx, email)
		if err != nil {
			if IsNotFound(err) {
				return TokenPair{}, Derive(ErrTokenInvalid, "refresh token names an unknown account", nil)
			}
			return TokenPair{}, err
		}
		if err := s.ensureIdentityActive(NewIdentityFromAccount(account)); err != nil {
			return TokenPair{}, err
		}
		subject = account.IdentityRef.String()
	}

	access, err := s.tokenService.Refresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, rotatedExp, err := s.tokenService.IssueRefresh(subject, email)
	if err != nil {
		return TokenPair{}, err
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, ActorRef{ID: subject, Type: "account"}, subject, map[string]any{
		"email": email,
	})

	return TokenPair{
		Access:           access,
		RefreshToken:     rotated,
		RefreshExpiresAt: rotatedExp,
	}, nil
}

// ResolveSecurityContext loads the account named by claims and attaches
// its security context to ctx. It is the gate's principal resolver.
func (s *Auther) ResolveSecurityContext(ctx context.Context, claims AuthClaims) (context.Context, error) {
	account, err := s.accounts.FindByEmail(ctx, claims.Email())
	if err != nil {
		if IsNotFound(err) {
			return nil, Derive(ErrTokenInvalid, "token names an unknown account", nil)
		}
		return nil, err
	}

	if err := s.ensureIdentityActive(NewIdentityFromAccount(account)); err != nil {
		return nil, err
	}

	sc := NewSecurityContext(account)
	s.logger.Debug("security context resolved", "principal", print.MaybePrettyJSON(map[string]any{
		"identityRef": sc.Principal().IdentityRef.String(),
		"authorities": sc.Authorities(),
	}))

	ctx = WithSecurityContext(ctx, sc)
	return WithClaimsContext(ctx, claims), nil
}

func (s *Auther) ensureIdentityActive(identity Identity) error {
	if !s.blockInactive || identity == nil {
		return nil
	}
	if identity.Status() == AccountStatusInactive {
		return DeriveWithMetadata(ErrAccountInactive, "", map[string]any{"identityRef": identity.ID()})
	}
	return nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, identityRef string, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType:   eventType,
		Actor:       actor,
		IdentityRef: identityRef,
		Metadata:    metadata,
	})
}
