package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-taskauth/middleware/jwtware"
)

// HeaderTokenExpired is set on responses rejecting an expired token
const HeaderTokenExpired = "X-Token-Expired"

// PublicRoutes returns a gate filter letting through the POST routes
// that need no token: login, refresh, forgot password and registration.
func PublicRoutes(basePath string) func(*fiber.Ctx) bool {
	base := strings.TrimSuffix(basePath, "/")
	public := map[string]struct{}{
		base + "/auth":                 {},
		base + "/auth/refresh":         {},
		base + "/auth/forgot-password": {},
		base + "/users":                {},
	}

	return func(c *fiber.Ctx) bool {
		if c.Method() != fiber.MethodPost {
			return false
		}
		path := c.Path()
		if len(path) > 1 {
			path = strings.TrimSuffix(path, "/")
		}
		_, ok := public[path]
		return ok
	}
}

type RouteAuthenticator struct {
	auth          *Auther
	cfg           Config
	metrics       *Metrics
	refreshMaxAge time.Duration
	now           func() time.Time
	Logger        Logger
	ErrorHandler  fiber.ErrorHandler
}

// NewHTTPAuthenticator binds an Auther to fiber: the gate middleware,
// the problem error handler and the refresh cookie.
func NewHTTPAuthenticator(auther *Auther, cfg Config) *RouteAuthenticator {
	refreshMaxAge := DefaultRefreshTokenTTL
	if cfg.GetRefreshTokenExpiration() > 0 {
		refreshMaxAge = time.Duration(cfg.GetRefreshTokenExpiration()) * time.Second
	}

	a := &RouteAuthenticator{
		cfg:           cfg,
		auth:          auther,
		refreshMaxAge: refreshMaxAge,
		now:           time.Now,
		Logger:        newDefaultLogger(),
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// WithMetrics counts gate decisions
func (a *RouteAuthenticator) WithMetrics(m *Metrics) *RouteAuthenticator {
	a.metrics = m
	return a
}

// WithClock overrides the clock used for cookie expiry and problem
// timestamps
func (a *RouteAuthenticator) WithClock(now func() time.Time) *RouteAuthenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// ProtectedRoute returns the authentication gate. Requests matching
// PublicRoutes pass untouched; every other request needs a valid access
// token naming a known account.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	cfg := jwtware.Config{
		Filter:            PublicRoutes(a.cfg.GetBasePath()),
		ErrorHandler:      a.ErrorHandler,
		ExpiredHandler:    a.expiredHandler,
		ContextKey:        a.cfg.GetContextKey(),
		TokenLookup:       a.cfg.GetTokenLookup(),
		AuthScheme:        a.cfg.GetAuthScheme(),
		TokenVerifier:     a.auth.TokenService(),
		PrincipalResolver: a.auth.ResolveSecurityContext,
	}

	RegisterDecisionListeners(&cfg, LoggingDecisionListener(a.Logger))
	if a.metrics != nil {
		RegisterDecisionListeners(&cfg, a.metrics.DecisionListener())
	}

	return jwtware.New(cfg)
}

func (a *RouteAuthenticator) expiredHandler(c *fiber.Ctx, v jwtware.Verification) error {
	return a.ErrorHandler(c, VerificationError(v))
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	return WriteProblem(c, a.Logger, err, a.now())
}

// Login authenticates the credentials and sets the refresh cookie
func (a *RouteAuthenticator) Login(c *fiber.Ctx, payload LoginPayload) (AccessToken, error) {
	pair, err := a.auth.Login(c.UserContext(), payload.GetEmail(), payload.GetPassword())
	if err != nil {
		return AccessToken{}, err
	}
	a.setRefreshCookie(c, pair)
	return pair.Access, nil
}

// Refresh exchanges the refresh cookie for a new access token and
// rotates the cookie.
func (a *RouteAuthenticator) Refresh(c *fiber.Ctx) (AccessToken, error) {
	raw := c.Cookies(a.refreshCookieName())
	if raw == "" {
		return AccessToken{}, Derive(ErrTokenInvalid, "missing refresh token", nil)
	}

	pair, err := a.auth.Refresh(c.UserContext(), raw)
	if err != nil {
		a.clearRefreshCookie(c)
		return AccessToken{}, err
	}

	a.setRefreshCookie(c, pair)
	return pair.Access, nil
}

func (a *RouteAuthenticator) refreshCookieName() string {
	if name := a.cfg.GetRefreshCookieName(); name != "" {
		return name
	}
	return "refreshToken"
}

func (a *RouteAuthenticator) refreshCookiePath() string {
	return strings.TrimSuffix(a.cfg.GetBasePath(), "/") + "/auth"
}

func (a *RouteAuthenticator) setRefreshCookie(c *fiber.Ctx, pair TokenPair) {
	expires := pair.RefreshExpiresAt
	if expires.IsZero() {
		expires = a.now().Add(a.refreshMaxAge)
	}
	c.Cookie(&fiber.Cookie{
		Name:     a.refreshCookieName(),
		Value:    pair.RefreshToken,
		Path:     a.refreshCookiePath(),
		MaxAge:   int(a.refreshMaxAge.Seconds()),
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (a *RouteAuthenticator) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.refreshCookieName(),
		Value:    "",
		Path:     a.refreshCookiePath(),
		MaxAge:   -1,
		Expires:  a.now().Add(-time.Hour * 24),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
