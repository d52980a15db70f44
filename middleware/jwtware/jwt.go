package jwtware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
	ErrJWTInvalid            = errors.New("invalid JWT")
)

// AuthClaims mirrors the claims exposed by the auth package token service
type AuthClaims interface {
	Subject() string
	Email() string
	Expires() time.Time
	IssuedAt() time.Time
}

// VerificationStatus tags the outcome of a token verification
type VerificationStatus int

const (
	VerificationMalformed VerificationStatus = iota
	VerificationValid
	VerificationExpired
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationValid:
		return "valid"
	case VerificationExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// Verification is the tagged result of verifying a token. Claims is set
// for valid tokens and for expired tokens with a good signature.
type Verification struct {
	Status VerificationStatus
	Claims AuthClaims
	Err    error
}

// TokenVerifier verifies raw tokens
type TokenVerifier interface {
	Verify(tokenString string) Verification
}

// TokenVerifierFunc adapts a function into a TokenVerifier
type TokenVerifierFunc func(tokenString string) Verification

func (f TokenVerifierFunc) Verify(tokenString string) Verification {
	return f(tokenString)
}

// PrincipalResolver turns valid claims into a request context carrying
// the caller's security context.
type PrincipalResolver func(ctx context.Context, claims AuthClaims) (context.Context, error)

// Decision names the gate outcome for a request
type Decision string

const (
	DecisionPublic        Decision = "public"
	DecisionMissing       Decision = "missing"
	DecisionMalformed     Decision = "malformed"
	DecisionExpired       Decision = "expired"
	DecisionRejected      Decision = "rejected"
	DecisionAuthenticated Decision = "authenticated"
)

// DecisionListener is notified once per request with the gate decision
type DecisionListener func(c *fiber.Ctx, decision Decision)

type Config struct {
	// Filter returns true for requests that bypass the gate
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// ExpiredHandler handles tokens with a valid signature past expiry
	ExpiredHandler func(c *fiber.Ctx, v Verification) error
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// TokenVerifier is required
	TokenVerifier     TokenVerifier
	PrincipalResolver PrincipalResolver
	DecisionListeners []DecisionListener
}

// New returns the authentication gate middleware
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			cfg.notify(c, DecisionPublic)
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			cfg.notify(c, DecisionMissing)
			return cfg.ErrorHandler(c, err)
		}

		v := cfg.TokenVerifier.Verify(raw)
		switch v.Status {
		case VerificationExpired:
			cfg.notify(c, DecisionExpired)
			return cfg.ExpiredHandler(c, v)
		case VerificationValid:
		default:
			cfg.notify(c, DecisionMalformed)
			if v.Err == nil {
				v.Err = ErrJWTInvalid
			}
			return cfg.ErrorHandler(c, v.Err)
		}

		if cfg.PrincipalResolver != nil {
			ctx, err := cfg.PrincipalResolver(c.UserContext(), v.Claims)
			if err != nil {
				cfg.notify(c, DecisionRejected)
				return cfg.ErrorHandler(c, err)
			}
			c.SetUserContext(ctx)
		}

		c.Locals(cfg.ContextKey, v.Claims)
		cfg.notify(c, DecisionAuthenticated)

		return cfg.SuccessHandler(c)
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenVerifier == nil {
		panic("AUTH: JWT middleware configuration: TokenVerifier is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusForbidden).SendString(err.Error())
		}
	}

	if cfg.ExpiredHandler == nil {
		cfg.ExpiredHandler = func(c *fiber.Ctx, v Verification) error {
			c.Set("X-Token-Expired", "true")
			return c.Status(fiber.StatusUnauthorized).SendString("token has expired")
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) notify(c *fiber.Ctx, d Decision) {
	for _, listener := range cfg.DecisionListeners {
		if listener != nil {
			listener(c, d)
		}
	}
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// ExtractRawToken returns the first token found by extractors
func ExtractRawToken(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	err := ErrJWTMissingOrMalformed
	for _, extractor := range extractors {
		raw, e := extractor(c)
		if raw != "" && e == nil {
			return raw, nil
		}
		err = e
	}
	return "", err
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// GetExtractors parses a lookup definition such as
// "header:Authorization,cookie:jwt,query:auth_token".
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}

	return extractors
}

// jwtFromHeader extracts "<scheme> <token>" from a request header. The
// scheme must match exactly.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		if len(a) > l+1 && a[l] == ' ' && a[:l] == authScheme {
			if token := strings.TrimSpace(a[l+1:]); token != "" {
				return token, nil
			}
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
