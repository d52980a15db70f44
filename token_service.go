package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultIssuer          = "self"
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenServiceImpl implements the TokenService interface with HS256
type TokenServiceImpl struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	logger     Logger
	now        func() time.Time
	parser     *jwt.Parser
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock overrides the clock used to stamp and check tokens
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenTTL overrides the access and refresh lifetimes. An access
// lifetime longer than the refresh lifetime is clamped to it.
func WithTokenTTL(access, refresh time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if access > 0 {
			ts.accessTTL = access
		}
		if refresh > 0 {
			ts.refreshTTL = refresh
		}
	}
}

// WithTokenIssuer overrides the issuer claim
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if issuer != "" {
			ts.issuer = issuer
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		signingKey: signingKey,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		issuer:     DefaultIssuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	ts.logger = normalizeLogger(ts.logger)

	if ts.accessTTL > ts.refreshTTL {
		ts.logger.Warn("access token ttl exceeds refresh token ttl, clamping",
			"access_ttl", ts.accessTTL.String(),
			"refresh_ttl", ts.refreshTTL.String(),
		)
		ts.accessTTL = ts.refreshTTL
	}
	ts.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	return ts
}

// NewTokenServiceFromConfig builds a token service from cfg
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	base := []TokenServiceOption{
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenTTL(
			time.Duration(cfg.GetTokenExpiration())*time.Second,
			time.Duration(cfg.GetRefreshTokenExpiration())*time.Second,
		),
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), append(base, opts...)...)
}

// Issue signs an access token for identityRef and email
func (ts *TokenServiceImpl) Issue(identityRef, email string) (AccessToken, error) {
	signed, _, err := ts.sign(identityRef, email, tokenTypeAccess, ts.accessTTL)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		AccessToken: signed,
		ExpiresIn:   int64(ts.accessTTL / time.Second),
	}, nil
}

// IssueRefresh signs a refresh token and returns its expiration
func (ts *TokenServiceImpl) IssueRefresh(identityRef, email string) (string, time.Time, error) {
	return ts.sign(identityRef, email, tokenTypeRefresh, ts.refreshTTL)
}

// Refresh exchanges a refresh token for a new access token. The email
// claim becomes the subject of the new token.
func (ts *TokenServiceImpl) Refresh(refreshToken string) (AccessToken, error) {
	email, err := ts.RefreshEmail(refreshToken)
	if err != nil {
		return AccessToken{}, err
	}
	return ts.Issue(email, email)
}

// RefreshEmail verifies a refresh token and returns its email claim.
// Every failure is reported as ErrTokenInvalid.
func (ts *TokenServiceImpl) RefreshEmail(refreshToken string) (string, error) {
	v := ts.verify(refreshToken, tokenTypeRefresh)
	if v.Status != VerificationValid {
		return "", Derive(ErrTokenInvalid, "", v.Err)
	}
	return v.Claims.Email(), nil
}

// ExtractSubjectEmail returns the email claim of a valid access token
func (ts *TokenServiceImpl) ExtractSubjectEmail(token string) (string, error) {
	v := ts.Verify(token)
	if err := VerificationError(v); err != nil {
		return "", err
	}
	return v.Claims.Email(), nil
}

// Verify checks an access token and reports the outcome
func (ts *TokenServiceImpl) Verify(token string) Verification {
	return ts.verify(token, tokenTypeAccess)
}

func (ts *TokenServiceImpl) verify(raw, tokenType string) Verification {
	claims := &JWTClaims{}
	token, err := ts.parser.ParseWithClaims(raw, claims, ts.keyFunc)
	if err != nil {
		return malformed(err)
	}
	if !token.Valid {
		return malformed(errors.New("token signature not verified"))
	}

	validator := jwt.NewValidator(
		jwt.WithIssuer(ts.issuer),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	)
	if err := validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Verification{
				Status: VerificationExpired,
				Claims: claims,
				Err:    err,
			}
		}
		return malformed(err)
	}

	if claims.TokenType != tokenType {
		return malformed(fmt.Errorf("unexpected token type %q", claims.TokenType))
	}
	if claims.EmailAddr == "" {
		return malformed(errors.New("token has no email claim"))
	}

	return Verification{Status: VerificationValid, Claims: claims}
}

func (ts *TokenServiceImpl) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("token verification encountered unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return ts.signingKey, nil
}

func (ts *TokenServiceImpl) sign(subject, email, tokenType string, ttl time.Duration) (string, time.Time, error) {
	issued := ts.now()
	now := issued.Truncate(time.Second)

	// claims carry whole seconds, exp is rounded up so the token stays
	// valid for at least ttl after issued
	expiresAt := issued.Add(ttl)
	if rounded := expiresAt.Truncate(time.Second); !rounded.Equal(expiresAt) {
		expiresAt = rounded.Add(time.Second)
	}
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		EmailAddr: email,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, expiresAt, nil
}
