package auth

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by NewViper
const EnvPrefix = "TASKAUTH"

// Options is the concrete Config loaded from file and environment
type Options struct {
	SigningKey             string `mapstructure:"signing_key"`
	SigningMethod          string `mapstructure:"signing_method"`
	ContextKey             string `mapstructure:"context_key"`
	TokenExpiration        int    `mapstructure:"token_expiration"`
	RefreshTokenExpiration int    `mapstructure:"refresh_token_expiration"`
	TokenLookup            string `mapstructure:"token_lookup"`
	AuthScheme             string `mapstructure:"auth_scheme"`
	Issuer                 string `mapstructure:"issuer"`
	BasePath               string `mapstructure:"base_path"`
	RefreshCookieName      string `mapstructure:"refresh_cookie_name"`
	CookieSecure           bool   `mapstructure:"cookie_secure"`
	BcryptCost             int    `mapstructure:"bcrypt_cost"`
	BlockInactiveAccounts  bool   `mapstructure:"block_inactive_accounts"`
	RefreshChecksAccount   bool   `mapstructure:"refresh_checks_account"`
	DatabaseDSN            string `mapstructure:"database_dsn"`
	ListenAddr             string `mapstructure:"listen_addr"`
	LogLevel               string `mapstructure:"log_level"`
}

var _ Config = Options{}

var defaults = map[string]any{
	"signing_key":              "",
	"signing_method":           "HS256",
	"context_key":              "user",
	"token_expiration":         int(DefaultAccessTokenTTL.Seconds()),
	"refresh_token_expiration": int(DefaultRefreshTokenTTL.Seconds()),
	"token_lookup":             "header:Authorization",
	"auth_scheme":              "Bearer",
	"issuer":                   DefaultIssuer,
	"base_path":                "/api/v1",
	"refresh_cookie_name":      "refreshToken",
	"cookie_secure":            true,
	"bcrypt_cost":              12,
	"block_inactive_accounts":  false,
	"refresh_checks_account":   true,
	"database_dsn":             "file:taskauth.db?cache=shared",
	"listen_addr":              ":8080",
	"log_level":                "info",
}

// NewViper returns a viper instance with defaults, TASKAUTH_* env
// binding and, when configFile is set, the file contents.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, Derive(ErrInvalidArguments, "failed to read config file", err).
				WithMetadata(map[string]any{"file": configFile})
		}
	}
	return v, nil
}

// LoadOptions decodes and validates the options held by v
func LoadOptions(v *viper.Viper) (*Options, error) {
	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, Derive(ErrInvalidArguments, "failed to decode config", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options can drive the token service
func (o Options) Validate() error {
	if o.SigningKey == "" {
		return Derive(ErrInvalidArguments, "signing_key is required", nil)
	}
	if o.SigningMethod != "" && o.SigningMethod != "HS256" {
		return DeriveWithMetadata(ErrInvalidArguments, "unsupported signing_method", map[string]any{
			"signing_method": o.SigningMethod,
		})
	}
	if o.TokenExpiration <= 0 || o.RefreshTokenExpiration <= 0 {
		return Derive(ErrInvalidArguments, "token expirations must be positive", nil)
	}
	if o.TokenExpiration > o.RefreshTokenExpiration {
		return DeriveWithMetadata(ErrInvalidArguments, "token_expiration must not exceed refresh_token_expiration", map[string]any{
			"token_expiration":         o.TokenExpiration,
			"refresh_token_expiration": o.RefreshTokenExpiration,
		})
	}
	return nil
}

func (o Options) GetSigningKey() string           { return o.SigningKey }
func (o Options) GetSigningMethod() string        { return o.SigningMethod }
func (o Options) GetContextKey() string           { return o.ContextKey }
func (o Options) GetTokenExpiration() int         { return o.TokenExpiration }
func (o Options) GetRefreshTokenExpiration() int  { return o.RefreshTokenExpiration }
func (o Options) GetTokenLookup() string          { return o.TokenLookup }
func (o Options) GetAuthScheme() string           { return o.AuthScheme }
func (o Options) GetIssuer() string               { return o.Issuer }
func (o Options) GetBasePath() string             { return o.BasePath }
func (o Options) GetRefreshCookieName() string    { return o.RefreshCookieName }
func (o Options) GetCookieSecure() bool           { return o.CookieSecure }
func (o Options) GetBcryptCost() int              { return o.BcryptCost }
func (o Options) GetBlockInactiveAccounts() bool  { return o.BlockInactiveAccounts }
func (o Options) GetRefreshChecksAccount() bool   { return o.RefreshChecksAccount }
