package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// EnvConfig sources every auth option from the environment. Three distinct
// signing secrets are required; the three token classes must never share one.
type EnvConfig struct {
	IdentitySecret string `env:"AUTH_IDENTITY_SECRET,notEmpty"`
	AuthSecret     string `env:"AUTH_SECONDARY_SECRET,notEmpty"`
	OneTimeSecret  string `env:"AUTH_ONE_TIME_SECRET,notEmpty"`

	IdentityTokenTTL time.Duration `env:"AUTH_IDENTITY_TOKEN_TTL" envDefault:"25h"`
	SessionDuration  time.Duration `env:"AUTH_SESSION_DURATION" envDefault:"25h"`
	OTPWindow        time.Duration `env:"AUTH_OTP_WINDOW" envDefault:"5m"`

	BcryptCost int    `env:"AUTH_BCRYPT_COST" envDefault:"12"`
	ClientURL  string `env:"AUTH_CLIENT_URL" envDefault:"http://localhost:3000"`
	Issuer     string `env:"AUTH_ISSUER" envDefault:"authd"`

	// AllowPasswordBootstrap lets a password set on an unknown email create a
	// bare local identity instead of failing. Off unless explicitly enabled.
	AllowPasswordBootstrap bool `env:"AUTH_ALLOW_PASSWORD_BOOTSTRAP" envDefault:"false"`
}

var _ Config = (*EnvConfig)(nil)

// NewEnvConfig parses configuration from the process environment.
func NewEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to parse auth environment")
	}

	if cfg.IdentitySecret == cfg.AuthSecret ||
		cfg.IdentitySecret == cfg.OneTimeSecret ||
		cfg.AuthSecret == cfg.OneTimeSecret {
		return nil, errors.New("token signing secrets must be distinct", errors.CategoryOperation).
			WithTextCode("SHARED_SECRET")
	}

	return cfg, nil
}

func (c *EnvConfig) GetIdentitySecret() string          { return c.IdentitySecret }
func (c *EnvConfig) GetAuthSecret() string              { return c.AuthSecret }
func (c *EnvConfig) GetOneTimeSecret() string           { return c.OneTimeSecret }
func (c *EnvConfig) GetIdentityTokenTTL() time.Duration { return c.IdentityTokenTTL }
func (c *EnvConfig) GetSessionDuration() time.Duration  { return c.SessionDuration }
func (c *EnvConfig) GetOTPWindow() time.Duration        { return c.OTPWindow }
func (c *EnvConfig) GetBcryptCost() int                 { return c.BcryptCost }
func (c *EnvConfig) GetClientURL() string               { return c.ClientURL }
func (c *EnvConfig) GetIssuer() string                  { return c.Issuer }
func (c *EnvConfig) GetAllowPasswordBootstrap() bool    { return c.AllowPasswordBootstrap }
