package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config carries all runtime settings, parsed from the environment.
type Config struct {
	Env     string `env:"ENV" envDefault:"DEV"`
	AppName string `env:"APP_NAME" envDefault:"Identity Server"`
	Port    string `env:"PORT" envDefault:"8080"`

	// Issuer is written into every session token and access token.
	Issuer string `env:"SESSION_ISSUER" envDefault:"com.centrid.identity"`

	// SessionTimeout is the default self-declared validity window of a
	// session token when the login request does not specify one.
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`

	// Key material. When both are empty a fresh RSA pair is generated at
	// startup, which invalidates outstanding tokens across restarts.
	PrivateKeyPEM string `env:"SESSION_PRIVATE_KEY_PEM"`
	PublicKeyPEM  string `env:"SESSION_PUBLIC_KEY_PEM"`

	// RedisAddr switches the ephemeral store and session registry to Redis
	// when set. Empty means in-memory.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	OAuth     OAuth     `envPrefix:"OAUTH_"`
	Endpoints Endpoints `envPrefix:"ENDPOINT_"`
}

// OAuth holds the authorization-flow settings.
type OAuth struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// AutoGranting skips the consent screen when a valid session exists.
	AutoGranting bool `env:"AUTO_GRANTING" envDefault:"true"`

	CodeTimeout        time.Duration `env:"CODE_TIMEOUT" envDefault:"1m"`
	TransactionTimeout time.Duration `env:"TRANSACTION_TIMEOUT" envDefault:"10m"`
	AccessTokenTimeout time.Duration `env:"ACCESS_TOKEN_TIMEOUT" envDefault:"30m"`
}

// Endpoint describes one client-type tag: the shared secret a client presents
// at login and the maximum number of concurrent sessions per account on that
// endpoint (0 or negative means unlimited).
type Endpoint struct {
	Secret string
	Limit  int
}

// Endpoints holds the per-client-type login secrets and session limits.
type Endpoints struct {
	WebSecret   string `env:"WEB_SECRET" envDefault:"lLS4p6skBbBVZX30zR5"`
	WebLimit    int    `env:"WEB_LIMIT" envDefault:"-1"`
	PCSecret    string `env:"PC_SECRET" envDefault:"GGp5Zc4NwUkdPvgka6M"`
	PCLimit     int    `env:"PC_LIMIT" envDefault:"-1"`
	PhoneSecret string `env:"PHONE_SECRET" envDefault:"Dul8CRGeVLcmi0yM8f7"`
	PhoneLimit  int    `env:"PHONE_LIMIT" envDefault:"-1"`
	PadSecret   string `env:"PAD_SECRET" envDefault:"Jrsy8odZ0orSXkKXR2U"`
	PadLimit    int    `env:"PAD_LIMIT" envDefault:"-1"`
}

// Resolve returns the endpoint tag matching the presented secret, or "" when
// no endpoint matches.
func (e Endpoints) Resolve(secret string) (string, Endpoint) {
	switch secret {
	case e.WebSecret:
		return "web", Endpoint{Secret: e.WebSecret, Limit: e.WebLimit}
	case e.PCSecret:
		return "pc", Endpoint{Secret: e.PCSecret, Limit: e.PCLimit}
	case e.PhoneSecret:
		return "phone", Endpoint{Secret: e.PhoneSecret, Limit: e.PhoneLimit}
	case e.PadSecret:
		return "pad", Endpoint{Secret: e.PadSecret, Limit: e.PadLimit}
	default:
		return "", Endpoint{}
	}
}

// New parses the configuration from the environment.
func New() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config parse")
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	if len(c.Port) > 0 && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}
