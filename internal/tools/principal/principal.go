// Package principal mints bearer tokens for local development against the
// purchases API.
package principal

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eventpass/eventpass/internal/platform/config"
)

// Config holds token minting configuration.
type Config struct {
	Issuer   string        `env:"EVENTPASS_PRINCIPAL_ISSUER" envDefault:"eventpass-auth"`
	Audience string        `env:"EVENTPASS_PRINCIPAL_AUDIENCE" envDefault:"eventpass-purchases"`
	Secret   string        `env:"EVENTPASS_PRINCIPAL_SECRET"`
	Subject  string
	TTL      time.Duration
}

// ParseConfig loads env defaults and then flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{TTL: time.Hour}
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Subject, "sub", cfg.Subject, "user id to embed as subject")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "token issuer")
	fs.StringVar(&cfg.Audience, "audience", cfg.Audience, "token audience")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run signs an HS256 token for cfg.Subject and writes it to out.
func Run(cfg Config, out io.Writer, now func() time.Time) error {
	if out == nil {
		return errors.New("output is required")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return errors.New("subject is required")
	}
	if cfg.Secret == "" {
		return errors.New("EVENTPASS_PRINCIPAL_SECRET is required")
	}
	if cfg.TTL <= 0 {
		return errors.New("ttl must be greater than zero")
	}
	if now == nil {
		now = time.Now
	}
	issuedAt := now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   strings.TrimSpace(cfg.Subject),
		Audience:  jwt.ClaimStrings{cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(cfg.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return fmt.Errorf("sign principal token: %w", err)
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}
