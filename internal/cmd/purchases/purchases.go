// Package purchases parses purchases command flags and launches the service.
package purchases

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/eventpass/eventpass/internal/platform/cmd"
	httpapi "github.com/eventpass/eventpass/internal/services/purchases/api/http"
	purchasesapp "github.com/eventpass/eventpass/internal/services/purchases/app"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/eventpass/eventpass/internal/services/purchases/signature"
	workerapp "github.com/eventpass/eventpass/internal/services/worker/app"
)

// Config holds purchases command configuration.
type Config struct {
	HTTPAddr          string        `env:"EVENTPASS_PURCHASES_HTTP_ADDR" envDefault:":8095"`
	GRPCAddr          string        `env:"EVENTPASS_PURCHASES_GRPC_ADDR" envDefault:":8096"`
	DBPath            string        `env:"EVENTPASS_PURCHASES_DB_PATH" envDefault:"data/purchases.db"`
	PrincipalIssuer   string        `env:"EVENTPASS_PRINCIPAL_ISSUER" envDefault:"eventpass-auth"`
	PrincipalAudience string        `env:"EVENTPASS_PRINCIPAL_AUDIENCE" envDefault:"eventpass-purchases"`
	PrincipalSecret   string        `env:"EVENTPASS_PRINCIPAL_SECRET"`
	PrincipalLeeway   time.Duration `env:"EVENTPASS_PRINCIPAL_LEEWAY" envDefault:"30s"`
	PaymentProvider   string        `env:"EVENTPASS_PAYMENT_PROVIDER" envDefault:"sandbox"`
	SquareBaseURL     string        `env:"EVENTPASS_SQUARE_BASE_URL"`
	SquareAccessToken string        `env:"EVENTPASS_SQUARE_ACCESS_TOKEN"`
	SquareLocationID  string        `env:"EVENTPASS_SQUARE_LOCATION_ID"`
	SquareAPIVersion  string        `env:"EVENTPASS_SQUARE_API_VERSION"`
	SquareTimeout     time.Duration `env:"EVENTPASS_SQUARE_TIMEOUT" envDefault:"15s"`
	SquareRateLimit   float64       `env:"EVENTPASS_SQUARE_RATE_LIMIT" envDefault:"10"`
	SquareRateBurst   int           `env:"EVENTPASS_SQUARE_RATE_BURST" envDefault:"5"`
	EmbeddedWorker    bool          `env:"EVENTPASS_PURCHASES_EMBEDDED_WORKER" envDefault:"false"`
	Locale            string        `env:"EVENTPASS_NOTIFY_LOCALE" envDefault:"en-US"`
	SMTPHost          string        `env:"EVENTPASS_SMTP_HOST"`
	SMTPPort          int           `env:"EVENTPASS_SMTP_PORT" envDefault:"587"`
	SMTPUsername      string        `env:"EVENTPASS_SMTP_USERNAME"`
	SMTPPassword      string        `env:"EVENTPASS_SMTP_PASSWORD"`
	SMTPFrom          string        `env:"EVENTPASS_SMTP_FROM" envDefault:"receipts@eventpass.local"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The purchases HTTP API listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The purchases health gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The purchases SQLite database path")
	fs.StringVar(&cfg.PaymentProvider, "payment-provider", cfg.PaymentProvider, "Payment provider: sandbox or square")
	fs.BoolVar(&cfg.EmbeddedWorker, "embedded-worker", cfg.EmbeddedWorker, "Run the receipt notification worker in-process")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig resolves cfg and the receipt keyring into the runtime config.
func (cfg Config) RuntimeConfig(keyring *signature.Keyring) (purchasesapp.RuntimeConfig, error) {
	if cfg.PrincipalSecret == "" {
		return purchasesapp.RuntimeConfig{}, fmt.Errorf("EVENTPASS_PRINCIPAL_SECRET is required")
	}
	return purchasesapp.RuntimeConfig{
		HTTPAddr: cfg.HTTPAddr,
		GRPCAddr: cfg.GRPCAddr,
		DBPath:   cfg.DBPath,
		Keyring:  keyring,
		Principal: httpapi.PrincipalConfig{
			Issuer:   cfg.PrincipalIssuer,
			Audience: cfg.PrincipalAudience,
			Secret:   []byte(cfg.PrincipalSecret),
			Leeway:   cfg.PrincipalLeeway,
		},
		PaymentProvider: cfg.PaymentProvider,
		Square: payment.SquareConfig{
			BaseURL:     cfg.SquareBaseURL,
			AccessToken: cfg.SquareAccessToken,
			LocationID:  cfg.SquareLocationID,
			APIVersion:  cfg.SquareAPIVersion,
			Timeout:     cfg.SquareTimeout,
			RateLimit:   cfg.SquareRateLimit,
			RateBurst:   cfg.SquareRateBurst,
		},
		EmbeddedWorker: cfg.EmbeddedWorker,
		SMTP: notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		},
		Locale: cfg.Locale,
		Worker: workerapp.Config{},
	}, nil
}

// Run starts the purchases runtime.
func Run(ctx context.Context, cfg Config) error {
	keyring, err := signature.KeyringFromEnv()
	if err != nil {
		return fmt.Errorf("load receipt keyring: %w", err)
	}
	runtimeCfg, err := cfg.RuntimeConfig(keyring)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePurchases, func(ctx context.Context) error {
		return purchasesapp.Run(ctx, runtimeCfg)
	})
}
