// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/eventpass/eventpass/internal/platform/cmd"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	workerserver "github.com/eventpass/eventpass/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port            int           `env:"EVENTPASS_WORKER_PORT" envDefault:"8089"`
	PurchasesDBPath string        `env:"EVENTPASS_PURCHASES_DB_PATH" envDefault:"data/purchases.db"`
	DBPath          string        `env:"EVENTPASS_WORKER_DB_PATH" envDefault:"data/worker.db"`
	Consumer        string        `env:"EVENTPASS_WORKER_CONSUMER" envDefault:"eventpass-worker"`
	PollInterval    time.Duration `env:"EVENTPASS_WORKER_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL        time.Duration `env:"EVENTPASS_WORKER_LEASE_TTL" envDefault:"30s"`
	MaxAttempts     int           `env:"EVENTPASS_WORKER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff    time.Duration `env:"EVENTPASS_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay   time.Duration `env:"EVENTPASS_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
	BatchSize       int           `env:"EVENTPASS_WORKER_BATCH_SIZE" envDefault:"20"`
	Locale          string        `env:"EVENTPASS_NOTIFY_LOCALE" envDefault:"en-US"`
	SMTPHost        string        `env:"EVENTPASS_SMTP_HOST"`
	SMTPPort        int           `env:"EVENTPASS_SMTP_PORT" envDefault:"587"`
	SMTPUsername    string        `env:"EVENTPASS_SMTP_USERNAME"`
	SMTPPassword    string        `env:"EVENTPASS_SMTP_PASSWORD"`
	SMTPFrom        string        `env:"EVENTPASS_SMTP_FROM" envDefault:"receipts@eventpass.local"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.PurchasesDBPath, "purchases-db-path", cfg.PurchasesDBPath, "The purchases SQLite database path holding the outbox")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Outbox lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Outbox events leased per poll")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Receipt email locale")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", cfg.SMTPHost, "SMTP relay host; empty logs receipts instead of sending")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:            cfg.Port,
			PurchasesDBPath: cfg.PurchasesDBPath,
			DBPath:          cfg.DBPath,
			Locale:          cfg.Locale,
			SMTP: notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			},
			Consumer:      cfg.Consumer,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			BatchSize:     cfg.BatchSize,
		})
	})
}
