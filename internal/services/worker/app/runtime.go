package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/eventpass/eventpass/internal/platform/grpc"
	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	"github.com/eventpass/eventpass/internal/services/purchases/observability"
	purchasesstorage "github.com/eventpass/eventpass/internal/services/purchases/storage"
	purchasessqlite "github.com/eventpass/eventpass/internal/services/purchases/storage/sqlite"
	workerdomain "github.com/eventpass/eventpass/internal/services/worker/domain"
	workerstorage "github.com/eventpass/eventpass/internal/services/worker/storage"
	workersqlite "github.com/eventpass/eventpass/internal/services/worker/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port            int
	PurchasesDBPath string
	DBPath          string
	Locale          string
	SMTP            notify.SMTPConfig
	Consumer        string
	PollInterval    time.Duration
	LeaseTTL        time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryMaxDelay   time.Duration
	BatchSize       int
}

const (
	defaultWorkerPort = 8089
	defaultWorkerDB   = "data/worker.db"
	healthService     = "worker.runtime"
)

// Run starts worker runtime dependencies and the background processing loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.PurchasesDBPath) == "" {
		return fmt.Errorf("purchases db path is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}

	purchasesStore, err := purchasessqlite.Open(cfg.PurchasesDBPath)
	if err != nil {
		return fmt.Errorf("open purchases sqlite store: %w", err)
	}
	defer func() {
		if closeErr := purchasesStore.Close(); closeErr != nil {
			log.Printf("close purchases sqlite store: %v", closeErr)
		}
	}()

	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.Printf("close worker sqlite store: %v", closeErr)
		}
	}()

	sender, err := NewSender(cfg.SMTP)
	if err != nil {
		return err
	}
	workerLoop := NewReceiptLoop(purchasesStore, workerStore, sender, LocalizerFor(cfg.Locale), cfg.LoopConfig(), observability.NewMetrics(prometheus.DefaultRegisterer))

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	healthServer := platformgrpc.NewHealthServer(healthService)
	healthServer.SetServing(healthService)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- healthServer.Serve(serveCtx, listener)
	}()
	defer func() {
		cancel()
		if err := <-serveErr; err != nil {
			log.Printf("worker health server: %v", err)
		}
	}()

	log.Printf("worker server listening at %v", listener.Addr())
	return workerLoop.Run(ctx)
}

// LoopConfig extracts the loop settings from cfg.
func (cfg RuntimeConfig) LoopConfig() Config {
	return Config{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.PollInterval,
		LeaseTTL:      cfg.LeaseTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
		BatchSize:     cfg.BatchSize,
	}
}

// NewSender returns an SMTP sender when a relay host is configured and a
// logging sender otherwise.
func NewSender(cfg notify.SMTPConfig) (notify.Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		log.Printf("smtp host not configured; receipt emails will be logged")
		return notify.LogSender{}, nil
	}
	sender, err := notify.NewSMTPSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure smtp sender: %w", err)
	}
	return sender, nil
}

// LocalizerFor parses locale and falls back to English.
func LocalizerFor(locale string) notify.Localizer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return notify.NewLocalizer(tag)
}

// NewReceiptLoop wires the receipt notification handler to the purchase
// outbox. attempts may be nil.
func NewReceiptLoop(outbox purchasesstorage.OutboxStore, attempts workerstorage.AttemptStore, sender notify.Sender, localizer notify.Localizer, cfg Config, metrics *observability.Metrics) *Loop {
	cfg = cfg.normalized()
	var recorder AttemptRecorder
	if attempts != nil {
		recorder = newAttemptStoreRecorder(attempts, cfg.Consumer)
	}
	return New(
		outbox,
		recorder,
		map[string]EventHandler{
			purchasesdomain.ReceiptIssuedEventType: workerdomain.NewReceiptNotificationHandler(sender, localizer),
		},
		cfg,
		metrics,
		nil,
	)
}

type attemptStoreRecorder struct {
	store    workerstorage.AttemptStore
	consumer string
}

func newAttemptStoreRecorder(store workerstorage.AttemptStore, consumer string) *attemptStoreRecorder {
	normalizedConsumer := strings.TrimSpace(consumer)
	if normalizedConsumer == "" {
		normalizedConsumer = defaultConsumer
	}
	return &attemptStoreRecorder{store: store, consumer: normalizedConsumer}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	consumer := strings.TrimSpace(r.consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return r.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		Consumer:     consumer,
		Outcome:      canonicalOutcomeValue(attempt.Outcome),
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.Error,
		CreatedAt:    attempt.CreatedAt,
	})
}

func canonicalOutcomeValue(outcome Outcome) string {
	switch outcome {
	case OutcomeSucceeded, OutcomeRetry, OutcomeDead:
		return string(outcome)
	default:
		return "unknown"
	}
}
