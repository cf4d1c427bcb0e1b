// Package app wires the purchases service runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/eventpass/eventpass/internal/platform/grpc"
	"github.com/eventpass/eventpass/internal/platform/timeouts"
	httpapi "github.com/eventpass/eventpass/internal/services/purchases/api/http"
	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/ident"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	"github.com/eventpass/eventpass/internal/services/purchases/observability"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/eventpass/eventpass/internal/services/purchases/signature"
	purchasessqlite "github.com/eventpass/eventpass/internal/services/purchases/storage/sqlite"
	workerapp "github.com/eventpass/eventpass/internal/services/worker/app"
)

// Payment provider names.
const (
	ProviderSandbox = "sandbox"
	ProviderSquare  = "square"
)

const (
	defaultHTTPAddr = ":8095"
	defaultGRPCAddr = ":8096"
	defaultDBPath   = "data/purchases.db"
	healthService   = "purchases.v1"
)

// RuntimeConfig controls purchases startup and dependencies.
type RuntimeConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	DBPath          string
	Keyring         *signature.Keyring
	Principal       httpapi.PrincipalConfig
	PaymentProvider string
	Square          payment.SquareConfig
	// EmbeddedWorker runs the receipt notification loop in-process.
	EmbeddedWorker bool
	SMTP           notify.SMTPConfig
	Locale         string
	Worker         workerapp.Config
}

// Runtime holds the assembled purchases dependencies.
type Runtime struct {
	cfg      RuntimeConfig
	store    *purchasessqlite.Store
	registry *prometheus.Registry
	metrics  *observability.Metrics
	handler  http.Handler
	loop     *workerapp.Loop
}

// New opens storage and assembles the service graph without serving.
func New(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Keyring == nil {
		return nil, fmt.Errorf("receipt keyring is required")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.GRPCAddr) == "" {
		cfg.GRPCAddr = defaultGRPCAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	signer, err := signature.NewEngine(cfg.Keyring)
	if err != nil {
		return nil, fmt.Errorf("build signature engine: %w", err)
	}
	principals, err := httpapi.NewPrincipalVerifier(cfg.Principal)
	if err != nil {
		return nil, fmt.Errorf("build principal verifier: %w", err)
	}
	processor, err := NewProcessor(cfg.PaymentProvider, cfg.Square)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := purchasessqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open purchases sqlite store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	service, err := purchasesdomain.NewService(purchasesdomain.Config{
		Store:     store,
		Signer:    signer,
		IDs:       ident.NewGenerator(),
		Processor: processor,
		Metrics:   metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build purchases service: %w", err)
	}
	handler, err := httpapi.NewServer(service, principals, registry)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build http api: %w", err)
	}

	rt := &Runtime{
		cfg:      cfg,
		store:    store,
		registry: registry,
		metrics:  metrics,
		handler:  handler,
	}
	if cfg.EmbeddedWorker {
		sender, err := workerapp.NewSender(cfg.SMTP)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		rt.loop = workerapp.NewReceiptLoop(store, nil, sender, workerapp.LocalizerFor(cfg.Locale), cfg.Worker, metrics)
	}
	return rt, nil
}

// Handler returns the HTTP API handler.
func (r *Runtime) Handler() http.Handler {
	return r.handler
}

// Close releases storage.
func (r *Runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Run creates a runtime and serves until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	rt, err := New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			log.Printf("close purchases sqlite store: %v", closeErr)
		}
	}()
	return rt.Serve(ctx)
}

// Serve runs the HTTP API, the gRPC health server and the optional embedded
// worker until ctx ends or one of them fails.
func (r *Runtime) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	httpListener, err := net.Listen("tcp", r.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", r.cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", r.cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on grpc addr %s: %w", r.cfg.GRPCAddr, err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	group.Go(func() error {
		log.Printf("purchases HTTP server listening at %v", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	healthServer := platformgrpc.NewHealthServer(healthService)
	healthServer.SetServing(healthService)
	group.Go(func() error {
		log.Printf("purchases health server listening at %v", grpcListener.Addr())
		return healthServer.Serve(groupCtx, grpcListener)
	})

	if r.loop != nil {
		group.Go(func() error {
			return r.loop.Run(groupCtx)
		})
	}
	return group.Wait()
}

// NewProcessor selects the payment processor for provider.
func NewProcessor(provider string, square payment.SquareConfig) (payment.Processor, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderSandbox:
		log.Printf("payment provider is sandbox; charges are simulated")
		return payment.NewSandboxProcessor(), nil
	case ProviderSquare:
		processor, err := payment.NewSquareProcessor(square, nil)
		if err != nil {
			return nil, fmt.Errorf("configure square processor: %w", err)
		}
		return processor, nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", provider)
	}
}
