package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	platformotel "github.com/eventpass/eventpass/internal/platform/otel"
	"github.com/eventpass/eventpass/internal/services/purchases/ident"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/observability"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/eventpass/eventpass/internal/services/purchases/signature"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxWriteAttempts bounds regenerate-and-retry on receipt number collisions.
const maxWriteAttempts = 3

// Config wires a Service.
type Config struct {
	Store     storage.Store
	Signer    *signature.Engine
	IDs       *ident.Generator
	Processor payment.Processor
	// Packages overrides the token package table. Nil uses DefaultTokenPackages.
	Packages []model.TokenPackage
	Metrics  *observability.Metrics
	Clock    func() time.Time
}

// Service runs purchase flows against a store.
type Service struct {
	store     storage.Store
	signer    *signature.Engine
	ids       *ident.Generator
	processor payment.Processor
	packages  map[string]model.TokenPackage
	metrics   *observability.Metrics
	clock     func() time.Time
	tracer    trace.Tracer
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signature engine is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("payment processor is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDs
	if ids == nil {
		ids = ident.NewGenerator(ident.WithClock(clock))
	}
	packages := cfg.Packages
	if packages == nil {
		packages = DefaultTokenPackages()
	}
	index := make(map[string]model.TokenPackage, len(packages))
	for _, pkg := range packages {
		id := strings.TrimSpace(pkg.ID)
		if id == "" {
			return nil, fmt.Errorf("token package id is required")
		}
		if _, exists := index[id]; exists {
			return nil, fmt.Errorf("duplicate token package %q", id)
		}
		if pkg.Tokens <= 0 || pkg.BonusTokens < 0 || !pkg.Price.IsPositive() {
			return nil, fmt.Errorf("token package %q has invalid amounts", id)
		}
		index[id] = pkg
	}
	return &Service{
		store:     cfg.Store,
		signer:    cfg.Signer,
		ids:       ids,
		processor: cfg.Processor,
		packages:  index,
		metrics:   cfg.Metrics,
		clock:     clock,
		tracer:    platformotel.Tracer("eventpass/purchases"),
	}, nil
}

// now returns the service clock in UTC at storage precision.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "purchases."+name, trace.WithAttributes(attrs...))
}

// finishSpan records err on span and ends it.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	span.End()
}

// advance moves a purchase to next and reports it as a span event.
func advance(span trace.Span, state *model.PurchaseState, next model.PurchaseState) {
	*state = next
	span.AddEvent("purchase.state", trace.WithAttributes(attribute.String("state", next.String())))
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}

func requireArgument(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, field+" is required", map[string]string{"Field": field})
	}
	return nil
}

// notFound re-labels a storage miss with the resource name shown to users.
func notFound(resource string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WrapWithMetadata(apperrors.CodeNotFound, resource+" not found", map[string]string{"Resource": resource}, err)
	}
	return err
}

// internalFault logs and wraps a failure that happened after validation.
func internalFault(op string, metadata map[string]string, err error) error {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var details strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&details, " %s=%s", key, metadata[key])
	}
	log.Printf("%s:%s: %v", op, details.String(), err)
	return apperrors.WrapWithMetadata(apperrors.CodeInternal, op+" failed", metadata, err)
}

// isRejection reports errors that leave no trace and must reach the caller
// as-is rather than as an internal fault.
func isRejection(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInsufficientBalance,
		apperrors.CodeNotFound,
		apperrors.CodeInvalidArgument,
		apperrors.CodeInvalidAmount:
		return true
	}
	return false
}
