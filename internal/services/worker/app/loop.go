// Package app runs the purchase outbox worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/observability"
	purchasesstorage "github.com/eventpass/eventpass/internal/services/purchases/storage"
	workerdomain "github.com/eventpass/eventpass/internal/services/worker/domain"
)

const (
	defaultConsumer      = "eventpass-worker"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 30 * time.Second
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
	defaultBatchSize     = 20
)

// Outcome is the settled result of one processing attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetry     Outcome = "retry"
	OutcomeDead      Outcome = "dead"
)

// Config controls loop pacing and retry policy.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	BatchSize     int
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Attempt describes one processed outbox event.
type Attempt struct {
	EventID      string
	EventType    string
	Outcome      Outcome
	AttemptCount int32
	Error        string
	CreatedAt    time.Time
}

// EventHandler processes one outbox event.
type EventHandler interface {
	Handle(ctx context.Context, event purchasesstorage.OutboxEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event purchasesstorage.OutboxEvent) error

// Handle calls f.
func (f EventHandlerFunc) Handle(ctx context.Context, event purchasesstorage.OutboxEvent) error {
	return f(ctx, event)
}

// fanoutEventHandlers runs handlers in order and stops at the first error.
func fanoutEventHandlers(handlers ...EventHandler) EventHandler {
	filtered := make([]EventHandler, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			filtered = append(filtered, handler)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return EventHandlerFunc(func(ctx context.Context, event purchasesstorage.OutboxEvent) error {
		for _, handler := range filtered {
			if err := handler.Handle(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// AttemptRecorder persists attempt outcomes.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// Loop leases outbox events and dispatches them to handlers by event type.
type Loop struct {
	outbox   purchasesstorage.OutboxStore
	recorder AttemptRecorder
	handlers map[string]EventHandler
	cfg      Config
	metrics  *observability.Metrics
	clock    func() time.Time
}

// New builds a loop. Handlers registered for the same event type through
// multiple calls should be combined by the caller; recorder and metrics may
// be nil.
func New(outbox purchasesstorage.OutboxStore, recorder AttemptRecorder, handlers map[string]EventHandler, cfg Config, metrics *observability.Metrics, clock func() time.Time) *Loop {
	if clock == nil {
		clock = time.Now
	}
	registered := make(map[string]EventHandler, len(handlers))
	for eventType, handler := range handlers {
		if handler = fanoutEventHandlers(handler); handler != nil {
			registered[strings.TrimSpace(eventType)] = handler
		}
	}
	return &Loop{
		outbox:   outbox,
		recorder: recorder,
		handlers: registered,
		cfg:      cfg.normalized(),
		metrics:  metrics,
		clock:    clock,
	}
}

// Run polls until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.outbox == nil {
		return fmt.Errorf("outbox store is not configured")
	}
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		processed, err := l.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("worker poll: %v", err)
		}
		// A full batch means more work is likely waiting.
		if processed < l.cfg.BatchSize {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
}

// RunOnce leases one batch and settles every leased event. It returns the
// number of events leased.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	events, err := l.outbox.LeaseOutboxEvents(ctx, l.cfg.Consumer, l.cfg.BatchSize, l.clock(), l.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}
	for _, event := range events {
		if err := l.process(ctx, event); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

func (l *Loop) process(ctx context.Context, event purchasesstorage.OutboxEvent) error {
	handler, ok := l.handlers[event.EventType]
	var handleErr error
	if !ok {
		handleErr = workerdomain.Permanent(fmt.Errorf("no handler for event type %q", event.EventType))
	} else {
		handleErr = handler.Handle(ctx, event)
	}

	now := l.clock()
	attemptCount := event.AttemptCount + 1
	outcome := OutcomeSucceeded
	var settleErr error
	switch {
	case handleErr == nil:
		settleErr = l.outbox.MarkOutboxSucceeded(ctx, event.ID, l.cfg.Consumer, now)
	case workerdomain.IsPermanent(handleErr) || int(attemptCount) >= l.cfg.MaxAttempts:
		outcome = OutcomeDead
		settleErr = l.outbox.MarkOutboxDead(ctx, event.ID, l.cfg.Consumer, handleErr.Error(), now)
		log.Printf("dead-letter outbox event %s (%s) after %d attempts: %v", event.ID, event.EventType, attemptCount, handleErr)
	default:
		outcome = OutcomeRetry
		settleErr = l.outbox.MarkOutboxRetry(ctx, event.ID, l.cfg.Consumer, now.Add(l.backoff(attemptCount)), handleErr.Error())
	}
	if settleErr != nil {
		return fmt.Errorf("settle outbox event %s: %w", event.ID, settleErr)
	}

	l.metrics.IncDelivery(event.EventType, string(outcome))
	if l.recorder != nil {
		attempt := Attempt{
			EventID:      event.ID,
			EventType:    event.EventType,
			Outcome:      outcome,
			AttemptCount: attemptCount,
			CreatedAt:    now,
		}
		if handleErr != nil {
			attempt.Error = handleErr.Error()
		}
		if err := l.recorder.RecordAttempt(ctx, attempt); err != nil {
			log.Printf("record worker attempt: %v", err)
		}
	}
	return nil
}

// backoff doubles the base delay per attempt and caps it at RetryMaxDelay.
func (l *Loop) backoff(attemptCount int32) time.Duration {
	delay := l.cfg.RetryBackoff
	for i := int32(1); i < attemptCount; i++ {
		delay *= 2
		if delay >= l.cfg.RetryMaxDelay {
			return l.cfg.RetryMaxDelay
		}
	}
	return delay
}
