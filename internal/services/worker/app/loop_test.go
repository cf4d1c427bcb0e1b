package app

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	"github.com/eventpass/eventpass/internal/services/purchases/observability"
	purchasesstorage "github.com/eventpass/eventpass/internal/services/purchases/storage"
	"github.com/eventpass/eventpass/internal/services/purchases/storage/memory"
	workerdomain "github.com/eventpass/eventpass/internal/services/worker/domain"
	workersqlite "github.com/eventpass/eventpass/internal/services/worker/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryRecorder struct {
	attempts []Attempt
}

func (r *memoryRecorder) RecordAttempt(_ context.Context, attempt Attempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

type captureSender struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *captureSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

var loopEpoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func enqueue(t *testing.T, store *memory.Store, id, eventType, payload string) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx purchasesstorage.Tx) error {
		return tx.EnqueueOutboxEvent(ctx, purchasesstorage.OutboxEvent{
			ID:          id,
			EventType:   eventType,
			PayloadJSON: payload,
			CreatedAt:   loopEpoch,
		})
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
}

func receiptPayload(t *testing.T, receiptNumber string) string {
	t.Helper()
	encoded, err := json.Marshal(purchasesdomain.ReceiptIssuedPayload{
		ReceiptNumber: receiptNumber,
		Kind:          "token_package",
		UserID:        "u1",
		Email:         "u1@example.com",
		Description:   "Starter 100",
		TokensAdded:   100,
		Amount:        "9.99",
		Currency:      "USD",
		IssuedAt:      loopEpoch,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return string(encoded)
}

func testConfig() Config {
	return Config{
		Consumer:      "worker-test",
		LeaseTTL:      time.Minute,
		MaxAttempts:   3,
		RetryBackoff:  5 * time.Second,
		RetryMaxDelay: 30 * time.Second,
		BatchSize:     10,
	}
}

func outboxStatus(t *testing.T, store *memory.Store, id string) purchasesstorage.OutboxEvent {
	t.Helper()
	event, err := store.GetOutboxEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("get outbox event %s: %v", id, err)
	}
	return event
}

func TestConfigNormalizedDefaults(t *testing.T) {
	cfg := Config{RetryBackoff: time.Minute, RetryMaxDelay: time.Second}.normalized()
	if cfg.Consumer != defaultConsumer {
		t.Fatalf("consumer = %q, want %q", cfg.Consumer, defaultConsumer)
	}
	if cfg.PollInterval != defaultPollInterval || cfg.LeaseTTL != defaultLeaseTTL {
		t.Fatalf("poll/lease = %v/%v", cfg.PollInterval, cfg.LeaseTTL)
	}
	if cfg.MaxAttempts != defaultMaxAttempts || cfg.BatchSize != defaultBatchSize {
		t.Fatalf("max attempts/batch = %d/%d", cfg.MaxAttempts, cfg.BatchSize)
	}
	if cfg.RetryMaxDelay != time.Minute {
		t.Fatalf("retry max delay = %v, want raised to backoff", cfg.RetryMaxDelay)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	loop := New(memory.New(), nil, nil, testConfig(), nil, nil)
	tests := []struct {
		attempt int32
		want    time.Duration
	}{
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 3, want: 20 * time.Second},
		{attempt: 4, want: 30 * time.Second},
		{attempt: 12, want: 30 * time.Second},
	}
	for _, tc := range tests {
		if got := loop.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRunOnceMarksSucceeded(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "ob-1", "test.event", `{}`)
	clock := &stepClock{now: loopEpoch}
	recorder := &memoryRecorder{}
	var handled []string
	handler := EventHandlerFunc(func(_ context.Context, event purchasesstorage.OutboxEvent) error {
		handled = append(handled, event.ID)
		return nil
	})
	loop := New(store, recorder, map[string]EventHandler{"test.event": handler}, testConfig(), nil, clock.Now)

	processed, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 1 || len(handled) != 1 {
		t.Fatalf("processed = %d handled = %v", processed, handled)
	}
	if got := outboxStatus(t, store, "ob-1"); got.Status != purchasesstorage.OutboxStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", got.Status)
	}
	if len(recorder.attempts) != 1 || recorder.attempts[0].Outcome != OutcomeSucceeded || recorder.attempts[0].AttemptCount != 1 {
		t.Fatalf("attempts = %+v", recorder.attempts)
	}

	processed, err = loop.RunOnce(context.Background())
	if err != nil || processed != 0 {
		t.Fatalf("second run = %d, %v; want nothing leased", processed, err)
	}
}

func TestRunOnceRetriesThenDeadLetters(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "ob-1", "test.event", `{}`)
	clock := &stepClock{now: loopEpoch}
	recorder := &memoryRecorder{}
	handler := EventHandlerFunc(func(context.Context, purchasesstorage.OutboxEvent) error {
		return errors.New("relay unavailable")
	})
	loop := New(store, recorder, map[string]EventHandler{"test.event": handler}, testConfig(), nil, clock.Now)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	event := outboxStatus(t, store, "ob-1")
	if event.Status != purchasesstorage.OutboxStatusPending || event.AttemptCount != 1 {
		t.Fatalf("after first attempt = %q/%d", event.Status, event.AttemptCount)
	}
	if want := loopEpoch.Add(5 * time.Second); !event.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", event.NextAttemptAt, want)
	}

	// Not due yet.
	if processed, _ := loop.RunOnce(context.Background()); processed != 0 {
		t.Fatalf("processed before due = %d", processed)
	}

	clock.Advance(5 * time.Second)
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	clock.Advance(10 * time.Second)
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("third run: %v", err)
	}
	event = outboxStatus(t, store, "ob-1")
	if event.Status != purchasesstorage.OutboxStatusDead {
		t.Fatalf("status = %q, want dead", event.Status)
	}
	if event.LastError != "relay unavailable" {
		t.Fatalf("last error = %q", event.LastError)
	}
	outcomes := make([]Outcome, 0, len(recorder.attempts))
	for _, attempt := range recorder.attempts {
		outcomes = append(outcomes, attempt.Outcome)
	}
	want := []Outcome{OutcomeRetry, OutcomeRetry, OutcomeDead}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", outcomes, want)
		}
	}
}

func TestRunOncePermanentErrorDeadLettersImmediately(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "ob-1", "test.event", `{}`)
	handler := EventHandlerFunc(func(context.Context, purchasesstorage.OutboxEvent) error {
		return workerdomain.Permanent(errors.New("bad payload"))
	})
	loop := New(store, nil, map[string]EventHandler{"test.event": handler}, testConfig(), nil, (&stepClock{now: loopEpoch}).Now)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := outboxStatus(t, store, "ob-1"); got.Status != purchasesstorage.OutboxStatusDead {
		t.Fatalf("status = %q, want dead", got.Status)
	}
}

func TestRunOnceUnknownEventTypeDeadLetters(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "ob-1", "mystery.event", `{}`)
	recorder := &memoryRecorder{}
	loop := New(store, recorder, nil, testConfig(), nil, (&stepClock{now: loopEpoch}).Now)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := outboxStatus(t, store, "ob-1"); got.Status != purchasesstorage.OutboxStatusDead {
		t.Fatalf("status = %q, want dead", got.Status)
	}
	if len(recorder.attempts) != 1 || recorder.attempts[0].Error == "" {
		t.Fatalf("attempts = %+v", recorder.attempts)
	}
}

func TestFanoutStopsAtFirstError(t *testing.T) {
	var calls []string
	first := EventHandlerFunc(func(context.Context, purchasesstorage.OutboxEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	second := EventHandlerFunc(func(context.Context, purchasesstorage.OutboxEvent) error {
		calls = append(calls, "second")
		return nil
	})
	if fanoutEventHandlers(nil, nil) != nil {
		t.Fatal("expected nil handler for empty fanout")
	}
	err := fanoutEventHandlers(first, nil, second).Handle(context.Background(), purchasesstorage.OutboxEvent{})
	if err == nil || len(calls) != 1 {
		t.Fatalf("err = %v calls = %v", err, calls)
	}
}

func TestReceiptLoopDeliversAndRecords(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "ob-1", purchasesdomain.ReceiptIssuedEventType, receiptPayload(t, "RCP-ABC-0000000001"))
	enqueue(t, store, "ob-2", purchasesdomain.ReceiptIssuedEventType, `{"receipt_number":""}`)

	attempts, err := workersqlite.Open(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open worker store: %v", err)
	}
	t.Cleanup(func() { _ = attempts.Close() })

	reg := prometheus.NewRegistry()
	sender := &captureSender{}
	loop := NewReceiptLoop(store, attempts, sender, LocalizerFor("pt-BR"), testConfig(), observability.NewMetrics(reg))

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(sender.messages) != 1 || sender.messages[0].To != "u1@example.com" {
		t.Fatalf("messages = %+v", sender.messages)
	}
	if got := outboxStatus(t, store, "ob-1"); got.Status != purchasesstorage.OutboxStatusSucceeded {
		t.Fatalf("ob-1 status = %q", got.Status)
	}
	if got := outboxStatus(t, store, "ob-2"); got.Status != purchasesstorage.OutboxStatusDead {
		t.Fatalf("ob-2 status = %q", got.Status)
	}

	records, err := attempts.ListAttemptsForEvent(context.Background(), "ob-2")
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != "dead" || records[0].Consumer != "worker-test" {
		t.Fatalf("records = %+v", records)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var deliveries float64
	for _, family := range families {
		if family.GetName() != "eventpass_outbox_deliveries_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			deliveries += metric.GetCounter().GetValue()
		}
	}
	if deliveries != 2 {
		t.Fatalf("deliveries = %v, want 2", deliveries)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	loop := New(memory.New(), nil, nil, Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestAttemptStoreRecorderEmptyConsumerUsesDefault(t *testing.T) {
	store, err := workersqlite.Open(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("open worker store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	recorder := newAttemptStoreRecorder(store, " ")

	err = recorder.RecordAttempt(context.Background(), Attempt{
		EventID:      "ob-1",
		EventType:    purchasesdomain.ReceiptIssuedEventType,
		Outcome:      OutcomeSucceeded,
		AttemptCount: 1,
		CreatedAt:    loopEpoch,
	})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	records, err := store.ListAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 1 || records[0].Consumer != defaultConsumer || records[0].Outcome != "succeeded" {
		t.Fatalf("records = %+v", records)
	}
	if got := canonicalOutcomeValue(Outcome("weird")); got != "unknown" {
		t.Fatalf("canonical outcome = %q", got)
	}
}
