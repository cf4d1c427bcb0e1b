package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/ident"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/eventpass/eventpass/internal/services/purchases/signature"
	"github.com/eventpass/eventpass/internal/services/purchases/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProcessor struct {
	mu       sync.Mutex
	requests []payment.ChargeRequest
	result   payment.ChargeResult
	err      error
}

func (p *fakeProcessor) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return payment.ChargeResult{}, p.err
	}
	return p.result, nil
}

type fixture struct {
	service   *Service
	store     *memory.Store
	clock     *fakeClock
	processor *fakeProcessor
	signer    *signature.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keyring, err := signature.NewKeyring(map[string][]byte{"v1": []byte("test-receipt-root-key")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	signer, err := signature.NewEngine(keyring)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	processor := &fakeProcessor{result: payment.ChargeResult{PaymentID: "sq_pay_1", Status: "COMPLETED"}}
	service, err := NewService(Config{
		Store:     store,
		Signer:    signer,
		IDs:       ident.NewGenerator(ident.WithClock(clock.Now)),
		Processor: processor,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{service: service, store: store, clock: clock, processor: processor, signer: signer}
}

func (f *fixture) seedUser(t *testing.T, id string, balance int64) {
	t.Helper()
	if err := f.store.PutUser(context.Background(), model.User{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "User " + id,
		TokenBalance: balance,
		CreatedAt:    f.clock.Now(),
	}); err != nil {
		t.Fatalf("put user: %v", err)
	}
}

func (f *fixture) seedEvent(t *testing.T, id string, price int64) {
	t.Helper()
	if err := f.store.PutEvent(context.Background(), model.Event{
		ID:              id,
		Title:           "Show " + id,
		PriceTokens:     price,
		StartsAt:        f.clock.Now().Add(24 * time.Hour),
		EndsAt:          f.clock.Now().Add(26 * time.Hour),
		PlaybackLocator: "https://stream.example.com/" + id + ".m3u8",
	}); err != nil {
		t.Fatalf("put event: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	balance, err := f.service.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	f := newFixture(t)
	_, err := NewService(Config{
		Store:     f.store,
		Signer:    f.signer,
		Processor: f.processor,
		Packages:  []model.TokenPackage{{ID: "x", Tokens: 0}},
	})
	if err == nil {
		t.Fatal("expected error for invalid package")
	}
}

func TestPageTokenRoundTrip(t *testing.T) {
	token := encodePageToken(40)
	offset, err := decodePageToken(token)
	if err != nil || offset != 40 {
		t.Fatalf("decode = (%d, %v), want 40", offset, err)
	}
	for _, bad := range []string{"not-base64!", encodePageToken(-1), "b2Zmc2V0Onh4"} {
		if _, err := decodePageToken(bad); err == nil {
			t.Fatalf("decodePageToken(%q) expected error", bad)
		}
	}
}
