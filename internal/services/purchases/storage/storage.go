package storage

import (
	"context"
	"time"

	"github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrConflict indicates a uniqueness constraint rejected a write.
var ErrConflict = errors.New(errors.CodeConflict, "record conflict")

// UserReader reads user accounts.
type UserReader interface {
	GetUser(ctx context.Context, userID string) (model.User, error)
}

// UserStore persists user accounts. Balances are only changed through
// BalanceStore.
type UserStore interface {
	UserReader
	PutUser(ctx context.Context, user model.User) error
}

// EventStore is the read-only event catalog lookup.
type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
}

// EventCatalogWriter loads catalog entries. Only seeding uses it.
type EventCatalogWriter interface {
	PutEvent(ctx context.Context, event model.Event) error
}

// BalanceStore mutates token balances atomically.
type BalanceStore interface {
	// GetTokenBalance returns the current balance.
	GetTokenBalance(ctx context.Context, userID string) (int64, error)
	// DebitTokens subtracts amount when the balance covers it. It returns the
	// balance observed before the debit and whether the debit applied.
	DebitTokens(ctx context.Context, userID string, amount int64) (before int64, applied bool, err error)
	// CreditTokens adds amount and returns the resulting balance.
	CreditTokens(ctx context.Context, userID string, amount int64) (after int64, err error)
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// AccessGrantReader reads event access grants.
type AccessGrantReader interface {
	// GetLatestAccessGrant returns the grant for (user, event) with the
	// latest expiry.
	GetLatestAccessGrant(ctx context.Context, userID, eventID string) (model.AccessGrant, error)
	ListAccessGrants(ctx context.Context, userID string, page Page) ([]model.AccessGrant, error)
	GetAccessGrantByReceipt(ctx context.Context, receiptNumber string) (model.AccessGrant, error)
}

// TokenPurchaseReader reads token package purchases.
type TokenPurchaseReader interface {
	GetTokenPurchaseByReceipt(ctx context.Context, receiptNumber string) (model.TokenPurchase, error)
}

// OrderReader reads the unified order history.
type OrderReader interface {
	ListOrders(ctx context.Context, userID string, page Page) ([]model.Order, error)
}

// OutboxEvent is one durable notification queued by a purchase.
type OutboxEvent struct {
	ID             string
	EventType      string
	PayloadJSON    string
	DedupeKey      string
	Status         string
	AttemptCount   int32
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	OutboxStatusPending   = "pending"
	OutboxStatusLeased    = "leased"
	OutboxStatusSucceeded = "succeeded"
	OutboxStatusDead      = "dead"
)

// OutboxStore is the worker-facing side of the purchase outbox.
type OutboxStore interface {
	GetOutboxEvent(ctx context.Context, id string) (OutboxEvent, error)
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id, consumer, lastError string, processedAt time.Time) error
}

// Tx is the write capability available inside one transaction.
type Tx interface {
	UserReader
	BalanceStore
	PutAccessGrant(ctx context.Context, grant model.AccessGrant) error
	PutTokenPurchase(ctx context.Context, purchase model.TokenPurchase) error
	PutOrder(ctx context.Context, order model.Order) error
	// ReserveReceiptNumber inserts the receipt index row and returns
	// ErrConflict when the number is already taken in either namespace.
	ReserveReceiptNumber(ctx context.Context, index model.ReceiptIndex) error
	EnqueueOutboxEvent(ctx context.Context, event OutboxEvent) error
}

// Store is the full purchases persistence capability.
type Store interface {
	UserStore
	EventStore
	BalanceStore
	AccessGrantReader
	TokenPurchaseReader
	OrderReader
	OutboxStore
	// WithinTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise; fn's error is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
