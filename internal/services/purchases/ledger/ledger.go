// Package ledger is the sole mutator of user token balances.
//
// A Ledger runs over any BalanceStore: the root store for standalone reads
// and credits, or a transaction handle when the mutation must commit together
// with other purchase records.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

// InsufficientBalance reports a debit larger than the current balance.
type InsufficientBalance struct {
	Required int64
	Current  int64
	Shortage int64
}

// NewInsufficientBalance builds the detail for a required/current pair.
func NewInsufficientBalance(required, current int64) *InsufficientBalance {
	return &InsufficientBalance{Required: required, Current: current, Shortage: required - current}
}

func (e *InsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient token balance: required %d, current %d, shortage %d", e.Required, e.Current, e.Shortage)
}

// Unwrap exposes the coded domain error so transports map it by code.
func (e *InsufficientBalance) Unwrap() error {
	return apperrors.WithMetadata(apperrors.CodeInsufficientBalance, "insufficient token balance", map[string]string{
		"Required": strconv.FormatInt(e.Required, 10),
		"Current":  strconv.FormatInt(e.Current, 10),
		"Shortage": strconv.FormatInt(e.Shortage, 10),
	})
}

// ErrInvalidAmount rejects negative token amounts.
var ErrInvalidAmount = apperrors.New(apperrors.CodeInvalidAmount, "token amount must not be negative")

// Ledger applies balance operations through a BalanceStore.
type Ledger struct {
	store storage.BalanceStore
}

// New returns a ledger over store.
func New(store storage.BalanceStore) *Ledger {
	return &Ledger{store: store}
}

// Debit subtracts amount and returns the pre-debit balance. A debit larger
// than the balance fails with *InsufficientBalance and leaves it unchanged.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := l.validate(userID, amount); err != nil {
		return 0, err
	}
	before, applied, err := l.store.DebitTokens(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit tokens: %w", err)
	}
	if !applied {
		return before, NewInsufficientBalance(amount, before)
	}
	return before, nil
}

// Credit adds amount and returns the resulting balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := l.validate(userID, amount); err != nil {
		return 0, err
	}
	after, err := l.store.CreditTokens(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit tokens: %w", err)
	}
	return after, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("ledger store is not configured")
	}
	balance, err := l.store.GetTokenBalance(ctx, strings.TrimSpace(userID))
	if err != nil {
		return 0, fmt.Errorf("get token balance: %w", err)
	}
	return balance, nil
}

func (l *Ledger) validate(userID string, amount int64) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("ledger store is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "user id is required")
	}
	if amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
