package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

// WithinTx runs fn in one SQLite transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, &txStore{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	return getUser(ctx, t.tx, userID)
}

func (t *txStore) GetTokenBalance(ctx context.Context, userID string) (int64, error) {
	return getTokenBalance(ctx, t.tx, userID)
}

func (t *txStore) DebitTokens(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	return debitTokens(ctx, t.tx, userID, amount)
}

func (t *txStore) CreditTokens(ctx context.Context, userID string, amount int64) (int64, error) {
	return creditTokens(ctx, t.tx, userID, amount)
}

func (t *txStore) PutAccessGrant(ctx context.Context, grant model.AccessGrant) error {
	return putAccessGrant(ctx, t.tx, grant)
}

func (t *txStore) PutTokenPurchase(ctx context.Context, purchase model.TokenPurchase) error {
	return putTokenPurchase(ctx, t.tx, purchase)
}

func (t *txStore) PutOrder(ctx context.Context, order model.Order) error {
	return putOrder(ctx, t.tx, order)
}

func (t *txStore) ReserveReceiptNumber(ctx context.Context, index model.ReceiptIndex) error {
	return reserveReceiptNumber(ctx, t.tx, index)
}

func (t *txStore) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	return enqueueOutboxEvent(ctx, t.tx, event)
}

var _ storage.Tx = (*txStore)(nil)
