package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

type memTx struct {
	state  *state
	faults map[string]error
}

func (t *memTx) fault(method string) error {
	err, ok := t.faults[method]
	if !ok {
		return nil
	}
	delete(t.faults, method)
	return err
}

func (t *memTx) GetUser(ctx context.Context, userID string) (model.User, error) {
	if err := t.fault("GetUser"); err != nil {
		return model.User{}, err
	}
	return getUser(t.state, userID)
}

func (t *memTx) GetTokenBalance(ctx context.Context, userID string) (int64, error) {
	user, err := t.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.TokenBalance, nil
}

func (t *memTx) DebitTokens(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	if err := t.fault("DebitTokens"); err != nil {
		return 0, false, err
	}
	return debit(t.state, userID, amount)
}

func (t *memTx) CreditTokens(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := t.fault("CreditTokens"); err != nil {
		return 0, err
	}
	return credit(t.state, userID, amount)
}

func (t *memTx) PutAccessGrant(ctx context.Context, grant model.AccessGrant) error {
	if err := t.fault("PutAccessGrant"); err != nil {
		return err
	}
	if strings.TrimSpace(grant.ID) == "" {
		return fmt.Errorf("grant id is required")
	}
	for _, existing := range t.state.grants {
		if existing.ID == grant.ID || existing.AccessToken == grant.AccessToken || existing.ReceiptNumber == grant.ReceiptNumber {
			return storage.ErrConflict
		}
	}
	t.state.grants = append(t.state.grants, grant)
	return nil
}

func (t *memTx) PutTokenPurchase(ctx context.Context, purchase model.TokenPurchase) error {
	if err := t.fault("PutTokenPurchase"); err != nil {
		return err
	}
	if strings.TrimSpace(purchase.ID) == "" {
		return fmt.Errorf("token purchase id is required")
	}
	for _, existing := range t.state.tokenPurchases {
		if existing.ID == purchase.ID || existing.ReceiptNumber == purchase.ReceiptNumber {
			return storage.ErrConflict
		}
	}
	t.state.tokenPurchases = append(t.state.tokenPurchases, purchase)
	return nil
}

func (t *memTx) PutOrder(ctx context.Context, order model.Order) error {
	if err := t.fault("PutOrder"); err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("order id is required")
	}
	for _, existing := range t.state.orders {
		if existing.ID == order.ID {
			return storage.ErrConflict
		}
	}
	t.state.orders = append(t.state.orders, order)
	return nil
}

func (t *memTx) ReserveReceiptNumber(ctx context.Context, index model.ReceiptIndex) error {
	if err := t.fault("ReserveReceiptNumber"); err != nil {
		return err
	}
	if _, ok := t.state.receipts[index.ReceiptNumber]; ok {
		return storage.ErrConflict
	}
	t.state.receipts[index.ReceiptNumber] = index
	return nil
}

func (t *memTx) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := t.fault("EnqueueOutboxEvent"); err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(event.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	for _, existing := range t.state.outbox {
		if event.DedupeKey != "" && existing.DedupeKey == event.DedupeKey {
			return nil
		}
	}
	now := time.Now().UTC()
	if event.Status == "" {
		event.Status = storage.OutboxStatusPending
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = event.CreatedAt
	}
	t.state.outbox[event.ID] = event
	return nil
}

var _ storage.Tx = (*memTx)(nil)
