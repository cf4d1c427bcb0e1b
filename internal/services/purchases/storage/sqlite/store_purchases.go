package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	"github.com/shopspring/decimal"
)

const accessGrantColumns = `id, user_id, event_id, access_token, issued_at, expires_at, tokens_spent, receipt_number, signature`

const tokenPurchaseColumns = `id, user_id, package_id, tokens_added, bonus_tokens, amount_paid, currency, square_payment_id, receipt_number, signature, created_at`

const orderColumns = `id, user_id, order_type, description, amount, status, payment_id, receipt_number, signature, created_at`

type rowScanner func(dest ...any) error

// GetLatestAccessGrant returns the grant for (user, event) with the latest expiry.
func (s *Store) GetLatestAccessGrant(ctx context.Context, userID, eventID string) (model.AccessGrant, error) {
	if err := s.ready(ctx); err != nil {
		return model.AccessGrant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+accessGrantColumns+`
FROM purchases
WHERE user_id = ? AND event_id = ?
ORDER BY expires_at DESC, id DESC
LIMIT 1
`, strings.TrimSpace(userID), strings.TrimSpace(eventID))
	return scanAccessGrantRow(row.Scan, "get latest access grant")
}

// ListAccessGrants lists a user's grants newest first.
func (s *Store) ListAccessGrants(ctx context.Context, userID string, page storage.Page) ([]model.AccessGrant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+accessGrantColumns+`
FROM purchases
WHERE user_id = ?
ORDER BY issued_at DESC, id DESC
LIMIT ? OFFSET ?
`, strings.TrimSpace(userID), limitOf(page), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	grants := make([]model.AccessGrant, 0)
	for rows.Next() {
		grant, err := scanAccessGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan access grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access grants: %w", err)
	}
	return grants, nil
}

// GetAccessGrantByReceipt looks up a grant by receipt number.
func (s *Store) GetAccessGrantByReceipt(ctx context.Context, receiptNumber string) (model.AccessGrant, error) {
	if err := s.ready(ctx); err != nil {
		return model.AccessGrant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+accessGrantColumns+`
FROM purchases
WHERE receipt_number = ?
`, strings.TrimSpace(receiptNumber))
	return scanAccessGrantRow(row.Scan, "get access grant by receipt")
}

// GetTokenPurchaseByReceipt looks up a token purchase by receipt number.
func (s *Store) GetTokenPurchaseByReceipt(ctx context.Context, receiptNumber string) (model.TokenPurchase, error) {
	if err := s.ready(ctx); err != nil {
		return model.TokenPurchase{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+tokenPurchaseColumns+`
FROM token_purchases
WHERE receipt_number = ?
`, strings.TrimSpace(receiptNumber))
	purchase, err := scanTokenPurchase(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TokenPurchase{}, storage.ErrNotFound
	}
	if err != nil {
		return model.TokenPurchase{}, fmt.Errorf("get token purchase by receipt: %w", err)
	}
	return purchase, nil
}

// ListOrders lists a user's orders newest first.
func (s *Store) ListOrders(ctx context.Context, userID string, page storage.Page) ([]model.Order, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`, strings.TrimSpace(userID), limitOf(page), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func putAccessGrant(ctx context.Context, q queryer, grant model.AccessGrant) error {
	if strings.TrimSpace(grant.ID) == "" {
		return fmt.Errorf("grant id is required")
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO purchases (`+accessGrantColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		grant.ID,
		grant.UserID,
		grant.EventID,
		grant.AccessToken,
		toMillis(grant.IssuedAt),
		toMillis(grant.ExpiresAt),
		grant.TokensSpent,
		grant.ReceiptNumber,
		grant.Signature,
	)
	if err != nil {
		return mapWriteError("put access grant", err)
	}
	return nil
}

func putTokenPurchase(ctx context.Context, q queryer, purchase model.TokenPurchase) error {
	if strings.TrimSpace(purchase.ID) == "" {
		return fmt.Errorf("token purchase id is required")
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO token_purchases (`+tokenPurchaseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		purchase.ID,
		purchase.UserID,
		purchase.PackageID,
		purchase.Tokens,
		purchase.BonusTokens,
		purchase.AmountPaid.StringFixed(2),
		purchase.Currency,
		purchase.PaymentID,
		purchase.ReceiptNumber,
		purchase.Signature,
		toMillis(purchase.CreatedAt),
	)
	if err != nil {
		return mapWriteError("put token purchase", err)
	}
	return nil
}

func putOrder(ctx context.Context, q queryer, order model.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("order id is required")
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		order.ID,
		order.UserID,
		order.Type.String(),
		order.Description,
		order.Amount.StringFixed(2),
		order.Status.String(),
		order.PaymentID,
		order.ReceiptNumber,
		order.Signature,
		toMillis(order.CreatedAt),
	)
	if err != nil {
		return mapWriteError("put order", err)
	}
	return nil
}

func reserveReceiptNumber(ctx context.Context, q queryer, index model.ReceiptIndex) error {
	if strings.TrimSpace(index.ReceiptNumber) == "" {
		return fmt.Errorf("receipt number is required")
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO receipt_numbers (receipt_number, kind, purchase_id, created_at)
VALUES (?, ?, ?, ?)
`,
		index.ReceiptNumber,
		index.Kind.String(),
		index.PurchaseID,
		toMillis(index.CreatedAt),
	)
	if err != nil {
		return mapWriteError("reserve receipt number", err)
	}
	return nil
}

func scanAccessGrantRow(scan rowScanner, op string) (model.AccessGrant, error) {
	grant, err := scanAccessGrant(scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessGrant{}, storage.ErrNotFound
	}
	if err != nil {
		return model.AccessGrant{}, fmt.Errorf("%s: %w", op, err)
	}
	return grant, nil
}

func scanAccessGrant(scan rowScanner) (model.AccessGrant, error) {
	var grant model.AccessGrant
	var issuedAt, expiresAt int64
	if err := scan(
		&grant.ID,
		&grant.UserID,
		&grant.EventID,
		&grant.AccessToken,
		&issuedAt,
		&expiresAt,
		&grant.TokensSpent,
		&grant.ReceiptNumber,
		&grant.Signature,
	); err != nil {
		return model.AccessGrant{}, err
	}
	grant.IssuedAt = fromMillis(issuedAt)
	grant.ExpiresAt = fromMillis(expiresAt)
	return grant, nil
}

func scanTokenPurchase(scan rowScanner) (model.TokenPurchase, error) {
	var purchase model.TokenPurchase
	var amount string
	var createdAt int64
	if err := scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.PackageID,
		&purchase.Tokens,
		&purchase.BonusTokens,
		&amount,
		&purchase.Currency,
		&purchase.PaymentID,
		&purchase.ReceiptNumber,
		&purchase.Signature,
		&createdAt,
	); err != nil {
		return model.TokenPurchase{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return model.TokenPurchase{}, fmt.Errorf("parse amount paid: %w", err)
	}
	purchase.AmountPaid = parsed
	purchase.CreatedAt = fromMillis(createdAt)
	return purchase, nil
}

func scanOrder(scan rowScanner) (model.Order, error) {
	var order model.Order
	var orderType, status, amount string
	var createdAt int64
	if err := scan(
		&order.ID,
		&order.UserID,
		&orderType,
		&order.Description,
		&amount,
		&status,
		&order.PaymentID,
		&order.ReceiptNumber,
		&order.Signature,
		&createdAt,
	); err != nil {
		return model.Order{}, err
	}
	var err error
	if order.Type, err = model.ParseOrderType(orderType); err != nil {
		return model.Order{}, err
	}
	if order.Status, err = model.ParseOrderStatus(status); err != nil {
		return model.Order{}, err
	}
	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Order{}, fmt.Errorf("parse order amount: %w", err)
	}
	order.CreatedAt = fromMillis(createdAt)
	return order, nil
}

// limitOf maps a non-positive limit to SQLite's "no limit".
func limitOf(page storage.Page) int {
	if page.Limit <= 0 {
		return -1
	}
	return page.Limit
}
