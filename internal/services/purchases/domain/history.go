package domain

import (
	"context"

	"github.com/eventpass/eventpass/internal/services/purchases/ledger"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
)

// OrderPage is one page of a user's order history, newest first.
type OrderPage struct {
	Orders        []model.Order
	NextPageToken string
}

// ListOrders returns the unified order history for a user.
func (s *Service) ListOrders(ctx context.Context, userID string, req PageRequest) (OrderPage, error) {
	if err := requireArgument("user_id", userID); err != nil {
		return OrderPage{}, err
	}
	page, err := req.storagePage()
	if err != nil {
		return OrderPage{}, err
	}
	orders, err := s.store.ListOrders(ctx, userID, page)
	if err != nil {
		return OrderPage{}, err
	}
	orders, next := trimPage(orders, page)
	return OrderPage{Orders: orders, NextPageToken: next}, nil
}

// GetBalance returns the user's current token balance.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := requireArgument("user_id", userID); err != nil {
		return 0, err
	}
	balance, err := ledger.New(s.store).Balance(ctx, userID)
	if err != nil {
		return 0, notFound("user", err)
	}
	return balance, nil
}
