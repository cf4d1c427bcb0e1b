// Package memory implements the purchases storage boundary in process memory.
// Transactions hold the store lock and stage writes on a copy of the state,
// which is swapped in on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

type state struct {
	users          map[string]model.User
	events         map[string]model.Event
	grants         []model.AccessGrant
	tokenPurchases []model.TokenPurchase
	orders         []model.Order
	receipts       map[string]model.ReceiptIndex
	outbox         map[string]storage.OutboxEvent
}

func newState() *state {
	return &state{
		users:    make(map[string]model.User),
		events:   make(map[string]model.Event),
		receipts: make(map[string]model.ReceiptIndex),
		outbox:   make(map[string]storage.OutboxEvent),
	}
}

func (s *state) clone() *state {
	next := &state{
		users:          make(map[string]model.User, len(s.users)),
		events:         s.events,
		grants:         append([]model.AccessGrant(nil), s.grants...),
		tokenPurchases: append([]model.TokenPurchase(nil), s.tokenPurchases...),
		orders:         append([]model.Order(nil), s.orders...),
		receipts:       make(map[string]model.ReceiptIndex, len(s.receipts)),
		outbox:         make(map[string]storage.OutboxEvent, len(s.outbox)),
	}
	for k, v := range s.users {
		next.users[k] = v
	}
	for k, v := range s.receipts {
		next.receipts[k] = v
	}
	for k, v := range s.outbox {
		next.outbox[k] = v
	}
	return next
}

// Store is an in-memory purchases store.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), faults: make(map[string]error)}
}

// FailNext makes the next call to the named transaction method fail with err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// AlterTokenPurchase edits a stored token purchase in place, bypassing every
// invariant. It exists to simulate out-of-band tampering.
func (s *Store) AlterTokenPurchase(receiptNumber string, edit func(*model.TokenPurchase)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.tokenPurchases {
		if s.state.tokenPurchases[i].ReceiptNumber == receiptNumber {
			edit(&s.state.tokenPurchases[i])
			return nil
		}
	}
	return storage.ErrNotFound
}

// AlterAccessGrant edits a stored access grant in place.
func (s *Store) AlterAccessGrant(receiptNumber string, edit func(*model.AccessGrant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.grants {
		if s.state.grants[i].ReceiptNumber == receiptNumber {
			edit(&s.state.grants[i])
			return nil
		}
	}
	return storage.ErrNotFound
}

// PutEvent stores a catalog event.
func (s *Store) PutEvent(ctx context.Context, event model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make(map[string]model.Event, len(s.state.events)+1)
	for k, v := range s.state.events {
		events[k] = v
	}
	events[event.ID] = event
	s.state.events = events
	return nil
}

// GetEvent returns a catalog event.
func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.state.events[strings.TrimSpace(eventID)]
	if !ok {
		return model.Event{}, storage.ErrNotFound
	}
	return event, nil
}

// PutUser stores a user account.
func (s *Store) PutUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if user.TokenBalance < 0 {
		return fmt.Errorf("token balance must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.state.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return storage.ErrConflict
		}
	}
	s.state.users[user.ID] = user
	return nil
}

// GetUser returns a user account.
func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return getUser(s.state, userID)
}

// GetTokenBalance returns a user's balance.
func (s *Store) GetTokenBalance(ctx context.Context, userID string) (int64, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.TokenBalance, nil
}

// DebitTokens debits under the store lock.
func (s *Store) DebitTokens(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return debit(s.state, userID, amount)
}

// CreditTokens credits under the store lock.
func (s *Store) CreditTokens(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return credit(s.state, userID, amount)
}

// GetLatestAccessGrant returns the grant with the latest expiry.
func (s *Store) GetLatestAccessGrant(ctx context.Context, userID, eventID string) (model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return model.AccessGrant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest model.AccessGrant
	found := false
	for _, grant := range s.state.grants {
		if grant.UserID != userID || grant.EventID != eventID {
			continue
		}
		if !found || grant.ExpiresAt.After(latest.ExpiresAt) {
			latest = grant
			found = true
		}
	}
	if !found {
		return model.AccessGrant{}, storage.ErrNotFound
	}
	return latest, nil
}

// ListAccessGrants lists a user's grants newest first.
func (s *Store) ListAccessGrants(ctx context.Context, userID string, page storage.Page) ([]model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var grants []model.AccessGrant
	for _, grant := range s.state.grants {
		if grant.UserID == userID {
			grants = append(grants, grant)
		}
	}
	sort.SliceStable(grants, func(i, j int) bool {
		if !grants[i].IssuedAt.Equal(grants[j].IssuedAt) {
			return grants[i].IssuedAt.After(grants[j].IssuedAt)
		}
		return grants[i].ID > grants[j].ID
	})
	return paginate(grants, page), nil
}

// GetAccessGrantByReceipt looks up a grant by receipt number.
func (s *Store) GetAccessGrantByReceipt(ctx context.Context, receiptNumber string) (model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return model.AccessGrant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, grant := range s.state.grants {
		if grant.ReceiptNumber == receiptNumber {
			return grant, nil
		}
	}
	return model.AccessGrant{}, storage.ErrNotFound
}

// GetTokenPurchaseByReceipt looks up a token purchase by receipt number.
func (s *Store) GetTokenPurchaseByReceipt(ctx context.Context, receiptNumber string) (model.TokenPurchase, error) {
	if err := ctx.Err(); err != nil {
		return model.TokenPurchase{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, purchase := range s.state.tokenPurchases {
		if purchase.ReceiptNumber == receiptNumber {
			return purchase, nil
		}
	}
	return model.TokenPurchase{}, storage.ErrNotFound
}

// ListOrders lists a user's orders newest first.
func (s *Store) ListOrders(ctx context.Context, userID string, page storage.Page) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []model.Order
	for _, order := range s.state.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return paginate(orders, page), nil
}

// WithinTx runs fn against a staged copy of the state and swaps it in when
// fn succeeds. The store lock is held for the whole call.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{state: s.state.clone(), faults: s.faults}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func getUser(st *state, userID string) (model.User, error) {
	user, ok := st.users[strings.TrimSpace(userID)]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return user, nil
}

func debit(st *state, userID string, amount int64) (int64, bool, error) {
	user, err := getUser(st, userID)
	if err != nil {
		return 0, false, err
	}
	before := user.TokenBalance
	if amount > before {
		return before, false, nil
	}
	user.TokenBalance = before - amount
	st.users[user.ID] = user
	return before, true, nil
}

func credit(st *state, userID string, amount int64) (int64, error) {
	user, err := getUser(st, userID)
	if err != nil {
		return 0, err
	}
	user.TokenBalance += amount
	st.users[user.ID] = user
	return user.TokenBalance, nil
}

func paginate[T any](items []T, page storage.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

var _ storage.Store = (*Store)(nil)
