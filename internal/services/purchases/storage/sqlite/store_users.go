package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

// PutUser inserts or updates a user. The stored balance is only written on
// insert; later changes go through the balance operations.
func (s *Store) PutUser(ctx context.Context, user model.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	user.ID = strings.TrimSpace(user.ID)
	user.Email = strings.TrimSpace(user.Email)
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}
	if user.TokenBalance < 0 {
		return fmt.Errorf("token balance must not be negative")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, credential_hash, display_name, token_balance, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	email = excluded.email,
	credential_hash = excluded.credential_hash,
	display_name = excluded.display_name
`,
		user.ID,
		user.Email,
		user.CredentialHash,
		user.DisplayName,
		user.TokenBalance,
		toMillis(user.CreatedAt),
	)
	if err != nil {
		return mapWriteError("put user", err)
	}
	return nil
}

// GetUser returns a user account.
func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	if err := s.ready(ctx); err != nil {
		return model.User{}, err
	}
	return getUser(ctx, s.sqlDB, userID)
}

func getUser(ctx context.Context, q queryer, userID string) (model.User, error) {
	var user model.User
	var createdAt int64
	err := q.QueryRowContext(ctx, `
SELECT id, email, credential_hash, display_name, token_balance, created_at
FROM users
WHERE id = ?
`, strings.TrimSpace(userID)).Scan(
		&user.ID,
		&user.Email,
		&user.CredentialHash,
		&user.DisplayName,
		&user.TokenBalance,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, storage.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}

// PutEvent inserts or replaces a catalog event.
func (s *Store) PutEvent(ctx context.Context, event model.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.PriceTokens < 0 {
		return fmt.Errorf("event price must not be negative")
	}
	isLive := 0
	if event.IsLive {
		isLive = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO events (id, title, subtitle, description, is_live, viewer_count, price_tokens, starts_at, ends_at, playback_locator)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	subtitle = excluded.subtitle,
	description = excluded.description,
	is_live = excluded.is_live,
	viewer_count = excluded.viewer_count,
	price_tokens = excluded.price_tokens,
	starts_at = excluded.starts_at,
	ends_at = excluded.ends_at,
	playback_locator = excluded.playback_locator
`,
		event.ID,
		event.Title,
		event.Subtitle,
		event.Description,
		isLive,
		event.ViewerCount,
		event.PriceTokens,
		toMillis(event.StartsAt),
		toMillis(event.EndsAt),
		event.PlaybackLocator,
	)
	if err != nil {
		return mapWriteError("put event", err)
	}
	return nil
}

// GetEvent returns a catalog event.
func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if err := s.ready(ctx); err != nil {
		return model.Event{}, err
	}
	var event model.Event
	var isLive int
	var startsAt, endsAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, title, subtitle, description, is_live, viewer_count, price_tokens, starts_at, ends_at, playback_locator
FROM events
WHERE id = ?
`, strings.TrimSpace(eventID)).Scan(
		&event.ID,
		&event.Title,
		&event.Subtitle,
		&event.Description,
		&isLive,
		&event.ViewerCount,
		&event.PriceTokens,
		&startsAt,
		&endsAt,
		&event.PlaybackLocator,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	event.IsLive = isLive != 0
	event.StartsAt = fromMillis(startsAt)
	event.EndsAt = fromMillis(endsAt)
	return event, nil
}

// GetTokenBalance returns a user's balance.
func (s *Store) GetTokenBalance(ctx context.Context, userID string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return getTokenBalance(ctx, s.sqlDB, userID)
}

// DebitTokens applies a conditional debit in one statement.
func (s *Store) DebitTokens(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	return debitTokens(ctx, s.sqlDB, userID, amount)
}

// CreditTokens adds tokens in one statement.
func (s *Store) CreditTokens(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return creditTokens(ctx, s.sqlDB, userID, amount)
}

func getTokenBalance(ctx context.Context, q queryer, userID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT token_balance FROM users WHERE id = ?`, strings.TrimSpace(userID)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get token balance: %w", err)
	}
	return balance, nil
}

// debitTokens is a compare-and-swap: the WHERE clause re-checks the balance
// in the same statement that decrements it.
func debitTokens(ctx context.Context, q queryer, userID string, amount int64) (int64, bool, error) {
	userID = strings.TrimSpace(userID)
	var before int64
	err := q.QueryRowContext(ctx, `
UPDATE users
SET token_balance = token_balance - ?1
WHERE id = ?2 AND token_balance >= ?1
RETURNING token_balance + ?1
`, amount, userID).Scan(&before)
	if err == nil {
		return before, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("debit tokens: %w", err)
	}
	current, err := getTokenBalance(ctx, q, userID)
	if err != nil {
		return 0, false, err
	}
	return current, false, nil
}

func creditTokens(ctx context.Context, q queryer, userID string, amount int64) (int64, error) {
	var after int64
	err := q.QueryRowContext(ctx, `
UPDATE users
SET token_balance = token_balance + ?1
WHERE id = ?2
RETURNING token_balance
`, amount, strings.TrimSpace(userID)).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit tokens: %w", err)
	}
	return after, nil
}
