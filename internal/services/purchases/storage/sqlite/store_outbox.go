package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

const outboxColumns = `id, event_type, payload_json, dedupe_key, status, attempt_count, next_attempt_at, lease_owner, lease_expires_at, last_error, processed_at, created_at, updated_at`

// GetOutboxEvent returns one outbox event by id.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OutboxEvent{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM purchase_outbox WHERE id = ?`, id)
	event, err := scanOutboxEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.OutboxEvent{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// LeaseOutboxEvents leases due outbox events for one consumer. Expired
// leases are reclaimed.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	nowMillis := toMillis(now)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
UPDATE purchase_outbox
SET
	status = ?,
	lease_owner = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE id IN (
	SELECT id
	FROM purchase_outbox
	WHERE (status = ? AND next_attempt_at <= ?)
	OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
	ORDER BY next_attempt_at ASC, created_at ASC, id ASC
	LIMIT ?
)
RETURNING `+outboxColumns,
		storage.OutboxStatusLeased,
		consumer,
		toMillis(now.Add(leaseTTL)),
		nowMillis,
		storage.OutboxStatusPending,
		nowMillis,
		storage.OutboxStatusLeased,
		nowMillis,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lease outbox events: %w", err)
	}
	leased := make([]storage.OutboxEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanOutboxEvent(rows.Scan)
		if scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan leased outbox event: %w", scanErr)
		}
		leased = append(leased, event)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate leased outbox events: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close leased outbox events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// MarkOutboxSucceeded completes one leased event.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id, consumer string, processedAt time.Time) error {
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	return s.transitionLeased(ctx, "mark outbox succeeded", id, consumer, `
status = ?,
last_error = '',
processed_at = ?,
updated_at = ?`,
		storage.OutboxStatusSucceeded,
		toMillis(processedAt),
		toMillis(processedAt),
	)
}

// MarkOutboxRetry reschedules one leased event.
func (s *Store) MarkOutboxRetry(ctx context.Context, id, consumer string, nextAttemptAt time.Time, lastError string) error {
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	return s.transitionLeased(ctx, "mark outbox retry", id, consumer, `
status = ?,
attempt_count = attempt_count + 1,
next_attempt_at = ?,
last_error = ?,
processed_at = NULL,
updated_at = ?`,
		storage.OutboxStatusPending,
		toMillis(nextAttemptAt),
		strings.TrimSpace(lastError),
		toMillis(time.Now()),
	)
}

// MarkOutboxDead dead-letters one leased event.
func (s *Store) MarkOutboxDead(ctx context.Context, id, consumer, lastError string, processedAt time.Time) error {
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	return s.transitionLeased(ctx, "mark outbox dead", id, consumer, `
status = ?,
attempt_count = attempt_count + 1,
last_error = ?,
processed_at = ?,
updated_at = ?`,
		storage.OutboxStatusDead,
		strings.TrimSpace(lastError),
		toMillis(processedAt),
		toMillis(processedAt),
	)
}

// transitionLeased applies set to an event still leased by consumer.
func (s *Store) transitionLeased(ctx context.Context, op, id, consumer, set string, args ...any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	args = append(args, id, storage.OutboxStatusLeased, consumer)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE purchase_outbox
SET `+set+`,
lease_owner = '',
lease_expires_at = NULL
WHERE id = ?
AND status = ?
AND lease_owner = ?
`, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// enqueueOutboxEvent inserts an event; a repeated dedupe key is ignored.
func enqueueOutboxEvent(ctx context.Context, q queryer, event storage.OutboxEvent) error {
	event, err := normalizeOutboxEvent(event)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO purchase_outbox (`+outboxColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?, ?)
ON CONFLICT(dedupe_key) WHERE dedupe_key <> '' DO NOTHING
`,
		event.ID,
		event.EventType,
		event.PayloadJSON,
		event.DedupeKey,
		event.Status,
		event.AttemptCount,
		toMillis(event.NextAttemptAt),
		event.LeaseOwner,
		event.LastError,
		toMillis(event.CreatedAt),
		toMillis(event.UpdatedAt),
	)
	if err != nil {
		return mapWriteError("enqueue outbox event", err)
	}
	return nil
}

func normalizeOutboxEvent(event storage.OutboxEvent) (storage.OutboxEvent, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.EventType = strings.TrimSpace(event.EventType)
	event.PayloadJSON = strings.TrimSpace(event.PayloadJSON)
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	event.Status = strings.TrimSpace(event.Status)
	if event.ID == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}
	if event.EventType == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event type is required")
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.Status == "" {
		event.Status = storage.OutboxStatusPending
	}
	if event.AttemptCount < 0 {
		return storage.OutboxEvent{}, fmt.Errorf("attempt count must be greater than or equal to zero")
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = event.CreatedAt
	}
	return event, nil
}

func scanOutboxEvent(scan rowScanner) (storage.OutboxEvent, error) {
	var event storage.OutboxEvent
	var nextAttemptAt, createdAt, updatedAt int64
	var leaseExpiresAt, processedAt sql.NullInt64
	if err := scan(
		&event.ID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	if leaseExpiresAt.Valid {
		value := fromMillis(leaseExpiresAt.Int64)
		event.LeaseExpiresAt = &value
	}
	if processedAt.Valid {
		value := fromMillis(processedAt.Int64)
		event.ProcessedAt = &value
	}
	return event, nil
}
