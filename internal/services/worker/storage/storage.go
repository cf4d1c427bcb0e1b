// Package storage defines persistence for outbox delivery attempts.
package storage

import (
	"context"
	"time"
)

// AttemptRecord is one durable outbox delivery outcome.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int32
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists delivery attempts so operators can audit retries and
// dead letters after the outbox row itself has been settled.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	ListAttemptsForEvent(ctx context.Context, eventID string) ([]AttemptRecord, error)
}
