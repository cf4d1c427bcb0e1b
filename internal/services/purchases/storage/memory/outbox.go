package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

// GetOutboxEvent returns one outbox event by id.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.state.outbox[strings.TrimSpace(id)]
	if !ok {
		return storage.OutboxEvent{}, storage.ErrNotFound
	}
	return event, nil
}

// ListOutboxEvents returns every outbox event ordered by creation.
func (s *Store) ListOutboxEvents() []storage.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]storage.OutboxEvent, 0, len(s.state.outbox))
	for _, event := range s.state.outbox {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

// LeaseOutboxEvents leases due events for one consumer.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
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
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []storage.OutboxEvent
	for _, event := range s.state.outbox {
		if leaseable(event, now) {
			due = append(due, event)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	leaseExpiresAt := now.Add(leaseTTL)
	for i := range due {
		due[i].Status = storage.OutboxStatusLeased
		due[i].LeaseOwner = consumer
		expires := leaseExpiresAt
		due[i].LeaseExpiresAt = &expires
		due[i].UpdatedAt = now
		s.state.outbox[due[i].ID] = due[i]
	}
	return due, nil
}

// MarkOutboxSucceeded completes a leased event.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id, consumer string, processedAt time.Time) error {
	return s.transition(ctx, id, consumer, func(event *storage.OutboxEvent) {
		processed := processedAt.UTC()
		event.Status = storage.OutboxStatusSucceeded
		event.LastError = ""
		event.ProcessedAt = &processed
		event.UpdatedAt = processed
	})
}

// MarkOutboxRetry reschedules a leased event.
func (s *Store) MarkOutboxRetry(ctx context.Context, id, consumer string, nextAttemptAt time.Time, lastError string) error {
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	return s.transition(ctx, id, consumer, func(event *storage.OutboxEvent) {
		event.Status = storage.OutboxStatusPending
		event.AttemptCount++
		event.NextAttemptAt = nextAttemptAt.UTC()
		event.LastError = strings.TrimSpace(lastError)
		event.UpdatedAt = time.Now().UTC()
	})
}

// MarkOutboxDead dead-letters a leased event.
func (s *Store) MarkOutboxDead(ctx context.Context, id, consumer, lastError string, processedAt time.Time) error {
	return s.transition(ctx, id, consumer, func(event *storage.OutboxEvent) {
		processed := processedAt.UTC()
		event.Status = storage.OutboxStatusDead
		event.AttemptCount++
		event.LastError = strings.TrimSpace(lastError)
		event.ProcessedAt = &processed
		event.UpdatedAt = processed
	})
}

func (s *Store) transition(ctx context.Context, id, consumer string, apply func(*storage.OutboxEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.state.outbox[strings.TrimSpace(id)]
	if !ok || event.Status != storage.OutboxStatusLeased || event.LeaseOwner != strings.TrimSpace(consumer) {
		return storage.ErrNotFound
	}
	apply(&event)
	event.LeaseOwner = ""
	event.LeaseExpiresAt = nil
	s.state.outbox[event.ID] = event
	return nil
}

func leaseable(event storage.OutboxEvent, now time.Time) bool {
	switch event.Status {
	case storage.OutboxStatusPending:
		return !event.NextAttemptAt.After(now)
	case storage.OutboxStatusLeased:
		return event.LeaseExpiresAt != nil && !event.LeaseExpiresAt.After(now)
	default:
		return false
	}
}
