package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

// ReceiptIssuedEventType is the outbox event type for purchase receipts.
const ReceiptIssuedEventType = "purchases.receipt_issued"

// ReceiptIssuedPayload is the outbox payload consumed by the receipt
// notification worker.
type ReceiptIssuedPayload struct {
	ReceiptNumber string    `json:"receipt_number"`
	Kind          string    `json:"kind"`
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name,omitempty"`
	Description   string    `json:"description"`
	TokensSpent   int64     `json:"tokens_spent,omitempty"`
	TokensAdded   int64     `json:"tokens_added,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	IssuedAt      time.Time `json:"issued_at"`
}

// DecodeReceiptIssuedPayload parses and validates an outbox payload.
func DecodeReceiptIssuedPayload(payloadJSON string) (ReceiptIssuedPayload, error) {
	var payload ReceiptIssuedPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return ReceiptIssuedPayload{}, fmt.Errorf("decode receipt issued payload: %w", err)
	}
	if strings.TrimSpace(payload.ReceiptNumber) == "" {
		return ReceiptIssuedPayload{}, fmt.Errorf("receipt issued payload: receipt number is required")
	}
	if strings.TrimSpace(payload.Email) == "" {
		return ReceiptIssuedPayload{}, fmt.Errorf("receipt issued payload: email is required")
	}
	if _, err := model.ParseReceiptKind(payload.Kind); err != nil {
		return ReceiptIssuedPayload{}, fmt.Errorf("receipt issued payload: %w", err)
	}
	return payload, nil
}

// enqueueReceiptIssued writes the notification outbox row for a receipt.
func (s *Service) enqueueReceiptIssued(ctx context.Context, tx storage.Tx, payload ReceiptIssuedPayload) error {
	id, err := s.ids.EntityID()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode receipt issued payload: %w", err)
	}
	return tx.EnqueueOutboxEvent(ctx, storage.OutboxEvent{
		ID:          id,
		EventType:   ReceiptIssuedEventType,
		PayloadJSON: string(encoded),
		DedupeKey:   "receipt:" + payload.ReceiptNumber,
		CreatedAt:   payload.IssuedAt,
	})
}
