package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	purchasesstorage "github.com/eventpass/eventpass/internal/services/purchases/storage"
)

type recordingSender struct {
	messages []notify.Message
	err      error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected send deadline")
	}
	s.messages = append(s.messages, msg)
	return s.err
}

func receiptEvent(t *testing.T, payload purchasesdomain.ReceiptIssuedPayload) purchasesstorage.OutboxEvent {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return purchasesstorage.OutboxEvent{
		ID:          "ob-1",
		EventType:   purchasesdomain.ReceiptIssuedEventType,
		PayloadJSON: string(encoded),
	}
}

func validPayload() purchasesdomain.ReceiptIssuedPayload {
	return purchasesdomain.ReceiptIssuedPayload{
		ReceiptNumber: "RCP-ABC-0123456789",
		Kind:          "event_access",
		UserID:        "u1",
		Email:         "u1@example.com",
		Description:   "Access: Finals",
		TokensSpent:   50,
		ExpiresAt:     time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC),
		IssuedAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestReceiptNotificationHandlerSends(t *testing.T) {
	sender := &recordingSender{}
	handler := NewReceiptNotificationHandler(sender, nil)

	if err := handler.Handle(context.Background(), receiptEvent(t, validPayload())); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.messages) != 1 || sender.messages[0].To != "u1@example.com" {
		t.Fatalf("messages = %+v", sender.messages)
	}
}

func TestReceiptNotificationHandlerPermanentFailures(t *testing.T) {
	badKind := validPayload()
	badKind.Kind = "refund"

	tests := []struct {
		name    string
		handler *ReceiptNotificationHandler
		event   purchasesstorage.OutboxEvent
	}{
		{name: "no sender", handler: NewReceiptNotificationHandler(nil, nil), event: receiptEvent(t, validPayload())},
		{name: "wrong event type", handler: NewReceiptNotificationHandler(&recordingSender{}, nil), event: purchasesstorage.OutboxEvent{ID: "ob-1", EventType: "other"}},
		{name: "malformed payload", handler: NewReceiptNotificationHandler(&recordingSender{}, nil), event: purchasesstorage.OutboxEvent{ID: "ob-1", EventType: purchasesdomain.ReceiptIssuedEventType, PayloadJSON: "{"}},
		{name: "unknown kind", handler: NewReceiptNotificationHandler(&recordingSender{}, nil), event: receiptEvent(t, badKind)},
		{name: "invalid recipient", handler: NewReceiptNotificationHandler(&recordingSender{err: &notify.InvalidRecipientError{Address: "x"}}, nil), event: receiptEvent(t, validPayload())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.handler.Handle(context.Background(), tt.event)
			if !IsPermanent(err) {
				t.Fatalf("error = %v, want permanent", err)
			}
		})
	}
}

func TestReceiptNotificationHandlerTransientFailure(t *testing.T) {
	handler := NewReceiptNotificationHandler(&recordingSender{err: errors.New("connection refused")}, nil)
	err := handler.Handle(context.Background(), receiptEvent(t, validPayload()))
	if err == nil || IsPermanent(err) {
		t.Fatalf("error = %v, want retryable", err)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("expected nil")
	}
	if IsPermanent(errors.New("plain")) {
		t.Fatal("plain error is not permanent")
	}
}
