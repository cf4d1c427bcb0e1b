package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventpass/eventpass/internal/platform/timeouts"
	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/notify"
	purchasesstorage "github.com/eventpass/eventpass/internal/services/purchases/storage"
	"golang.org/x/text/language"
)

// ReceiptNotificationHandler emails a receipt for each issued purchase.
type ReceiptNotificationHandler struct {
	sender    notify.Sender
	localizer notify.Localizer
}

// NewReceiptNotificationHandler returns a handler sending through sender.
// A nil localizer renders English copy.
func NewReceiptNotificationHandler(sender notify.Sender, localizer notify.Localizer) *ReceiptNotificationHandler {
	if localizer == nil {
		localizer = notify.NewLocalizer(language.English)
	}
	return &ReceiptNotificationHandler{sender: sender, localizer: localizer}
}

// Handle renders and sends the receipt email for one outbox event.
func (h *ReceiptNotificationHandler) Handle(ctx context.Context, event purchasesstorage.OutboxEvent) error {
	if h == nil || h.sender == nil {
		return Permanent(fmt.Errorf("notification sender is not configured"))
	}
	if event.EventType != purchasesdomain.ReceiptIssuedEventType {
		return Permanent(fmt.Errorf("unsupported event type %q", event.EventType))
	}
	payload, err := purchasesdomain.DecodeReceiptIssuedPayload(event.PayloadJSON)
	if err != nil {
		return Permanent(err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, timeouts.NotificationSend)
	defer cancel()
	err = h.sender.Send(sendCtx, notify.RenderReceipt(h.localizer, payload))
	if err == nil {
		return nil
	}
	var invalid *notify.InvalidRecipientError
	if errors.As(err, &invalid) {
		return Permanent(err)
	}
	return fmt.Errorf("send receipt %s: %w", payload.ReceiptNumber, err)
}
