package notify

import (
	"strings"

	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localizer is the message printer contract used to render receipts.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewLocalizer returns a printer for tag.
func NewLocalizer(tag language.Tag) Localizer {
	return message.NewPrinter(tag)
}

// RenderReceipt builds the receipt email for one issued receipt.
func RenderReceipt(loc Localizer, payload purchasesdomain.ReceiptIssuedPayload) Message {
	if loc == nil {
		loc = NewLocalizer(language.English)
	}
	name := strings.TrimSpace(payload.DisplayName)
	if name == "" {
		name = payload.Email
	}

	var subject, detail string
	switch payload.Kind {
	case model.ReceiptKindTokenPackage.String():
		subject = loc.Sprintf("receipt.token_package.subject", payload.ReceiptNumber)
		detail = loc.Sprintf("receipt.token_package.detail", payload.TokensAdded, payload.Amount, payload.Currency)
	default:
		subject = loc.Sprintf("receipt.event_access.subject", payload.ReceiptNumber)
		detail = loc.Sprintf("receipt.event_access.detail", payload.Description, payload.TokensSpent, payload.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	body := strings.Join([]string{
		loc.Sprintf("receipt.greeting", name),
		"",
		detail,
		"",
		loc.Sprintf("receipt.number", payload.ReceiptNumber),
		loc.Sprintf("receipt.verify_hint"),
	}, "\n")
	return Message{To: payload.Email, Subject: subject, Body: body + "\n"}
}
