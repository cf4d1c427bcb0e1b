// Package payment charges real money through an external processor.
//
// Adapters never retry. Every failure is reported as either a decline, which
// carries the processor's stated reason, or processor unavailability.
package payment

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/shopspring/decimal"
)

// ChargeRequest describes one charge attempt.
type ChargeRequest struct {
	AmountMinor       int64
	Currency          string
	SourceToken       string
	VerificationToken string
	IdempotencyKey    string
	BuyerEmail        string
	ReferenceID       string
	Note              string
}

// ChargeResult is a successful charge.
type ChargeResult struct {
	PaymentID string
	Status    string
}

// Processor charges a payment source.
type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Declined reports a charge the processor refused.
type Declined struct {
	Detail string
}

// NewDeclined builds a decline with the processor's reason.
func NewDeclined(detail string) *Declined {
	return &Declined{Detail: strings.TrimSpace(detail)}
}

func (e *Declined) Error() string {
	if e.Detail == "" {
		return "payment declined"
	}
	return "payment declined: " + e.Detail
}

// Unwrap exposes the coded domain error.
func (e *Declined) Unwrap() error {
	return apperrors.WithMetadata(apperrors.CodePaymentDeclined, "payment declined", map[string]string{
		"Detail": e.Detail,
	})
}

// Unavailable wraps transport failures, timeouts and processor-side errors.
func Unavailable(cause error) error {
	return apperrors.Wrap(apperrors.CodePaymentProcessorUnavailable, "payment processor unavailable", cause)
}

// IsDeclined reports whether err is a processor decline.
func IsDeclined(err error) bool {
	return apperrors.HasCode(err, apperrors.CodePaymentDeclined)
}

// IsUnavailable reports whether err is processor unavailability.
func IsUnavailable(err error) bool {
	return apperrors.HasCode(err, apperrors.CodePaymentProcessorUnavailable)
}

// minorUnitExponents lists currencies whose minor unit is not cents.
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
}

// ToMinorUnits converts a major-unit amount to integer minor units. Amounts
// with more precision than the currency allows are rejected.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return 0, fmt.Errorf("currency is required")
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative")
	}
	exponent, ok := minorUnitExponents[currency]
	if !ok {
		exponent = 2
	}
	scaled := amount.Shift(exponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount.String(), currency)
	}
	return scaled.IntPart(), nil
}
