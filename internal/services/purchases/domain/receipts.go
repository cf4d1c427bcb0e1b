package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	"go.opentelemetry.io/otel/attribute"
)

// ReceiptView is a stored receipt with its verification result. Exactly one
// of Grant and TokenPurchase is set, matching Kind.
type ReceiptView struct {
	ReceiptNumber  string
	Kind           model.ReceiptKind
	UserID         string
	IssuedAt       time.Time
	Signature      string
	SignatureValid bool
	Grant          *model.AccessGrant
	TokenPurchase  *model.TokenPurchase
}

// LookupReceipt finds a receipt and re-verifies its signature against the
// stored columns. It is read-only; repeated lookups return the same result.
func (s *Service) LookupReceipt(ctx context.Context, receiptNumber string) (view ReceiptView, err error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	ctx, span := s.startSpan(ctx, "LookupReceipt", attribute.String("receipt.number", receiptNumber))
	defer func() { finishSpan(span, err) }()

	if err := requireArgument("receipt_number", receiptNumber); err != nil {
		return ReceiptView{}, err
	}

	purchase, err := s.store.GetTokenPurchaseByReceipt(ctx, receiptNumber)
	switch {
	case err == nil:
		valid := s.signer.Verify(model.ReceiptKindTokenPackage.String(), tokenPurchaseFact(purchase), purchase.Signature) &&
			s.currencyPinned(purchase)
		s.metrics.IncVerification(model.ReceiptKindTokenPackage.String(), valid)
		return ReceiptView{
			ReceiptNumber:  purchase.ReceiptNumber,
			Kind:           model.ReceiptKindTokenPackage,
			UserID:         purchase.UserID,
			IssuedAt:       purchase.CreatedAt,
			Signature:      purchase.Signature,
			SignatureValid: valid,
			TokenPurchase:  &purchase,
		}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return ReceiptView{}, err
	}

	grant, err := s.store.GetAccessGrantByReceipt(ctx, receiptNumber)
	if err != nil {
		return ReceiptView{}, notFound("receipt", err)
	}
	valid := s.signer.Verify(model.ReceiptKindEventAccess.String(), eventAccessFact(grant), grant.Signature)
	s.metrics.IncVerification(model.ReceiptKindEventAccess.String(), valid)
	return ReceiptView{
		ReceiptNumber:  grant.ReceiptNumber,
		Kind:           model.ReceiptKindEventAccess,
		UserID:         grant.UserID,
		IssuedAt:       grant.IssuedAt,
		Signature:      grant.Signature,
		SignatureValid: valid,
		Grant:          &grant,
	}, nil
}

// currencyPinned reports whether the stored currency is the one the signed
// package id was sold in. Currency sits outside the signed tuple, so this is
// the only thing that ties it to the receipt. Packages no longer offered
// cannot be checked and pass.
func (s *Service) currencyPinned(purchase model.TokenPurchase) bool {
	pkg, ok := s.packages[purchase.PackageID]
	if !ok {
		return true
	}
	return purchase.Currency == pkg.Currency
}
