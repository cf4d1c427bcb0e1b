package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/platform/timeouts"
	"github.com/eventpass/eventpass/internal/services/purchases/ledger"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTokenPackages returns the fixed package table in USD.
func DefaultTokenPackages() []model.TokenPackage {
	return []model.TokenPackage{
		{ID: "100", Tokens: 100, BonusTokens: 0, Price: decimal.RequireFromString("4.99"), Currency: "USD"},
		{ID: "250", Tokens: 250, BonusTokens: 50, Price: decimal.RequireFromString("9.99"), Currency: "USD"},
		{ID: "500", Tokens: 500, BonusTokens: 150, Price: decimal.RequireFromString("19.99"), Currency: "USD"},
		{ID: "1000", Tokens: 1000, BonusTokens: 500, Price: decimal.RequireFromString("39.99"), Currency: "USD"},
	}
}

// TokenPackagePurchase is a request to buy one token package.
type TokenPackagePurchase struct {
	UserID            string
	PackageID         string
	SourceToken       string
	VerificationToken string
}

// TokenPackageReceipt is returned by a successful token package purchase.
type TokenPackageReceipt struct {
	PurchaseID       string
	NewBalance       int64
	TokensAdded      int64
	BonusTokens      int64
	ReceiptNumber    string
	DigitalSignature string
	PaymentID        string
}

// ListTokenPackages returns the package table ordered by base token count.
func (s *Service) ListTokenPackages() []model.TokenPackage {
	packages := make([]model.TokenPackage, 0, len(s.packages))
	for _, pkg := range s.packages {
		packages = append(packages, pkg)
	}
	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Tokens != packages[j].Tokens {
			return packages[i].Tokens < packages[j].Tokens
		}
		return packages[i].ID < packages[j].ID
	})
	return packages
}

// PurchaseTokenPackage charges the payment source and credits the package.
//
// The charge runs before any transaction is opened. A declined or failed
// charge leaves no trace. A persistence failure after a successful charge is
// an INTERNAL error carrying the payment id for reconciliation.
func (s *Service) PurchaseTokenPackage(ctx context.Context, req TokenPackagePurchase) (receipt TokenPackageReceipt, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "PurchaseTokenPackage",
		attribute.String("user.id", req.UserID),
		attribute.String("package.id", req.PackageID),
	)
	defer func() {
		s.metrics.ObservePurchase(model.ReceiptKindTokenPackage.String(), outcomeOf(err), time.Since(started))
		finishSpan(span, err)
	}()

	if err := requireArgument("user_id", req.UserID); err != nil {
		return TokenPackageReceipt{}, err
	}
	pkg, ok := s.packages[strings.TrimSpace(req.PackageID)]
	if !ok {
		return TokenPackageReceipt{}, apperrors.WithMetadata(apperrors.CodeUnknownPackage, "unknown token package", map[string]string{"PackageID": req.PackageID})
	}
	if err := requireArgument("source_id", req.SourceToken); err != nil {
		return TokenPackageReceipt{}, err
	}
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return TokenPackageReceipt{}, notFound("user", err)
	}

	charge, err := s.charge(ctx, span, user, pkg, req)
	if err != nil {
		return TokenPackageReceipt{}, err
	}

	for attempt := 1; ; attempt++ {
		receipt, err = s.commitTokenPurchase(ctx, user, pkg, charge.PaymentID)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, storage.ErrConflict) && attempt < maxWriteAttempts {
			span.AddEvent("purchase.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		return TokenPackageReceipt{}, internalFault("purchase token package", map[string]string{
			"UserID":        user.ID,
			"PackageID":     pkg.ID,
			"PaymentID":     charge.PaymentID,
			"ReceiptNumber": receipt.ReceiptNumber,
		}, err)
	}
}

func (s *Service) charge(ctx context.Context, span trace.Span, user model.User, pkg model.TokenPackage, req TokenPackagePurchase) (payment.ChargeResult, error) {
	amountMinor, err := payment.ToMinorUnits(pkg.Price, pkg.Currency)
	if err != nil {
		return payment.ChargeResult{}, fmt.Errorf("price token package %s: %w", pkg.ID, err)
	}
	idempotencyKey, err := s.ids.IdempotencyKey()
	if err != nil {
		return payment.ChargeResult{}, err
	}
	chargeCtx, cancel := context.WithTimeout(ctx, timeouts.PaymentCharge)
	defer cancel()

	result, err := s.processor.Charge(chargeCtx, payment.ChargeRequest{
		AmountMinor:       amountMinor,
		Currency:          pkg.Currency,
		SourceToken:       req.SourceToken,
		VerificationToken: req.VerificationToken,
		IdempotencyKey:    idempotencyKey,
		BuyerEmail:        user.Email,
		ReferenceID:       pkg.ID,
		Note:              fmt.Sprintf("%d tokens", pkg.TotalTokens()),
	})
	switch {
	case err == nil:
		s.metrics.IncCharge("approved")
	case payment.IsDeclined(err):
		s.metrics.IncCharge("declined")
		return payment.ChargeResult{}, err
	case payment.IsUnavailable(err):
		s.metrics.IncCharge("unavailable")
		return payment.ChargeResult{}, err
	default:
		s.metrics.IncCharge("unavailable")
		return payment.ChargeResult{}, payment.Unavailable(err)
	}
	span.SetAttributes(attribute.String("payment.id", result.PaymentID))
	return result, nil
}

func (s *Service) commitTokenPurchase(ctx context.Context, user model.User, pkg model.TokenPackage, paymentID string) (TokenPackageReceipt, error) {
	createdAt := s.now()
	var receipt TokenPackageReceipt
	purchase := model.TokenPurchase{
		UserID:      user.ID,
		PackageID:   pkg.ID,
		Tokens:      pkg.Tokens,
		BonusTokens: pkg.BonusTokens,
		AmountPaid:  pkg.Price,
		Currency:    pkg.Currency,
		PaymentID:   paymentID,
		CreatedAt:   createdAt,
	}
	var err error
	if purchase.ID, err = s.ids.EntityID(); err != nil {
		return receipt, err
	}
	if purchase.ReceiptNumber, err = s.ids.ReceiptNumber(); err != nil {
		return receipt, err
	}
	receipt.ReceiptNumber = purchase.ReceiptNumber
	orderID, err := s.ids.EntityID()
	if err != nil {
		return receipt, err
	}
	description := fmt.Sprintf("%d tokens", pkg.Tokens)
	if pkg.BonusTokens > 0 {
		description = fmt.Sprintf("%d tokens + %d bonus", pkg.Tokens, pkg.BonusTokens)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		after, err := ledger.New(tx).Credit(ctx, user.ID, purchase.TokensAdded())
		if err != nil {
			return err
		}
		receipt.NewBalance = after

		purchase.Signature, err = s.signTokenPurchase(purchase)
		if err != nil {
			return err
		}
		if err := tx.ReserveReceiptNumber(ctx, model.ReceiptIndex{
			ReceiptNumber: purchase.ReceiptNumber,
			Kind:          model.ReceiptKindTokenPackage,
			PurchaseID:    purchase.ID,
			CreatedAt:     createdAt,
		}); err != nil {
			return err
		}
		if err := tx.PutTokenPurchase(ctx, purchase); err != nil {
			return err
		}
		if err := tx.PutOrder(ctx, model.Order{
			ID:            orderID,
			UserID:        user.ID,
			Type:          model.OrderTypeTokenPackage,
			Description:   description,
			Amount:        purchase.AmountPaid,
			Status:        model.OrderStatusCompleted,
			PaymentID:     paymentID,
			ReceiptNumber: purchase.ReceiptNumber,
			Signature:     purchase.Signature,
			CreatedAt:     createdAt,
		}); err != nil {
			return err
		}
		return s.enqueueReceiptIssued(ctx, tx, ReceiptIssuedPayload{
			ReceiptNumber: purchase.ReceiptNumber,
			Kind:          model.ReceiptKindTokenPackage.String(),
			UserID:        user.ID,
			Email:         user.Email,
			DisplayName:   user.DisplayName,
			Description:   description,
			TokensAdded:   purchase.TokensAdded(),
			Amount:        purchase.AmountPaid.StringFixed(2),
			Currency:      purchase.Currency,
			IssuedAt:      createdAt,
		})
	})
	if err != nil {
		return receipt, err
	}
	receipt.PurchaseID = purchase.ID
	receipt.TokensAdded = purchase.TokensAdded()
	receipt.BonusTokens = purchase.BonusTokens
	receipt.DigitalSignature = purchase.Signature
	receipt.PaymentID = paymentID
	return receipt, nil
}
