package domain

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/payment"
	"github.com/shopspring/decimal"
)

func TestPurchaseTokenPackageSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)

	receipt, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{
		UserID:            "u1",
		PackageID:         "250",
		SourceToken:       "cnon:card-nonce-ok",
		VerificationToken: "verf-1",
	})
	if err != nil {
		t.Fatalf("purchase token package: %v", err)
	}
	if receipt.NewBalance != 300 || receipt.TokensAdded != 300 || receipt.BonusTokens != 50 {
		t.Fatalf("receipt = %+v", receipt)
	}
	if receipt.PaymentID != "sq_pay_1" {
		t.Fatalf("payment id = %q", receipt.PaymentID)
	}
	if got := f.balance(t, "u1"); got != 300 {
		t.Fatalf("balance = %d, want 300", got)
	}

	if len(f.processor.requests) != 1 {
		t.Fatalf("charges = %d, want 1", len(f.processor.requests))
	}
	charge := f.processor.requests[0]
	if charge.AmountMinor != 999 || charge.Currency != "USD" || charge.IdempotencyKey == "" || charge.VerificationToken != "verf-1" || charge.BuyerEmail != "u1@example.com" {
		t.Fatalf("charge request = %+v", charge)
	}

	view, err := f.service.LookupReceipt(context.Background(), receipt.ReceiptNumber)
	if err != nil {
		t.Fatalf("lookup receipt: %v", err)
	}
	if !view.SignatureValid || view.Kind != model.ReceiptKindTokenPackage || view.TokenPurchase == nil {
		t.Fatalf("view = %+v", view)
	}
	if !view.TokenPurchase.AmountPaid.Equal(decimal.RequireFromString("9.99")) || view.TokenPurchase.PaymentID != "sq_pay_1" {
		t.Fatalf("token purchase = %+v", view.TokenPurchase)
	}

	orders, err := f.service.ListOrders(context.Background(), "u1", PageRequest{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders.Orders) != 1 || orders.Orders[0].Type != model.OrderTypeTokenPackage || orders.Orders[0].PaymentID != "sq_pay_1" {
		t.Fatalf("orders = %+v", orders.Orders)
	}
	if len(f.store.ListOutboxEvents()) != 1 {
		t.Fatal("expected one receipt notification queued")
	}
}

func TestPurchaseTokenPackageUsesFreshIdempotencyKeys(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)
	for i := 0; i < 2; i++ {
		if _, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "100", SourceToken: "cnon:ok"}); err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
	}
	if f.processor.requests[0].IdempotencyKey == f.processor.requests[1].IdempotencyKey {
		t.Fatal("expected distinct idempotency keys per charge")
	}
}

func TestPurchaseTokenPackageDeclined(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 5)
	f.processor.err = payment.NewDeclined("Card declined.")

	_, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "500", SourceToken: "cnon:card-nonce-declined"})
	if apperrors.CodeOf(err) != apperrors.CodePaymentDeclined {
		t.Fatalf("code = %s, want PAYMENT_DECLINED (err %v)", apperrors.CodeOf(err), err)
	}
	var declined *payment.Declined
	if !errors.As(err, &declined) || declined.Detail != "Card declined." {
		t.Fatalf("declined = %+v", declined)
	}
	if got := f.balance(t, "u1"); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
	orders, _ := f.service.ListOrders(context.Background(), "u1", PageRequest{})
	if len(orders.Orders) != 0 {
		t.Fatalf("orders = %+v, want none", orders.Orders)
	}
}

func TestPurchaseTokenPackageProcessorUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 5)
	f.processor.err = errors.New("connection reset")

	_, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "100", SourceToken: "cnon:ok"})
	if apperrors.CodeOf(err) != apperrors.CodePaymentProcessorUnavailable {
		t.Fatalf("code = %s, want PAYMENT_PROCESSOR_UNAVAILABLE", apperrors.CodeOf(err))
	}
	if got := f.balance(t, "u1"); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
}

func TestPurchaseTokenPackageRejectsBeforeCharging(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)

	tests := []struct {
		name string
		req  TokenPackagePurchase
		want apperrors.Code
	}{
		{name: "unknown package", req: TokenPackagePurchase{UserID: "u1", PackageID: "999", SourceToken: "cnon:ok"}, want: apperrors.CodeUnknownPackage},
		{name: "unknown user", req: TokenPackagePurchase{UserID: "ghost", PackageID: "100", SourceToken: "cnon:ok"}, want: apperrors.CodeNotFound},
		{name: "missing source", req: TokenPackagePurchase{UserID: "u1", PackageID: "100"}, want: apperrors.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.PurchaseTokenPackage(context.Background(), tt.req)
			if code := apperrors.CodeOf(err); code != tt.want {
				t.Fatalf("code = %s, want %s", code, tt.want)
			}
		})
	}
	if len(f.processor.requests) != 0 {
		t.Fatalf("charges = %d, want 0", len(f.processor.requests))
	}
}

func TestPurchaseTokenPackagePersistenceFailureCarriesPaymentID(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)
	f.store.FailNext("PutTokenPurchase", errors.New("disk full"))

	_, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "100", SourceToken: "cnon:ok"})
	if apperrors.CodeOf(err) != apperrors.CodeInternal {
		t.Fatalf("code = %s, want INTERNAL", apperrors.CodeOf(err))
	}
	if got := apperrors.MetadataOf(err)["PaymentID"]; got != "sq_pay_1" {
		t.Fatalf("payment id metadata = %q", got)
	}
	if got := f.balance(t, "u1"); got != 0 {
		t.Fatalf("balance = %d, want 0 after rollback", got)
	}
}

func TestListTokenPackagesOrdered(t *testing.T) {
	f := newFixture(t)
	packages := f.service.ListTokenPackages()
	wantIDs := []string{"100", "250", "500", "1000"}
	if len(packages) != len(wantIDs) {
		t.Fatalf("packages len = %d", len(packages))
	}
	for i, id := range wantIDs {
		if packages[i].ID != id {
			t.Fatalf("packages[%d] = %s, want %s", i, packages[i].ID, id)
		}
	}
	if packages[3].TotalTokens() != 1500 || !packages[3].Price.Equal(decimal.RequireFromString("39.99")) {
		t.Fatalf("package 1000 = %+v", packages[3])
	}
}
