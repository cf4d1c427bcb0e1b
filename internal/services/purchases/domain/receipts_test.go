package domain

import (
	"context"
	"testing"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/shopspring/decimal"
)

func TestLookupReceiptDetectsTamperedTokenPurchase(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.TokenPurchase)
	}{
		{name: "tokens", edit: func(p *model.TokenPurchase) { p.Tokens = 10000 }},
		{name: "amount below a cent", edit: func(p *model.TokenPurchase) { p.AmountPaid = decimal.RequireFromString("9.994") }},
		{name: "currency", edit: func(p *model.TokenPurchase) { p.Currency = "JPY" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedUser(t, "u1", 0)
			receipt, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "250", SourceToken: "cnon:ok"})
			if err != nil {
				t.Fatalf("purchase: %v", err)
			}
			if err := f.store.AlterTokenPurchase(receipt.ReceiptNumber, tt.edit); err != nil {
				t.Fatalf("alter token purchase: %v", err)
			}
			view, err := f.service.LookupReceipt(context.Background(), receipt.ReceiptNumber)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if view.SignatureValid {
				t.Fatal("expected tampered receipt to fail verification")
			}
		})
	}
}

func TestLookupReceiptDetectsTamperedGrant(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.AccessGrant)
	}{
		{name: "expiry extended", edit: func(g *model.AccessGrant) { g.ExpiresAt = g.ExpiresAt.AddDate(1, 0, 0) }},
		{name: "tokens spent", edit: func(g *model.AccessGrant) { g.TokensSpent = 1 }},
		{name: "event swapped", edit: func(g *model.AccessGrant) { g.EventID = "other" }},
		{name: "signature truncated", edit: func(g *model.AccessGrant) { g.Signature = g.Signature[:10] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedUser(t, "u1", 100)
			f.seedEvent(t, "e1", 50)
			receipt, err := f.service.PurchaseEventAccess(context.Background(), "u1", "e1")
			if err != nil {
				t.Fatalf("purchase: %v", err)
			}
			if err := f.store.AlterAccessGrant(receipt.ReceiptNumber, tt.edit); err != nil {
				t.Fatalf("alter grant: %v", err)
			}
			view, err := f.service.LookupReceipt(context.Background(), receipt.ReceiptNumber)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if view.SignatureValid {
				t.Fatal("expected tampered grant to fail verification")
			}
		})
	}
}

func TestLookupReceiptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)
	receipt, err := f.service.PurchaseTokenPackage(context.Background(), TokenPackagePurchase{UserID: "u1", PackageID: "1000", SourceToken: "cnon:ok"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	first, err := f.service.LookupReceipt(context.Background(), receipt.ReceiptNumber)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := f.service.LookupReceipt(context.Background(), receipt.ReceiptNumber)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if !first.SignatureValid || first.SignatureValid != second.SignatureValid || first.Signature != second.Signature {
		t.Fatalf("lookups differ: %+v vs %+v", first, second)
	}
	if !second.TokenPurchase.AmountPaid.Equal(decimal.RequireFromString("39.99")) || second.TokenPurchase.TokensAdded() != 1500 {
		t.Fatalf("token purchase = %+v", second.TokenPurchase)
	}
}

func TestLookupReceiptNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.LookupReceipt(context.Background(), "RCP-NOPE-0000000000"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
	if _, err := f.service.LookupReceipt(context.Background(), " "); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}
