package domain

import (
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/signature"
)

// eventAccessFact is the signed tuple of an access grant. Field order is part
// of the signature.
func eventAccessFact(grant model.AccessGrant) *signature.Fact {
	return signature.NewFact().
		String("receipt_number", grant.ReceiptNumber).
		String("purchase_id", grant.ID).
		String("user_id", grant.UserID).
		String("event_id", grant.EventID).
		String("access_token", grant.AccessToken).
		Int("tokens_spent", grant.TokensSpent).
		Time("expires_at", grant.ExpiresAt).
		Time("timestamp", grant.IssuedAt)
}

// tokenPurchaseFact is the signed tuple of a token purchase. tokens is the
// total credited, base plus bonus.
func tokenPurchaseFact(purchase model.TokenPurchase) *signature.Fact {
	return signature.NewFact().
		String("receipt_number", purchase.ReceiptNumber).
		String("purchase_id", purchase.ID).
		String("user_id", purchase.UserID).
		String("package_id", purchase.PackageID).
		Int("tokens", purchase.TokensAdded()).
		Decimal("amount", purchase.AmountPaid).
		String("square_payment_id", purchase.PaymentID).
		Time("timestamp", purchase.CreatedAt)
}

func (s *Service) signGrant(grant model.AccessGrant) (string, error) {
	return s.signer.Sign(model.ReceiptKindEventAccess.String(), eventAccessFact(grant))
}

func (s *Service) signTokenPurchase(purchase model.TokenPurchase) (string, error) {
	return s.signer.Sign(model.ReceiptKindTokenPackage.String(), tokenPurchaseFact(purchase))
}
