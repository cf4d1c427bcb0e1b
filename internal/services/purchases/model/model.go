package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccessGrantValidity is the default window between issuance and expiry.
const AccessGrantValidity = 30 * 24 * time.Hour

// User is an account holding a token balance.
type User struct {
	ID             string
	Email          string
	CredentialHash string
	DisplayName    string
	TokenBalance   int64
	CreatedAt      time.Time
}

// Event is a catalog entry that can be unlocked with tokens.
type Event struct {
	ID              string
	Title           string
	Subtitle        string
	Description     string
	IsLive          bool
	ViewerCount     int64
	PriceTokens     int64
	StartsAt        time.Time
	EndsAt          time.Time
	PlaybackLocator string
}

// AccessGrant proves a user paid tokens for time-bounded access to one event.
type AccessGrant struct {
	ID            string
	UserID        string
	EventID       string
	AccessToken   string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	TokensSpent   int64
	ReceiptNumber string
	Signature     string
}

// StatusAt derives the grant status at now.
func (g AccessGrant) StatusAt(now time.Time) GrantStatus {
	if now.Before(g.ExpiresAt) {
		return GrantStatusActive
	}
	return GrantStatusExpired
}

// TokenPurchase records tokens bought with real money.
type TokenPurchase struct {
	ID            string
	UserID        string
	PackageID     string
	Tokens        int64
	BonusTokens   int64
	AmountPaid    decimal.Decimal
	Currency      string
	PaymentID     string
	ReceiptNumber string
	Signature     string
	CreatedAt     time.Time
}

// TokensAdded returns the total credited to the balance.
func (p TokenPurchase) TokensAdded() int64 {
	return p.Tokens + p.BonusTokens
}

// Order mirrors every grant and token purchase for unified history queries.
type Order struct {
	ID            string
	UserID        string
	Type          OrderType
	Description   string
	Amount        decimal.Decimal
	Status        OrderStatus
	PaymentID     string
	ReceiptNumber string
	Signature     string
	CreatedAt     time.Time
}

// ReceiptIndex reserves a receipt number across both purchase namespaces.
type ReceiptIndex struct {
	ReceiptNumber string
	Kind          ReceiptKind
	PurchaseID    string
	CreatedAt     time.Time
}

// TokenPackage is an entry of the fixed package table.
type TokenPackage struct {
	ID          string
	Tokens      int64
	BonusTokens int64
	Price       decimal.Decimal
	Currency    string
}

// TotalTokens returns base plus bonus tokens.
func (p TokenPackage) TotalTokens() int64 {
	return p.Tokens + p.BonusTokens
}
