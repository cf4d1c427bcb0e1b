package model

import (
	"fmt"
	"strings"
)

// OrderType discriminates the order history ledger.
type OrderType int

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeEventAccess
	OrderTypeTokenPackage
)

// String returns the stored name.
func (t OrderType) String() string {
	switch t {
	case OrderTypeEventAccess:
		return "event_access"
	case OrderTypeTokenPackage:
		return "token_package"
	default:
		return "unspecified"
	}
}

// ParseOrderType parses a stored order type. Unknown values are rejected.
func ParseOrderType(value string) (OrderType, error) {
	switch strings.TrimSpace(value) {
	case "event_access":
		return OrderTypeEventAccess, nil
	case "token_package":
		return OrderTypeTokenPackage, nil
	default:
		return OrderTypeUnspecified, fmt.Errorf("unknown order type %q", value)
	}
}

// OrderStatus is the lifecycle status of an order.
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusPending
	OrderStatusCompleted
)

// String returns the stored name.
func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusCompleted:
		return "completed"
	default:
		return "unspecified"
	}
}

// ParseOrderStatus parses a stored order status. Unknown values are rejected.
func ParseOrderStatus(value string) (OrderStatus, error) {
	switch strings.TrimSpace(value) {
	case "pending":
		return OrderStatusPending, nil
	case "completed":
		return OrderStatusCompleted, nil
	default:
		return OrderStatusUnspecified, fmt.Errorf("unknown order status %q", value)
	}
}

// GrantStatus is derived from a grant's expiry at read time and never stored.
type GrantStatus int

const (
	GrantStatusUnspecified GrantStatus = iota
	GrantStatusActive
	GrantStatusExpired
)

// String returns the wire name.
func (s GrantStatus) String() string {
	switch s {
	case GrantStatusActive:
		return "active"
	case GrantStatusExpired:
		return "expired"
	default:
		return "unspecified"
	}
}

// ParseGrantStatus parses a wire grant status. Unknown values are rejected.
func ParseGrantStatus(value string) (GrantStatus, error) {
	switch strings.TrimSpace(value) {
	case "active":
		return GrantStatusActive, nil
	case "expired":
		return GrantStatusExpired, nil
	default:
		return GrantStatusUnspecified, fmt.Errorf("unknown grant status %q", value)
	}
}

// ReceiptKind names the purchase namespace a receipt belongs to. It also
// scopes the signing key derivation.
type ReceiptKind int

const (
	ReceiptKindUnspecified ReceiptKind = iota
	ReceiptKindEventAccess
	ReceiptKindTokenPackage
)

// String returns the stored name.
func (k ReceiptKind) String() string {
	switch k {
	case ReceiptKindEventAccess:
		return "event_access"
	case ReceiptKindTokenPackage:
		return "token_package"
	default:
		return "unspecified"
	}
}

// ParseReceiptKind parses a stored receipt kind. Unknown values are rejected.
func ParseReceiptKind(value string) (ReceiptKind, error) {
	switch strings.TrimSpace(value) {
	case "event_access":
		return ReceiptKindEventAccess, nil
	case "token_package":
		return ReceiptKindTokenPackage, nil
	default:
		return ReceiptKindUnspecified, fmt.Errorf("unknown receipt kind %q", value)
	}
}

// PurchaseState tracks an event access purchase attempt.
type PurchaseState int

const (
	PurchaseStateRequested PurchaseState = iota
	PurchaseStatePriced
	PurchaseStateDebited
	PurchaseStateSigned
	PurchaseStatePersisted
	PurchaseStateNotificationQueued
	PurchaseStateComplete
	PurchaseStateRejected
)

// String returns the state name used in logs and trace events.
func (s PurchaseState) String() string {
	switch s {
	case PurchaseStateRequested:
		return "requested"
	case PurchaseStatePriced:
		return "priced"
	case PurchaseStateDebited:
		return "debited"
	case PurchaseStateSigned:
		return "signed"
	case PurchaseStatePersisted:
		return "persisted"
	case PurchaseStateNotificationQueued:
		return "notification_queued"
	case PurchaseStateComplete:
		return "complete"
	case PurchaseStateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// CanReject reports whether a purchase in state s may still end as rejected.
// Rejection is only possible before any balance mutation.
func (s PurchaseState) CanReject() bool {
	return s == PurchaseStateRequested || s == PurchaseStatePriced
}
