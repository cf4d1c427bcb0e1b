// Package domain implements the purchase flows: unlocking events with tokens,
// buying token packages with money, and looking up signed receipts.
//
// Every mutating flow commits its balance change, purchase record, mirrored
// order, receipt index row and notification outbox entry in one storage
// transaction. A failure after validation rolls the whole unit back and
// surfaces as an INTERNAL error carrying reconciliation metadata.
package domain
