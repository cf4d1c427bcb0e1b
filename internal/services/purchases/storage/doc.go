// Package storage defines the persistence boundary for purchases.
//
// Every purchase mutation runs inside WithinTx so the balance change, the
// signed record, its order mirror, the receipt index row and the notification
// outbox entry commit or roll back together.
package storage
