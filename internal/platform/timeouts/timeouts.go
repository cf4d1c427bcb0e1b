// Package timeouts holds the deadlines shared by eventpass services.
package timeouts

import "time"

// HealthCheck caps one grpc.health.v1 Check call.
const HealthCheck = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown bounds graceful shutdown of HTTP and gRPC listeners.
const Shutdown = 5 * time.Second

// PaymentCharge caps a single outbound charge against the payment processor.
const PaymentCharge = 15 * time.Second

// NotificationSend caps one delivery attempt to the notification sink.
const NotificationSend = 10 * time.Second
