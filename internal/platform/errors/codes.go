// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Ledger errors
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"

	// Token package errors
	CodeUnknownPackage Code = "UNKNOWN_PACKAGE"

	// Payment errors
	CodePaymentDeclined             Code = "PAYMENT_DECLINED"
	CodePaymentProcessorUnavailable Code = "PAYMENT_PROCESSOR_UNAVAILABLE"

	// Principal errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Storage errors
	CodeConflict Code = "CONFLICT"

	// CodeInternal marks an unexpected failure in persistence or signing.
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument,
		CodeInvalidAmount,
		CodeUnknownPackage:
		return http.StatusBadRequest

	case CodeInsufficientBalance,
		CodePaymentDeclined:
		return http.StatusPaymentRequired

	case CodeUnauthorized:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeConflict:
		return http.StatusConflict

	case CodePaymentProcessorUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
