package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                     = "UNKNOWN"
	CodeNotFound                    = "NOT_FOUND"
	CodeInsufficientBalance         = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount               = "INVALID_AMOUNT"
	CodeUnknownPackage              = "UNKNOWN_PACKAGE"
	CodePaymentDeclined             = "PAYMENT_DECLINED"
	CodePaymentProcessorUnavailable = "PAYMENT_PROCESSOR_UNAVAILABLE"
	CodeUnauthorized                = "UNAUTHORIZED"
	CodeForbidden                   = "FORBIDDEN"
	CodeInvalidArgument             = "INVALID_ARGUMENT"
	CodeConflict                    = "CONFLICT"
	CodeInternal                    = "INTERNAL"
)

var enUSMessages = map[Code]string{
	CodeUnknown:                     "An unexpected error occurred.",
	CodeNotFound:                    "The requested {{if .Resource}}{{.Resource}}{{else}}resource{{end}} was not found.",
	CodeInsufficientBalance:         "Insufficient token balance: {{.Required}} required, {{.Current}} available ({{.Shortage}} short).",
	CodeInvalidAmount:               "Token amount must not be negative.",
	CodeUnknownPackage:              "Unknown token package {{.PackageID}}.",
	CodePaymentDeclined:             "Payment was declined{{if .Detail}}: {{.Detail}}{{end}}.",
	CodePaymentProcessorUnavailable: "The payment processor is temporarily unavailable. Please try again.",
	CodeUnauthorized:                "Authentication is required.",
	CodeForbidden:                   "You do not have active access to this event.",
	CodeInvalidArgument:             "The request is invalid{{if .Field}}: {{.Field}}{{end}}.",
	CodeConflict:                    "The request conflicted with an existing record.",
	CodeInternal:                    "An internal error occurred. Support has been notified.",
}
