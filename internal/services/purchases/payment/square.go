package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eventpass/eventpass/internal/platform/timeouts"
	"golang.org/x/time/rate"
)

const (
	// SquareProductionURL is the Square Connect production base URL.
	SquareProductionURL = "https://connect.squareup.com"
	// SquareSandboxURL is the Square Connect sandbox base URL.
	SquareSandboxURL = "https://connect.squareupsandbox.com"
	// SquareAPIVersion pins the Square-Version header.
	SquareAPIVersion = "2024-01-18"

	maxSquareResponseBytes = 1 << 20
)

// SquareConfig configures the Square Payments adapter.
type SquareConfig struct {
	BaseURL     string
	AccessToken string
	LocationID  string
	APIVersion  string
	Timeout     time.Duration
	// RateLimit bounds outbound calls per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// SquareProcessor charges through the Square Payments API.
type SquareProcessor struct {
	baseURL     string
	accessToken string
	locationID  string
	apiVersion  string
	client      *http.Client
	limiter     *rate.Limiter
}

// NewSquareProcessor builds a Square adapter. A nil client uses a client with
// the configured timeout.
func NewSquareProcessor(cfg SquareConfig, client *http.Client) (*SquareProcessor, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("square access token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = SquareSandboxURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = SquareAPIVersion
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = timeouts.PaymentCharge
		}
		client = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &SquareProcessor{
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		locationID:  strings.TrimSpace(cfg.LocationID),
		apiVersion:  apiVersion,
		client:      client,
		limiter:     limiter,
	}, nil
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareCreatePaymentRequest struct {
	IdempotencyKey    string      `json:"idempotency_key"`
	SourceID          string      `json:"source_id"`
	AmountMoney       squareMoney `json:"amount_money"`
	VerificationToken string      `json:"verification_token,omitempty"`
	BuyerEmailAddress string      `json:"buyer_email_address,omitempty"`
	ReferenceID       string      `json:"reference_id,omitempty"`
	Note              string      `json:"note,omitempty"`
	LocationID        string      `json:"location_id,omitempty"`
	Autocomplete      bool        `json:"autocomplete"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type squareCreatePaymentResponse struct {
	Payment *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
	Errors []squareError `json:"errors"`
}

// Charge creates one payment. It is never retried here; the caller supplies a
// fresh idempotency key per attempt.
func (p *SquareProcessor) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return ChargeResult{}, NewDeclined("payment source is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return ChargeResult{}, fmt.Errorf("idempotency key is required")
	}
	if req.AmountMinor <= 0 {
		return ChargeResult{}, fmt.Errorf("charge amount must be greater than zero")
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return ChargeResult{}, Unavailable(fmt.Errorf("wait for rate limiter: %w", err))
		}
	}

	body, err := json.Marshal(squareCreatePaymentRequest{
		IdempotencyKey:    req.IdempotencyKey,
		SourceID:          req.SourceToken,
		AmountMoney:       squareMoney{Amount: req.AmountMinor, Currency: strings.ToUpper(req.Currency)},
		VerificationToken: req.VerificationToken,
		BuyerEmailAddress: req.BuyerEmail,
		ReferenceID:       req.ReferenceID,
		Note:              req.Note,
		LocationID:        p.locationID,
		Autocomplete:      true,
	})
	if err != nil {
		return ChargeResult{}, fmt.Errorf("encode square payment: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/payments", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("build square request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.accessToken)
	httpReq.Header.Set("Square-Version", p.apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, Unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSquareResponseBytes))
	if err != nil {
		return ChargeResult{}, Unavailable(fmt.Errorf("read square response: %w", err))
	}
	var decoded squareCreatePaymentResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return ChargeResult{}, Unavailable(fmt.Errorf("square responded %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return ChargeResult{}, NewDeclined(declineDetail(decoded.Errors))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ChargeResult{}, Unavailable(fmt.Errorf("square responded %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return ChargeResult{}, Unavailable(fmt.Errorf("decode square response: %w", decodeErr))
	}
	if decoded.Payment == nil || strings.TrimSpace(decoded.Payment.ID) == "" {
		return ChargeResult{}, Unavailable(errors.New("square response carried no payment"))
	}
	switch decoded.Payment.Status {
	case "COMPLETED", "APPROVED":
		return ChargeResult{PaymentID: decoded.Payment.ID, Status: decoded.Payment.Status}, nil
	case "FAILED", "CANCELED":
		return ChargeResult{}, NewDeclined(declineDetail(decoded.Errors))
	default:
		return ChargeResult{}, Unavailable(fmt.Errorf("square payment status %q", decoded.Payment.Status))
	}
}

// declineDetail picks the processor's declared reason, preferring payment
// method errors.
func declineDetail(errs []squareError) string {
	for _, e := range errs {
		if e.Category == "PAYMENT_METHOD_ERROR" {
			return squareReason(e)
		}
	}
	if len(errs) > 0 {
		return squareReason(errs[0])
	}
	return ""
}

func squareReason(e squareError) string {
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		return detail
	}
	return strings.TrimSpace(e.Code)
}

var _ Processor = (*SquareProcessor)(nil)
