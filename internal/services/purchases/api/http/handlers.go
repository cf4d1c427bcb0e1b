package httpapi

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventpass/eventpass/internal/platform/requestctx"
	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
)

type eventAccessResponse struct {
	PurchaseID       string    `json:"purchase_id"`
	AccessToken      string    `json:"access_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	ReceiptNumber    string    `json:"receipt_number"`
	DigitalSignature string    `json:"digital_signature"`
	NewBalance       int64     `json:"new_balance"`
}

func (s *Server) handlePurchaseEventAccess(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.purchases.PurchaseEventAccess(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("eventID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventAccessResponse{
		PurchaseID:       receipt.PurchaseID,
		AccessToken:      receipt.AccessToken,
		ExpiresAt:        receipt.ExpiresAt,
		ReceiptNumber:    receipt.ReceiptNumber,
		DigitalSignature: receipt.DigitalSignature,
		NewBalance:       receipt.NewBalance,
	})
}

type streamResponse struct {
	EventID         string    `json:"event_id"`
	PlaybackLocator string    `json:"playback_locator"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (s *Server) handleStreamLocator(w http.ResponseWriter, r *http.Request) {
	access, err := s.purchases.GetStreamLocator(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("eventID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streamResponse{
		EventID:         access.EventID,
		PlaybackLocator: access.PlaybackLocator,
		ExpiresAt:       access.ExpiresAt,
	})
}

type grantResponse struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	EventTitle    string    `json:"event_title,omitempty"`
	Status        string    `json:"status"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	TokensSpent   int64     `json:"tokens_spent"`
	ReceiptNumber string    `json:"receipt_number"`
}

type grantPageResponse struct {
	Grants        []grantResponse `json:"grants"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (s *Server) handleListAccessGrants(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.purchases.ListUserAccessGrants(r.Context(), requestctx.UserIDFromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := grantPageResponse{Grants: make([]grantResponse, 0, len(page.Grants)), NextPageToken: page.NextPageToken}
	for _, view := range page.Grants {
		resp.Grants = append(resp.Grants, grantResponse{
			ID:            view.Grant.ID,
			EventID:       view.Grant.EventID,
			EventTitle:    view.EventTitle,
			Status:        view.Status.String(),
			IssuedAt:      view.Grant.IssuedAt,
			ExpiresAt:     view.Grant.ExpiresAt,
			TokensSpent:   view.Grant.TokensSpent,
			ReceiptNumber: view.Grant.ReceiptNumber,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type orderResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentID     string          `json:"payment_id,omitempty"`
	ReceiptNumber string          `json:"receipt_number"`
	CreatedAt     time.Time       `json:"created_at"`
}

type orderPageResponse struct {
	Orders        []orderResponse `json:"orders"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.purchases.ListOrders(r.Context(), requestctx.UserIDFromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := orderPageResponse{Orders: make([]orderResponse, 0, len(page.Orders)), NextPageToken: page.NextPageToken}
	for _, order := range page.Orders {
		resp.Orders = append(resp.Orders, orderResponse{
			ID:            order.ID,
			Type:          order.Type.String(),
			Description:   order.Description,
			Amount:        order.Amount,
			Status:        order.Status.String(),
			PaymentID:     order.PaymentID,
			ReceiptNumber: order.ReceiptNumber,
			CreatedAt:     order.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceResponse struct {
	UserID       string `json:"user_id"`
	TokenBalance int64  `json:"token_balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserIDFromContext(r.Context())
	balance, err := s.purchases.GetBalance(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: userID, TokenBalance: balance})
}

type tokenPackageResponse struct {
	ID          string          `json:"id"`
	Tokens      int64           `json:"tokens"`
	BonusTokens int64           `json:"bonus_tokens"`
	TotalTokens int64           `json:"total_tokens"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

func (s *Server) handleListTokenPackages(w http.ResponseWriter, _ *http.Request) {
	packages := s.purchases.ListTokenPackages()
	resp := struct {
		Packages []tokenPackageResponse `json:"packages"`
	}{Packages: make([]tokenPackageResponse, 0, len(packages))}
	for _, pkg := range packages {
		resp.Packages = append(resp.Packages, tokenPackageResponse{
			ID:          pkg.ID,
			Tokens:      pkg.Tokens,
			BonusTokens: pkg.BonusTokens,
			TotalTokens: pkg.TotalTokens(),
			Price:       pkg.Price,
			Currency:    pkg.Currency,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type tokenPackagePurchaseRequest struct {
	SourceID          string `json:"source_id"`
	VerificationToken string `json:"verification_token,omitempty"`
}

type tokenPackageReceiptResponse struct {
	PurchaseID       string `json:"purchase_id"`
	NewBalance       int64  `json:"new_balance"`
	TokensAdded      int64  `json:"tokens_added"`
	BonusTokens      int64  `json:"bonus_tokens"`
	ReceiptNumber    string `json:"receipt_number"`
	DigitalSignature string `json:"digital_signature"`
	PaymentID        string `json:"payment_id"`
}

func (s *Server) handlePurchaseTokenPackage(w http.ResponseWriter, r *http.Request) {
	var body tokenPackagePurchaseRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.purchases.PurchaseTokenPackage(r.Context(), purchasesdomain.TokenPackagePurchase{
		UserID:            requestctx.UserIDFromContext(r.Context()),
		PackageID:         r.PathValue("packageID"),
		SourceToken:       body.SourceID,
		VerificationToken: body.VerificationToken,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenPackageReceiptResponse{
		PurchaseID:       receipt.PurchaseID,
		NewBalance:       receipt.NewBalance,
		TokensAdded:      receipt.TokensAdded,
		BonusTokens:      receipt.BonusTokens,
		ReceiptNumber:    receipt.ReceiptNumber,
		DigitalSignature: receipt.DigitalSignature,
		PaymentID:        receipt.PaymentID,
	})
}

type receiptGrantResponse struct {
	EventID     string    `json:"event_id"`
	TokensSpent int64     `json:"tokens_spent"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type receiptTokenPurchaseResponse struct {
	PackageID   string          `json:"package_id"`
	TokensAdded int64           `json:"tokens_added"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Currency    string          `json:"currency"`
	PaymentID   string          `json:"payment_id"`
}

type receiptResponse struct {
	ReceiptNumber  string                        `json:"receipt_number"`
	Kind           string                        `json:"kind"`
	UserID         string                        `json:"user_id"`
	IssuedAt       time.Time                     `json:"issued_at"`
	Signature      string                        `json:"signature"`
	SignatureValid bool                          `json:"signature_valid"`
	Grant          *receiptGrantResponse         `json:"grant,omitempty"`
	TokenPurchase  *receiptTokenPurchaseResponse `json:"token_purchase,omitempty"`
}

// handleLookupReceipt is public: anyone holding a receipt number may verify it.
func (s *Server) handleLookupReceipt(w http.ResponseWriter, r *http.Request) {
	view, err := s.purchases.LookupReceipt(r.Context(), r.PathValue("receiptNumber"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptResponse(view))
}

func newReceiptResponse(view purchasesdomain.ReceiptView) receiptResponse {
	resp := receiptResponse{
		ReceiptNumber:  view.ReceiptNumber,
		Kind:           view.Kind.String(),
		UserID:         view.UserID,
		IssuedAt:       view.IssuedAt,
		Signature:      view.Signature,
		SignatureValid: view.SignatureValid,
	}
	switch view.Kind {
	case model.ReceiptKindEventAccess:
		if view.Grant != nil {
			resp.Grant = &receiptGrantResponse{
				EventID:     view.Grant.EventID,
				TokensSpent: view.Grant.TokensSpent,
				ExpiresAt:   view.Grant.ExpiresAt,
			}
		}
	case model.ReceiptKindTokenPackage:
		if view.TokenPurchase != nil {
			resp.TokenPurchase = &receiptTokenPurchaseResponse{
				PackageID:   view.TokenPurchase.PackageID,
				TokensAdded: view.TokenPurchase.TokensAdded(),
				AmountPaid:  view.TokenPurchase.AmountPaid,
				Currency:    view.TokenPurchase.Currency,
				PaymentID:   view.TokenPurchase.PaymentID,
			}
		}
	}
	return resp
}
