package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/platform/errors/i18n"
	"github.com/eventpass/eventpass/internal/platform/requestctx"
	purchasesdomain "github.com/eventpass/eventpass/internal/services/purchases/domain"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
)

// maxRequestBodyBytes bounds JSON request bodies.
const maxRequestBodyBytes = 1 << 20

// Purchases is the domain surface served over HTTP.
type Purchases interface {
	PurchaseEventAccess(ctx context.Context, userID, eventID string) (purchasesdomain.EventAccessReceipt, error)
	GetStreamLocator(ctx context.Context, userID, eventID string) (purchasesdomain.StreamAccess, error)
	ListUserAccessGrants(ctx context.Context, userID string, req purchasesdomain.PageRequest) (purchasesdomain.GrantPage, error)
	ListOrders(ctx context.Context, userID string, req purchasesdomain.PageRequest) (purchasesdomain.OrderPage, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListTokenPackages() []model.TokenPackage
	PurchaseTokenPackage(ctx context.Context, req purchasesdomain.TokenPackagePurchase) (purchasesdomain.TokenPackageReceipt, error)
	LookupReceipt(ctx context.Context, receiptNumber string) (purchasesdomain.ReceiptView, error)
}

// Server routes purchases HTTP requests.
type Server struct {
	purchases  Purchases
	principals *PrincipalVerifier
	gatherer   prometheus.Gatherer
	mux        *http.ServeMux
}

// NewServer builds the route table. A nil gatherer disables /metrics.
func NewServer(purchases Purchases, principals *PrincipalVerifier, gatherer prometheus.Gatherer) (*Server, error) {
	if purchases == nil {
		return nil, fmt.Errorf("purchases service is required")
	}
	if principals == nil {
		return nil, fmt.Errorf("principal verifier is required")
	}
	s := &Server{
		purchases:  purchases,
		principals: principals,
		gatherer:   gatherer,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/events/{eventID}/purchase", s.requirePrincipal(s.handlePurchaseEventAccess))
	s.mux.HandleFunc("GET /v1/events/{eventID}/stream", s.requirePrincipal(s.handleStreamLocator))
	s.mux.HandleFunc("GET /v1/me/access-grants", s.requirePrincipal(s.handleListAccessGrants))
	s.mux.HandleFunc("GET /v1/me/orders", s.requirePrincipal(s.handleListOrders))
	s.mux.HandleFunc("GET /v1/me/balance", s.requirePrincipal(s.handleBalance))
	s.mux.HandleFunc("GET /v1/token-packages", s.requirePrincipal(s.handleListTokenPackages))
	s.mux.HandleFunc("POST /v1/token-packages/{packageID}/purchase", s.requirePrincipal(s.handlePurchaseTokenPackage))
	s.mux.HandleFunc("GET /v1/receipts/{receiptNumber}", s.handleLookupReceipt)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP negotiates the response locale and dispatches to the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	locale := i18n.Negotiate(r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Language", locale)
	s.mux.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), locale)))
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError renders err with the status of its code and a localized
// message. Errors without a domain code are logged and reported as internal.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		code = apperrors.CodeInternal
	}
	if code == apperrors.CodeInternal {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	message := apperrors.Localize(err, requestctx.LocaleFromContext(r.Context()))
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: errorBody{Code: string(code), Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "malformed request body", err)
	}
	return nil
}

// pageRequest reads page_size and page_token query parameters.
func pageRequest(r *http.Request) (purchasesdomain.PageRequest, error) {
	query := r.URL.Query()
	req := purchasesdomain.PageRequest{PageToken: strings.TrimSpace(query.Get("page_token"))}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return purchasesdomain.PageRequest{}, apperrors.WithMetadata(
				apperrors.CodeInvalidArgument,
				"page_size must be an integer",
				map[string]string{"Field": "page_size"},
			)
		}
		req.PageSize = size
	}
	return req, nil
}
