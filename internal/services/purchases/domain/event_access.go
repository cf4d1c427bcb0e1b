package domain

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/ledger"
	"github.com/eventpass/eventpass/internal/services/purchases/model"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventAccessReceipt is returned by a successful event purchase.
type EventAccessReceipt struct {
	PurchaseID       string
	AccessToken      string
	ExpiresAt        time.Time
	ReceiptNumber    string
	DigitalSignature string
	NewBalance       int64
}

// StreamAccess locates the playback stream for a user with an active grant.
type StreamAccess struct {
	EventID         string
	PlaybackLocator string
	ExpiresAt       time.Time
}

// GrantView is an access grant with its derived status.
type GrantView struct {
	Grant      model.AccessGrant
	Status     model.GrantStatus
	EventTitle string
}

// GrantPage is one page of a user's access grants, newest first.
type GrantPage struct {
	Grants        []GrantView
	NextPageToken string
}

// PurchaseEventAccess spends tokens on time-limited access to an event.
//
// Validation and the balance check happen before any mutation. The debit,
// grant, order, receipt index and outbox entry then commit together.
func (s *Service) PurchaseEventAccess(ctx context.Context, userID, eventID string) (receipt EventAccessReceipt, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "PurchaseEventAccess",
		attribute.String("user.id", userID),
		attribute.String("event.id", eventID),
	)
	defer func() {
		s.metrics.ObservePurchase(model.ReceiptKindEventAccess.String(), outcomeOf(err), time.Since(started))
		finishSpan(span, err)
	}()

	state := model.PurchaseStateRequested
	if err := requireArgument("user_id", userID); err != nil {
		advance(span, &state, model.PurchaseStateRejected)
		return EventAccessReceipt{}, err
	}
	if err := requireArgument("event_id", eventID); err != nil {
		advance(span, &state, model.PurchaseStateRejected)
		return EventAccessReceipt{}, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		advance(span, &state, model.PurchaseStateRejected)
		return EventAccessReceipt{}, notFound("event", err)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		advance(span, &state, model.PurchaseStateRejected)
		return EventAccessReceipt{}, notFound("user", err)
	}
	advance(span, &state, model.PurchaseStatePriced)
	if user.TokenBalance < event.PriceTokens {
		advance(span, &state, model.PurchaseStateRejected)
		return EventAccessReceipt{}, ledger.NewInsufficientBalance(event.PriceTokens, user.TokenBalance)
	}

	for attempt := 1; ; attempt++ {
		receipt, err = s.commitEventAccess(ctx, span, &state, user, event)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrConflict) && attempt < maxWriteAttempts {
			span.AddEvent("purchase.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			state = model.PurchaseStatePriced
			continue
		}
		if isRejection(err) && state.CanReject() {
			advance(span, &state, model.PurchaseStateRejected)
			return EventAccessReceipt{}, err
		}
		return EventAccessReceipt{}, internalFault("purchase event access", map[string]string{
			"UserID":        user.ID,
			"EventID":       event.ID,
			"ReceiptNumber": receipt.ReceiptNumber,
			"State":         state.String(),
		}, err)
	}
	advance(span, &state, model.PurchaseStateComplete)
	return receipt, nil
}

// commitEventAccess runs one transactional attempt. On failure the returned
// receipt still carries the receipt number tried, for reconciliation.
func (s *Service) commitEventAccess(ctx context.Context, span trace.Span, state *model.PurchaseState, user model.User, event model.Event) (EventAccessReceipt, error) {
	issuedAt := s.now()
	var receipt EventAccessReceipt
	grant := model.AccessGrant{
		UserID:      user.ID,
		EventID:     event.ID,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(model.AccessGrantValidity),
		TokensSpent: event.PriceTokens,
	}
	var err error
	if grant.ID, err = s.ids.EntityID(); err != nil {
		return receipt, err
	}
	if grant.AccessToken, err = s.ids.AccessToken(); err != nil {
		return receipt, err
	}
	if grant.ReceiptNumber, err = s.ids.ReceiptNumber(); err != nil {
		return receipt, err
	}
	receipt.ReceiptNumber = grant.ReceiptNumber
	orderID, err := s.ids.EntityID()
	if err != nil {
		return receipt, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		before, err := ledger.New(tx).Debit(ctx, user.ID, event.PriceTokens)
		if err != nil {
			return err
		}
		advance(span, state, model.PurchaseStateDebited)
		receipt.NewBalance = before - event.PriceTokens

		grant.Signature, err = s.signGrant(grant)
		if err != nil {
			return err
		}
		advance(span, state, model.PurchaseStateSigned)

		if err := tx.ReserveReceiptNumber(ctx, model.ReceiptIndex{
			ReceiptNumber: grant.ReceiptNumber,
			Kind:          model.ReceiptKindEventAccess,
			PurchaseID:    grant.ID,
			CreatedAt:     issuedAt,
		}); err != nil {
			return err
		}
		if err := tx.PutAccessGrant(ctx, grant); err != nil {
			return err
		}
		if err := tx.PutOrder(ctx, model.Order{
			ID:            orderID,
			UserID:        user.ID,
			Type:          model.OrderTypeEventAccess,
			Description:   "Access: " + event.Title,
			Amount:        decimal.NewFromInt(event.PriceTokens),
			Status:        model.OrderStatusCompleted,
			ReceiptNumber: grant.ReceiptNumber,
			Signature:     grant.Signature,
			CreatedAt:     issuedAt,
		}); err != nil {
			return err
		}
		advance(span, state, model.PurchaseStatePersisted)

		if err := s.enqueueReceiptIssued(ctx, tx, ReceiptIssuedPayload{
			ReceiptNumber: grant.ReceiptNumber,
			Kind:          model.ReceiptKindEventAccess.String(),
			UserID:        user.ID,
			Email:         user.Email,
			DisplayName:   user.DisplayName,
			Description:   "Access: " + event.Title,
			TokensSpent:   grant.TokensSpent,
			ExpiresAt:     grant.ExpiresAt,
			IssuedAt:      issuedAt,
		}); err != nil {
			return err
		}
		advance(span, state, model.PurchaseStateNotificationQueued)
		return nil
	})
	if err != nil {
		return receipt, err
	}
	receipt.PurchaseID = grant.ID
	receipt.AccessToken = grant.AccessToken
	receipt.ExpiresAt = grant.ExpiresAt
	receipt.DigitalSignature = grant.Signature
	return receipt, nil
}

// GetStreamLocator returns the playback locator when the user holds a grant
// for the event that has not expired.
func (s *Service) GetStreamLocator(ctx context.Context, userID, eventID string) (access StreamAccess, err error) {
	ctx, span := s.startSpan(ctx, "GetStreamLocator",
		attribute.String("user.id", userID),
		attribute.String("event.id", eventID),
	)
	defer func() { finishSpan(span, err) }()

	if err := requireArgument("user_id", userID); err != nil {
		return StreamAccess{}, err
	}
	if err := requireArgument("event_id", eventID); err != nil {
		return StreamAccess{}, err
	}
	grant, err := s.store.GetLatestAccessGrant(ctx, userID, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return StreamAccess{}, errNoActiveGrant
	}
	if err != nil {
		return StreamAccess{}, err
	}
	if grant.StatusAt(s.clock()) != model.GrantStatusActive {
		return StreamAccess{}, errNoActiveGrant
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return StreamAccess{}, notFound("event", err)
	}
	return StreamAccess{
		EventID:         event.ID,
		PlaybackLocator: event.PlaybackLocator,
		ExpiresAt:       grant.ExpiresAt,
	}, nil
}

var errNoActiveGrant = apperrors.New(apperrors.CodeForbidden, "no active access grant")

// ListUserAccessGrants lists a user's grants newest first with derived
// status and event titles.
func (s *Service) ListUserAccessGrants(ctx context.Context, userID string, req PageRequest) (GrantPage, error) {
	if err := requireArgument("user_id", userID); err != nil {
		return GrantPage{}, err
	}
	page, err := req.storagePage()
	if err != nil {
		return GrantPage{}, err
	}
	grants, err := s.store.ListAccessGrants(ctx, userID, page)
	if err != nil {
		return GrantPage{}, err
	}
	grants, next := trimPage(grants, page)

	now := s.clock()
	titles := make(map[string]string)
	views := make([]GrantView, 0, len(grants))
	for _, grant := range grants {
		title, ok := titles[grant.EventID]
		if !ok {
			event, err := s.store.GetEvent(ctx, grant.EventID)
			switch {
			case err == nil:
				title = event.Title
			case !errors.Is(err, storage.ErrNotFound):
				return GrantPage{}, err
			}
			titles[grant.EventID] = title
		}
		views = append(views, GrantView{
			Grant:      grant,
			Status:     grant.StatusAt(now),
			EventTitle: title,
		})
	}
	return GrantPage{Grants: views, NextPageToken: next}, nil
}
