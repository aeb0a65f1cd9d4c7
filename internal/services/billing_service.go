// Package services – BillingService
//
// This file implements the billing flows around the payment gateway:
// verifying and applying webhook deliveries to the user's subscription row,
// answering whether a user is on the paid plan, and starting a checkout.
// Subscriptions are only ever written from verified webhooks.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/billing"
	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/sysutil"
)

// PaymentGateway is the subset of the gateway client the service needs.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req billing.OrderRequest) (*billing.Order, error)
	FetchOrder(ctx context.Context, id string) (*billing.Order, error)
	KeyID() string
}

// CheckoutSession is what the client needs to open the payment widget, or
// to manage an existing subscription.
type CheckoutSession struct {
	Type           string `json:"type" example:"checkout"`
	ID             string `json:"id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	KeyID          string `json:"key_id"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
}

// BillingService applies payment events and answers plan questions.
type BillingService struct {
	DB      *gorm.DB
	Gateway PaymentGateway
	Cfg     config.RazorpayConfig

	now func() time.Time
}

// NewBillingService wires a BillingService.
func NewBillingService(db *gorm.DB, gw PaymentGateway, cfg config.RazorpayConfig) *BillingService {
	return &BillingService{DB: db, Gateway: gw, Cfg: cfg, now: time.Now}
}

// HandleWebhook verifies body against signature and applies the event. It
// reports whether the event type was acted upon; unknown types are ignored.
func (s *BillingService) HandleWebhook(ctx context.Context, body []byte, signature string) (bool, error) {
	tr := otel.Tracer("services/BillingService")
	ctx, span := tr.Start(ctx, "HandleWebhook")
	defer span.End()

	if err := billing.ValidateWebhookSignature(body, signature, s.Cfg.WebhookSecret); err != nil {
		return false, ErrInvalidSignature
	}
	ev, err := billing.ParseEvent(body)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	span.SetAttributes(attribute.String("event", ev.Event))
	log := zerolog.Ctx(ctx).With().Str("event", ev.Event).Logger()

	switch ev.Event {
	case billing.EventSubscriptionActivated, billing.EventSubscriptionCharged:
		err = s.applySubscription(ctx, ev, body)
	case billing.EventPaymentCaptured, billing.EventPaymentAuthorized:
		err = s.applyPayment(ctx, ev, body)
	default:
		log.Debug().Msg("webhook event ignored")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	log.Info().Msg("webhook applied")
	return true, nil
}

func (s *BillingService) applySubscription(ctx context.Context, ev *billing.Event, raw []byte) error {
	sub, ok := ev.Subscription()
	if !ok {
		return fmt.Errorf("%w: missing subscription entity", ErrInvalidWebhook)
	}
	userID := strings.TrimSpace(sub.Notes["userId"])
	if userID == "" {
		return ErrMissingUserID
	}

	row := &domain.Subscription{
		UserID:                 userID,
		ExternalCustomerID:     sysutil.FirstNonEmpty(ev.CustomerID(), sub.CustomerID),
		ExternalSubscriptionID: sub.ID,
		LastEvent:              ev.Event,
		LastPayload:            datatypes.JSON(raw),
	}
	if sub.PlanID != "" {
		plan := sub.PlanID
		row.PlanID = &plan
	}
	if end := sub.PeriodEnd(); !end.IsZero() {
		row.CurrentPeriodEnd = &end
	}
	return repo.UpsertSubscription(ctx, s.DB, row,
		[]string{"external_subscription_id", "plan_id", "current_period_end", "last_event", "last_payload"})
}

func (s *BillingService) applyPayment(ctx context.Context, ev *billing.Event, raw []byte) error {
	pay, ok := ev.Payment()
	if !ok {
		return fmt.Errorf("%w: missing payment entity", ErrInvalidWebhook)
	}

	userID := ""
	if pay.OrderID != "" && s.Gateway != nil {
		order, err := s.Gateway.FetchOrder(ctx, pay.OrderID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("order_id", pay.OrderID).Msg("order lookup failed; using payment notes")
		} else {
			userID = strings.TrimSpace(order.Notes["userId"])
		}
	}
	if userID == "" {
		userID = strings.TrimSpace(pay.Notes["userId"])
	}
	if userID == "" {
		return ErrMissingUserID
	}

	period := s.Cfg.PeriodLength
	if period <= 0 {
		period = 30 * 24 * time.Hour
	}
	end := s.now().UTC().Add(period)
	return repo.UpsertSubscription(ctx, s.DB, &domain.Subscription{
		UserID:                 userID,
		ExternalCustomerID:     sysutil.FirstNonEmpty(pay.CustomerID, userID),
		ExternalSubscriptionID: pay.ID,
		CurrentPeriodEnd:       &end,
		LastEvent:              ev.Event,
		LastPayload:            datatypes.JSON(raw),
	}, []string{"current_period_end", "last_event", "last_payload"})
}

// IsPro reports whether userID has a subscription inside its paid period
// plus grace. Anonymous users are never pro.
func (s *BillingService) IsPro(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	sub, err := repo.GetSubscription(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Active(s.now(), s.Cfg.SubscriptionGrace), nil
}

// Checkout returns a management descriptor for users that already have a
// subscription, otherwise creates a gateway order for the plan.
func (s *BillingService) Checkout(ctx context.Context, userID string) (*CheckoutSession, error) {
	tr := otel.Tracer("services/BillingService")
	ctx, span := tr.Start(ctx, "Checkout", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	sub, err := repo.GetSubscription(ctx, s.DB, userID)
	switch {
	case err == nil && sub.ExternalSubscriptionID != "":
		return &CheckoutSession{Type: "manage", SubscriptionID: sub.ExternalSubscriptionID, KeyID: s.Gateway.KeyID()}, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	order, err := s.Gateway.CreateOrder(ctx, billing.OrderRequest{
		Amount:   s.Cfg.PlanAmount,
		Currency: s.Cfg.Currency,
		Receipt:  fmt.Sprintf("receipt_order_%d", s.now().UnixMilli()),
		Notes:    billing.Notes{"plan_name": s.Cfg.PlanName, "userId": userID},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &CheckoutSession{
		Type:        "checkout",
		ID:          order.ID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		KeyID:       s.Gateway.KeyID(),
		Name:        s.Cfg.PlanName,
		Description: s.Cfg.PlanDescription,
		CallbackURL: strings.TrimRight(s.Cfg.PublicBaseURL, "/") + "/",
	}, nil
}
