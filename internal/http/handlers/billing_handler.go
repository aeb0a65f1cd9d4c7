package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatpdf-backend/internal/billing"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
)

// SubscriptionStatus is the body of GET /subscription.
type SubscriptionStatus struct {
	IsPro bool `json:"isPro"`
}

// WebhookAck acknowledges a webhook delivery.
type WebhookAck struct {
	Status string `json:"status" example:"ok"`
}

// Checkout godoc
// @ID          checkout
// @Summary     Start or manage the paid plan
// @Description Returns {type:"manage"} when the user already has a subscription, otherwise creates a payment order and returns the checkout descriptor.
// @Tags        Billing
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  services.CheckoutSession
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment gateway error"
// @Router      /razorpay [get]
func (h *Handlers) Checkout(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sess, err := h.billSvc.Checkout(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
			return
		}
		_ = c.Error(err)
		var apiErr *billing.APIError
		if errors.As(err, &apiErr) {
			fail(c, http.StatusBadGateway, ErrCodeCheckoutFailed, "payment gateway rejected the order")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCheckoutFailed, "could not start checkout")
		return
	}
	ok(c, http.StatusOK, sess)
}

// SubscriptionStatus godoc
// @ID          subscriptionStatus
// @Summary     Plan status
// @Description Reports whether the caller has an active paid plan. Anonymous callers get false.
// @Tags        Billing
// @Produce     json
//
// @Success     200  {object}  handlers.SubscriptionStatus
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscription [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	pro, err := h.billSvc.IsPro(c.Request.Context(), userID(c))
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load subscription")
		return
	}
	ok(c, http.StatusOK, SubscriptionStatus{IsPro: pro})
}

// RazorpayWebhook godoc
// @ID          razorpayWebhook
// @Summary     Payment webhook
// @Description Verifies X-Razorpay-Signature over the raw body and applies subscription and payment events. Unknown events are acknowledged and ignored.
// @Tags        Billing
// @Accept      json
// @Produce     json
//
// @Param       X-Razorpay-Signature  header  string  true  "hex HMAC-SHA256 of the raw body"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid signature or payload"
// @Router      /webhook [post]
func (h *Handlers) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}

	applied, err := h.billSvc.HandleWebhook(c.Request.Context(), body, c.GetHeader(billing.SignatureHeader))
	switch {
	case err == nil && applied:
		ok(c, http.StatusOK, WebhookAck{Status: "ok"})
	case err == nil:
		ok(c, http.StatusOK, WebhookAck{Status: "ignored"})
	case errors.Is(err, services.ErrInvalidSignature):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid signature")
	case errors.Is(err, services.ErrMissingUserID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event carries no user id")
	case errors.Is(err, services.ErrInvalidWebhook):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed event")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeWebhookFailed, "could not apply event")
	}
}
