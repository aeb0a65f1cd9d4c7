package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event names acted upon. Anything else is acknowledged and ignored.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventPaymentCaptured       = "payment.captured"
	EventPaymentAuthorized     = "payment.authorized"
)

// Notes is Razorpay's free-form key/value bag. The gateway sends an empty
// JSON array instead of an object when there are no notes.
type Notes map[string]string

// UnmarshalJSON accepts an object, an empty array, or null.
func (n *Notes) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		var arr []any
		if aerr := json.Unmarshal(b, &arr); aerr == nil && len(arr) == 0 {
			*n = Notes{}
			return nil
		}
		return err
	}
	out := make(Notes, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	*n = out
	return nil
}

// SubscriptionEntity is the subscription object of subscription.* events.
type SubscriptionEntity struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	CurrentEnd int64  `json:"current_end"`
	Notes      Notes  `json:"notes"`
}

// PeriodEnd converts CurrentEnd (unix seconds) to a time; zero when unset.
func (s SubscriptionEntity) PeriodEnd() time.Time {
	if s.CurrentEnd <= 0 {
		return time.Time{}
	}
	return time.Unix(s.CurrentEnd, 0).UTC()
}

// PaymentEntity is the payment object of payment.* events.
type PaymentEntity struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Notes      Notes  `json:"notes"`
}

type entity[T any] struct {
	Entity T `json:"entity"`
}

// Event is a decoded webhook delivery.
type Event struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription *entity[SubscriptionEntity] `json:"subscription,omitempty"`
		Payment      *entity[PaymentEntity]      `json:"payment,omitempty"`
		Customer     *entity[struct {
			ID string `json:"id"`
		}] `json:"customer,omitempty"`
	} `json:"payload"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event name")
	}
	return &ev, nil
}

// Subscription returns the subscription entity, if present.
func (e *Event) Subscription() (SubscriptionEntity, bool) {
	if e.Payload.Subscription == nil {
		return SubscriptionEntity{}, false
	}
	return e.Payload.Subscription.Entity, true
}

// Payment returns the payment entity, if present.
func (e *Event) Payment() (PaymentEntity, bool) {
	if e.Payload.Payment == nil {
		return PaymentEntity{}, false
	}
	return e.Payload.Payment.Entity, true
}

// CustomerID returns payload.customer.entity.id, or "".
func (e *Event) CustomerID() string {
	if e.Payload.Customer == nil {
		return ""
	}
	return e.Payload.Customer.Entity.ID
}
