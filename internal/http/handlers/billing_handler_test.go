package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-chatpdf-backend/internal/billing"
	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
)

const whSecret = "whsec_test"

type fakeGateway struct{ orders []billing.OrderRequest }

func (g *fakeGateway) CreateOrder(_ context.Context, req billing.OrderRequest) (*billing.Order, error) {
	g.orders = append(g.orders, req)
	return &billing.Order{ID: "order_1", Amount: req.Amount, Currency: req.Currency, Notes: req.Notes}, nil
}

func (g *fakeGateway) FetchOrder(context.Context, string) (*billing.Order, error) {
	return nil, billing.ErrOrderNotFound
}

func (g *fakeGateway) KeyID() string { return "rzp_test" }

func newBillingEnv(t *testing.T) (*env, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	e := newEnv(t, Deps{})
	svc := services.NewBillingService(e.db, gw, config.RazorpayConfig{
		WebhookSecret: whSecret,
		PlanName:      "ChatPDF Pro",
		PlanAmount:    200000,
		Currency:      "INR",
		PeriodLength:  30 * 24 * time.Hour,
		PublicBaseURL: "https://app.example",
	})
	e.h.billSvc = svc
	return e, gw
}

func (e *env) webhook(body, sig string) int {
	return e.do(http.MethodPost, "/webhook", "", body, billing.SignatureHeader, sig).Code
}

func TestRazorpayWebhook(t *testing.T) {
	e, _ := newBillingEnv(t)
	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":{"userId":"u1"}}}}}`

	if code := e.webhook(body, billing.Sign([]byte(body), whSecret)); code != http.StatusOK {
		t.Fatalf("signed delivery = %d", code)
	}
	var sub domain.Subscription
	if err := e.db.First(&sub, "user_id = ?", "u1").Error; err != nil {
		t.Fatalf("subscription row: %v", err)
	}

	tampered := []byte(body)
	tampered[len(tampered)-5] = 'X'
	if code := e.webhook(string(tampered), billing.Sign([]byte(body), whSecret)); code != http.StatusBadRequest {
		t.Fatalf("tampered delivery = %d", code)
	}

	noUser := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_2"}}}}`
	if code := e.webhook(noUser, billing.Sign([]byte(noUser), whSecret)); code != http.StatusBadRequest {
		t.Fatalf("missing user = %d", code)
	}

	unknown := `{"event":"refund.processed","payload":{}}`
	w := e.do(http.MethodPost, "/webhook", "", unknown, billing.SignatureHeader, billing.Sign([]byte(unknown), whSecret))
	if w.Code != http.StatusOK || decode[WebhookAck](t, w).Status != "ignored" {
		t.Fatalf("unknown event = %d %s", w.Code, w.Body.String())
	}
}

func TestSubscriptionStatus(t *testing.T) {
	e, _ := newBillingEnv(t)
	if got := decode[SubscriptionStatus](t, e.do(http.MethodGet, "/subscription", "", nil)); got.IsPro {
		t.Fatal("anonymous user is pro")
	}

	end := time.Now().Add(24 * time.Hour)
	if err := repo.UpsertSubscription(context.Background(), e.db, &domain.Subscription{UserID: "u1", CurrentPeriodEnd: &end}, []string{"current_period_end"}); err != nil {
		t.Fatal(err)
	}
	if got := decode[SubscriptionStatus](t, e.do(http.MethodGet, "/subscription", "u1", nil)); !got.IsPro {
		t.Fatal("paying user is not pro")
	}
}

func TestCheckout(t *testing.T) {
	e, gw := newBillingEnv(t)
	w := e.do(http.MethodGet, "/razorpay", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[services.CheckoutSession](t, w)
	if sess.Type != "checkout" || sess.ID != "order_1" || sess.KeyID != "rzp_test" || sess.CallbackURL != "https://app.example/" {
		t.Fatalf("session = %+v", sess)
	}
	if len(gw.orders) != 1 || gw.orders[0].Notes["userId"] != "u1" {
		t.Fatalf("orders = %+v", gw.orders)
	}

	wantError(t, e.do(http.MethodGet, "/razorpay", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}
