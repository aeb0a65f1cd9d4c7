package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
)

const secret = "whsec_test"

func TestValidateWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := Sign(body, secret)

	require.NoError(t, ValidateWebhookSignature(body, sig, secret))

	tampered := append([]byte(nil), body...)
	tampered[10] ^= 0x01
	require.ErrorIs(t, ValidateWebhookSignature(tampered, sig, secret), ErrInvalidSignature)

	require.ErrorIs(t, ValidateWebhookSignature(body, "", secret), ErrInvalidSignature)
	require.ErrorIs(t, ValidateWebhookSignature(body, sig, ""), ErrInvalidSignature)
	require.ErrorIs(t, ValidateWebhookSignature(body, sig, "other"), ErrInvalidSignature)
}

func TestValidateWebhookSignature_EveryByteMatters(t *testing.T) {
	body := []byte(`{"event":"subscription.charged"}`)
	sig := Sign(body, secret)
	for i := range body {
		b := append([]byte(nil), body...)
		b[i]++
		if err := ValidateWebhookSignature(b, sig, secret); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("byte %d: tampered body accepted", i)
		}
	}
}

func TestParseEvent_Subscription(t *testing.T) {
	raw := []byte(`{
	  "event": "subscription.activated",
	  "payload": {
	    "subscription": {"entity": {"id": "sub_1", "plan_id": "plan_1", "current_end": 1700000000, "notes": {"userId": "u1"}}},
	    "customer": {"entity": {"id": "cust_1"}}
	  }
	}`)
	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	require.Equal(t, EventSubscriptionActivated, ev.Event)

	sub, ok := ev.Subscription()
	require.True(t, ok)
	require.Equal(t, "u1", sub.Notes["userId"])
	require.Equal(t, time.Unix(1700000000, 0).UTC(), sub.PeriodEnd())
	require.Equal(t, "cust_1", ev.CustomerID())

	_, ok = ev.Payment()
	require.False(t, ok)
}

func TestParseEvent_PaymentWithEmptyNotesArray(t *testing.T) {
	raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","notes":[]}}}}`)
	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	p, ok := ev.Payment()
	require.True(t, ok)
	require.Equal(t, "order_1", p.OrderID)
	require.Empty(t, p.Notes)
	require.Equal(t, "", ev.CustomerID())
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	require.Error(t, err)
	_, err = ParseEvent([]byte(`{"payload":{}}`))
	require.Error(t, err)
}

func TestNotes_NonStringValues(t *testing.T) {
	var n Notes
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":2,"c":null}`), &n))
	require.Equal(t, Notes{"a": "x", "b": "2"}, n)
}

func TestClient_CreateAndFetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_key" || pass != "rzp_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var req OrderRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(Order{ID: "order_1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Notes: req.Notes})
		case r.Method == http.MethodGet && r.URL.Path == "/orders/order_1":
			_, _ = w.Write([]byte(`{"id":"order_1","amount":200000,"currency":"INR","notes":{"userId":"u1"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		}
	}))
	defer srv.Close()

	c := NewClient(config.RazorpayConfig{KeyID: "rzp_key", KeySecret: "rzp_secret", BaseURL: srv.URL}, srv.Client())
	require.Equal(t, "rzp_key", c.KeyID())

	o, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 200000, Currency: "INR", Receipt: "r1", Notes: Notes{"userId": "u1"}})
	require.NoError(t, err)
	require.Equal(t, "order_1", o.ID)
	require.Equal(t, "u1", o.Notes["userId"])

	got, err := c.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.Notes["userId"])

	_, err = c.FetchOrder(context.Background(), "order_missing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestClient_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.RazorpayConfig{BaseURL: srv.URL}, srv.Client())
	_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
