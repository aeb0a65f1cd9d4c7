// Package billing talks to the Razorpay payment gateway: order creation and
// lookup over its REST API, webhook signature checks, and webhook event
// decoding.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Razorpay-Signature"

// ErrInvalidSignature is returned for a missing or mismatching signature.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateWebhookSignature checks signature against the raw request body in
// constant time.
func ValidateWebhookSignature(body []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(Sign(body, secret)), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}
