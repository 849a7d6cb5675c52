// Package payment adapts the payment provider behind a small Gateway
// interface. Amounts are integer minor units (cents).
package payment

import (
	"context"
	"strings"
)

// Provider event types the order flow reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventIntentSucceeded   = "payment_intent.succeeded"
	EventIntentFailed      = "payment_intent.payment_failed"
)

// Provider statuses.
const (
	SessionPaid     = "paid"
	IntentSucceeded = "succeeded"
)

// Intent is a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// CheckoutParams describes a hosted checkout for one line item.
type CheckoutParams struct {
	AmountMinor   int64
	Currency      string
	Description   string
	Reference     string // echoed back as the session's client reference
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is a hosted checkout session.
type Session struct {
	ID              string
	URL             string
	PaymentStatus   string
	Reference       string
	PaymentIntentID string
	CustomerEmail   string
	Metadata        map[string]string
}

// Paid reports whether the provider considers the session paid.
func (s *Session) Paid() bool { return s.PaymentStatus == SessionPaid }

// Event is a verified webhook event. Exactly one of Session and Intent is
// set for the event types above.
type Event struct {
	ID      string
	Type    string
	Session *Session
	Intent  *Intent
}

// Gateway is the provider adapter. Failed provider calls come back as
// apperr Gateway errors carrying the provider's message.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	// ParseWebhook verifies signature over payload and decodes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// NormalizeCurrency lower-cases a currency code, defaulting to usd.
func NormalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "usd"
	}
	return c
}
