package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/metrics"
)

// Fake is an in-memory Gateway for local development and tests. Sessions
// start unpaid; Pay settles one the way a customer completing checkout would.
type Fake struct {
	mu       sync.Mutex
	secret   string
	intents  map[string]*Intent
	sessions map[string]*Session
	failNext error
	calls    map[string]int
}

func NewFake(webhookSecret string) *Fake {
	return &Fake{
		secret:   webhookSecret,
		intents:  map[string]*Intent{},
		sessions: map[string]*Session{},
		calls:    map[string]int{},
	}
}

// FailNext makes the next gateway call fail with the provider message msg.
func (f *Fake) FailNext(msg string) {
	f.mu.Lock()
	f.failNext = apperr.Gateway(msg, fmt.Errorf("fake gateway: %s", msg))
	f.mu.Unlock()
}

// Calls is how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	err := f.failNext
	f.failNext = nil
	return err
}

func fakeID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (f *Fake) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (_ *Intent, err error) {
	defer metrics.ObserveGateway("create_intent", time.Now(), &err)
	if err := f.begin("create_intent"); err != nil {
		return nil, err
	}

	id := fakeID("pi")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + fakeID("cs")[3:11],
		Status:       "requires_payment_method",
		Amount:       amountMinor,
		Currency:     NormalizeCurrency(currency),
		Metadata:     copyMeta(metadata),
	}

	f.mu.Lock()
	f.intents[id] = in
	f.mu.Unlock()

	out := *in
	return &out, nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, p CheckoutParams) (_ *Session, err error) {
	defer metrics.ObserveGateway("create_checkout_session", time.Now(), &err)
	if err := f.begin("create_checkout_session"); err != nil {
		return nil, err
	}

	id := fakeID("cs_test")
	s := &Session{
		ID:            id,
		URL:           "https://checkout.fake.test/pay/" + id,
		PaymentStatus: "unpaid",
		Reference:     p.Reference,
		CustomerEmail: p.CustomerEmail,
		Metadata:      copyMeta(p.Metadata),
	}

	f.mu.Lock()
	f.sessions[id] = s
	f.mu.Unlock()

	out := *s
	return &out, nil
}

func (f *Fake) RetrieveSession(_ context.Context, id string) (_ *Session, err error) {
	defer metrics.ObserveGateway("retrieve_session", time.Now(), &err)
	if err := f.begin("retrieve_session"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.Gateway("No such checkout.session: "+id, fmt.Errorf("fake gateway: unknown session %s", id))
	}
	out := *s
	return &out, nil
}

func (f *Fake) RetrieveIntent(_ context.Context, id string) (_ *Intent, err error) {
	defer metrics.ObserveGateway("retrieve_intent", time.Now(), &err)
	if err := f.begin("retrieve_intent"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, apperr.Gateway("No such payment_intent: "+id, fmt.Errorf("fake gateway: unknown intent %s", id))
	}
	out := *in
	return &out, nil
}

// Pay marks a session paid and gives it a succeeded intent.
func (f *Fake) Pay(sessionID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("fake gateway: unknown session %s", sessionID)
	}
	if s.PaymentIntentID == "" {
		s.PaymentIntentID = fakeID("pi")
		f.intents[s.PaymentIntentID] = &Intent{ID: s.PaymentIntentID, Status: IntentSucceeded}
	}
	s.PaymentStatus = SessionPaid
	out := *s
	return &out, nil
}

// Succeed marks an intent succeeded.
func (f *Fake) Succeed(intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[intentID]
	if !ok {
		return fmt.Errorf("fake gateway: unknown intent %s", intentID)
	}
	in.Status = IntentSucceeded
	return nil
}

// Sign returns the signature ParseWebhook accepts for payload.
func (f *Fake) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(f.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeEvent struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Session *Session `json:"session,omitempty"`
	Intent  *Intent  `json:"intent,omitempty"`
}

// EncodeEvent renders ev in the wire form ParseWebhook reads.
func (f *Fake) EncodeEvent(ev Event) []byte {
	b, _ := json.Marshal(fakeEvent{ID: ev.ID, Type: ev.Type, Session: ev.Session, Intent: ev.Intent})
	return b
}

func (f *Fake) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if !hmac.Equal([]byte(signature), []byte(f.Sign(payload))) {
		return nil, apperr.Payment("Webhook Error: signature mismatch")
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperr.Payment("Webhook Error: malformed payload")
	}
	return &Event{ID: ev.ID, Type: ev.Type, Session: ev.Session, Intent: ev.Intent}, nil
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
