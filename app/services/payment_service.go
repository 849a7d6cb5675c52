package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shashiranjanraj/vidorder/app/jobs"
	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/bind"
	"github.com/shashiranjanraj/vidorder/pkg/dedupe"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/metrics"
	"github.com/shashiranjanraj/vidorder/pkg/payment"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
)

// Settlement sources, used as the payments_settled metric label.
const (
	SourceVerify    = "verify"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// webhookEventTTL outlives the provider's retry window.
const webhookEventTTL = 72 * time.Hour

// CheckoutInput starts a hosted checkout for an existing order.
type CheckoutInput struct {
	OrderID     string  `json:"orderId" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3,alpha"`
	Description string  `json:"description" validate:"max=500"`
}

type CheckoutResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type VerifyResult struct {
	Status          string `json:"status"`
	PaymentIntentID string `json:"paymentIntentId"`
	OrderID         string `json:"orderId"`
	CustomerEmail   string `json:"customerEmail"`
}

type PaymentService struct {
	orders      repositories.OrderRepository
	users       repositories.UserRepository
	gateway     payment.Gateway
	events      dedupe.Store
	jobs        Dispatcher
	frontendURL string
}

func NewPaymentService(orders repositories.OrderRepository, users repositories.UserRepository,
	gateway payment.Gateway, events dedupe.Store, jobs Dispatcher, frontendURL string) *PaymentService {
	return &PaymentService{
		orders:      orders,
		users:       users,
		gateway:     gateway,
		events:      events,
		jobs:        jobs,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// CreateCheckoutSession opens a hosted checkout for the caller's pending
// order. The session's client reference is the order code.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, user auth.Identity, in CheckoutInput) (*CheckoutResult, error) {
	ctx, span := telemetry.Start(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()

	if err := bind.Struct(in); err != nil {
		return nil, err
	}

	order, err := s.orders.FindByCode(ctx, in.OrderID)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}
	if !order.OwnedBy(user.ID) {
		return nil, apperr.Forbidden("Not authorized to pay for this order")
	}
	if order.Status != models.StatusPending {
		return nil, apperr.Conflict("Order is not awaiting payment")
	}
	if MinorUnits(in.Amount) != MinorUnits(order.Total) {
		return nil, apperr.ValidationFields("Amount does not match the order total",
			map[string]string{"amount": fmt.Sprintf("must equal %.2f", order.Total)})
	}

	currency := order.Currency
	if in.Currency != "" {
		currency = payment.NormalizeCurrency(in.Currency)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("%s video package (%s)", capitalize(string(order.PackageType)), order.Code)
	}

	code := url.QueryEscape(order.Code)
	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutParams{
		AmountMinor:   MinorUnits(order.Total),
		Currency:      currency,
		Description:   description,
		Reference:     order.Code,
		CustomerEmail: user.Email,
		SuccessURL:    s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}&orderId=" + code,
		CancelURL:     s.frontendURL + "/payment/cancel?orderId=" + code,
		Metadata:      map[string]string{"orderId": order.Code, "userId": user.ID},
	})
	if err != nil {
		return nil, err
	}

	_, err = s.orders.Update(ctx, order.Code, repositories.OrderPatch{CheckoutSessionID: &session.ID}, models.StatusPending)
	if errors.Is(err, repositories.ErrStale) {
		return nil, apperr.Conflict("Order is not awaiting payment")
	}
	if err != nil {
		return nil, apperr.Internal("record checkout session", err)
	}

	logger.WithCtx(ctx).Info("checkout session created", "order", order.Code, "session", session.ID)
	return &CheckoutResult{ID: session.ID, URL: session.URL}, nil
}

// VerifyPayment settles an order from the client's return trip. It only
// writes when the session is paid and references expectedCode.
func (s *PaymentService) VerifyPayment(ctx context.Context, user auth.Identity, sessionID, expectedCode string) (*VerifyResult, error) {
	ctx, span := telemetry.Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	expectedCode = strings.TrimSpace(expectedCode)
	if expectedCode == "" {
		return nil, apperr.ValidationFields("Order ID is required", map[string]string{"orderId": "is required"})
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Paid() {
		return nil, apperr.Payment("Payment not completed")
	}
	if session.Reference != expectedCode {
		logger.WithCtx(ctx).Warn("payment reference mismatch",
			"session", sessionID, "reference", session.Reference, "expected", expectedCode)
		return nil, apperr.Payment("Order reference mismatch")
	}

	order, err := s.orders.FindByCode(ctx, expectedCode)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}
	if !order.OwnedBy(user.ID) && !user.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to verify this order")
	}

	if _, err := s.settle(ctx, order.Code, session.PaymentIntentID, SourceVerify); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Status:          session.PaymentStatus,
		PaymentIntentID: session.PaymentIntentID,
		OrderID:         expectedCode,
		CustomerEmail:   session.CustomerEmail,
	}, nil
}

// settle moves a pending order to processing with payment status paid.
// An order that is already processing or completed is returned unchanged.
func (s *PaymentService) settle(ctx context.Context, code, intentID, source string) (*models.Order, error) {
	processing := models.StatusProcessing
	paid := models.PaymentPaid
	patch := repositories.OrderPatch{Status: &processing, PaymentStatus: &paid}
	if intentID != "" {
		patch.PaymentIntentID = &intentID
	}

	order, err := s.orders.Update(ctx, code, patch, models.StatusPending)
	if errors.Is(err, repositories.ErrStale) {
		current, ferr := s.orders.FindByCode(ctx, code)
		if ferr != nil {
			return nil, storeError(ferr, "Order not found")
		}
		if current.Status == models.StatusProcessing || current.Status == models.StatusCompleted {
			return current, nil
		}
		return nil, apperr.Conflict(fmt.Sprintf("Order is %s and cannot be settled", current.Status))
	}
	if err != nil {
		return nil, storeError(err, "Order not found")
	}

	metrics.PaymentsSettled.WithLabelValues(source).Inc()
	logger.WithCtx(ctx).Info("payment settled", "order", code, "source", source, "intent", intentID)

	if owner, err := s.users.FindByID(ctx, order.UserID); err == nil {
		dispatch(ctx, s.jobs, &jobs.PaymentReceived{
			OrderCode: order.Code,
			Email:     owner.Email,
			Name:      owner.Name,
			Total:     order.Total,
			Currency:  order.Currency,
		})
	}
	return order, nil
}

// HandleWebhook applies a signed provider event. Each event id is applied
// at most once; events that need no action are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := telemetry.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	log := logger.WithCtx(ctx).With("event", ev.ID, "type", ev.Type)

	key := "payment-event:" + ev.ID
	claimed, err := s.events.Claim(ctx, key, webhookEventTTL)
	if err != nil {
		// Settlement is idempotent; processing twice beats dropping.
		log.Warn("webhook dedupe unavailable", "error", err)
		claimed = true
	}
	if !claimed {
		log.Info("duplicate webhook event ignored")
		return nil
	}

	if err := s.applyEvent(ctx, ev); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			if rerr := s.events.Release(ctx, key); rerr != nil {
				log.Warn("release webhook event", "error", rerr)
			}
			return err
		}
		// The provider cannot fix a business outcome by retrying.
		log.Warn("webhook event not applied", "error", err)
	}
	return nil
}

func (s *PaymentService) applyEvent(ctx context.Context, ev *payment.Event) error {
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		if ev.Session == nil || !ev.Session.Paid() || ev.Session.Reference == "" {
			return nil
		}
		_, err := s.settle(ctx, ev.Session.Reference, ev.Session.PaymentIntentID, SourceWebhook)
		return err

	case payment.EventIntentSucceeded:
		if ev.Intent == nil {
			return nil
		}
		code, err := s.codeForIntent(ctx, ev.Intent)
		if err != nil || code == "" {
			return err
		}
		_, err = s.settle(ctx, code, ev.Intent.ID, SourceWebhook)
		return err

	case payment.EventIntentFailed:
		if ev.Intent == nil {
			return nil
		}
		code, err := s.codeForIntent(ctx, ev.Intent)
		if err != nil || code == "" {
			return err
		}
		failed := models.PaymentFailed
		_, err = s.orders.Update(ctx, code, repositories.OrderPatch{PaymentStatus: &failed}, models.StatusPending)
		if errors.Is(err, repositories.ErrStale) || errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return apperr.Internal("record payment failure", err)
		}
		logger.WithCtx(ctx).Info("payment failed", "order", code, "intent", ev.Intent.ID)
		return nil
	}
	return nil
}

// codeForIntent finds the order an intent pays for: its metadata first,
// then the stored intent id. An unknown intent yields "".
func (s *PaymentService) codeForIntent(ctx context.Context, in *payment.Intent) (string, error) {
	if code := in.Metadata["orderId"]; code != "" {
		return code, nil
	}
	order, err := s.orders.FindByPaymentIntent(ctx, in.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Internal("find order by intent", err)
	}
	return order.Code, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
