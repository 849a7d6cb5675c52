package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/payment"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
	"github.com/shashiranjanraj/vidorder/pkg/workerpool"
)

// ReconcileReport summarises one sweep.
type ReconcileReport struct {
	Checked int64 `json:"checked"`
	Settled int64 `json:"settled"`
	Errors  int64 `json:"errors"`
}

// Reconciler re-queries the provider for pending orders whose payment
// confirmation never arrived.
type Reconciler struct {
	payments *PaymentService
	minAge   time.Duration
	workers  int
	now      func() time.Time
}

func NewReconciler(payments *PaymentService, minAge time.Duration, workers int) *Reconciler {
	if workers <= 0 {
		workers = 4
	}
	return &Reconciler{payments: payments, minAge: minAge, workers: workers, now: utcNow}
}

// Reconcile sweeps pending orders older than the minimum age that carry a
// checkout session or payment intent, settling those the provider reports
// as paid.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := telemetry.Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	var report ReconcileReport

	pending, err := r.payments.orders.ListPending(ctx, r.now().Add(-r.minAge))
	if err != nil {
		return report, apperr.Internal("list pending orders", err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	var checked, settled, failed atomic.Int64
	pool := workerpool.New(r.workers)
	for i := range pending {
		o := pending[i]
		err := pool.SubmitWait(ctx, func() {
			checked.Add(1)
			ok, err := r.check(ctx, &o)
			switch {
			case err != nil:
				failed.Add(1)
				logger.WithCtx(ctx).Warn("reconcile order", "order", o.Code, "error", err)
			case ok:
				settled.Add(1)
			}
		})
		if err != nil {
			break
		}
	}
	pool.Shutdown()

	report = ReconcileReport{Checked: checked.Load(), Settled: settled.Load(), Errors: failed.Load()}
	logger.WithCtx(ctx).Info("reconcile sweep finished",
		"checked", report.Checked, "settled", report.Settled, "errors", report.Errors)
	return report, ctx.Err()
}

// check settles o when the provider reports it paid.
func (r *Reconciler) check(ctx context.Context, o *models.Order) (bool, error) {
	gw := r.payments.gateway

	if o.CheckoutSessionID != "" {
		session, err := gw.RetrieveSession(ctx, o.CheckoutSessionID)
		if err != nil {
			return false, err
		}
		if session.Paid() && session.Reference == o.Code {
			_, err := r.payments.settle(ctx, o.Code, session.PaymentIntentID, SourceReconcile)
			return err == nil, err
		}
	}

	if o.PaymentIntentID != "" {
		intent, err := gw.RetrieveIntent(ctx, o.PaymentIntentID)
		if err != nil {
			return false, err
		}
		if intent.Status == payment.IntentSucceeded {
			_, err := r.payments.settle(ctx, o.Code, intent.ID, SourceReconcile)
			return err == nil, err
		}
	}
	return false, nil
}
