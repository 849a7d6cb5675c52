package services

import (
	"context"
	"encoding/base64"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vidorder/app/jobs"
	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/dedupe"
	"github.com/shashiranjanraj/vidorder/pkg/payment"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
	"github.com/shashiranjanraj/vidorder/pkg/storage"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job queue.Job) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) named(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, j := range d.jobs {
		if nj, ok := j.(queue.Named); ok && nj.JobName() == name {
			n++
		}
	}
	return n
}

type fixture struct {
	users      *repositories.MemoryUserRepository
	orderRepo  *repositories.MemoryOrderRepository
	gateway    *payment.Fake
	tokens     *auth.Tokens
	dispatched *recordingDispatcher

	auth       *AuthService
	orders     *OrderService
	payments   *PaymentService
	dashboard  *DashboardService
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	disk, err := storage.NewLocalDisk(t.TempDir(), "")
	require.NoError(t, err)

	f := &fixture{
		users:      repositories.NewMemoryUserRepository(),
		orderRepo:  repositories.NewMemoryOrderRepository(),
		gateway:    payment.NewFake("whsec_test"),
		tokens:     auth.NewTokens("test-secret", time.Hour),
		dispatched: &recordingDispatcher{},
	}
	f.auth = NewAuthService(f.users, f.tokens)
	f.orders = NewOrderService(f.orderRepo, f.users, f.gateway, disk, f.dispatched)
	f.payments = NewPaymentService(f.orderRepo, f.users, f.gateway, dedupe.NewMemoryStore(), f.dispatched, "http://shop.test")
	f.dashboard = NewDashboardService(f.orderRepo, f.users)
	f.reconciler = NewReconciler(f.payments, 10*time.Minute, 2)
	return f
}

func (f *fixture) register(t *testing.T, name, email string) auth.Identity {
	t.Helper()
	res, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "secret123"})
	require.NoError(t, err)
	return auth.Identity{ID: res.ID, Name: res.Name, Email: res.Email, Role: res.Role}
}

func (f *fixture) createOrder(t *testing.T, user auth.Identity, total float64) *models.Order {
	t.Helper()
	res, err := f.orders.CreateOrder(context.Background(), user, CreateOrderInput{PackageType: "flash", TotalAmount: total})
	require.NoError(t, err)
	return res.Order
}

var admin = auth.Identity{ID: "admin-1", Name: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// ── Auth ─────────────────────────────────────────────────────────────────────

func TestRegisterLoginAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.auth.Register(ctx, RegisterInput{Name: "Ann", Email: "  Ann@Example.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", reg.Email)
	assert.Equal(t, auth.RoleUser, reg.Role)
	assert.NotEmpty(t, reg.Token)

	login, err := f.auth.Login(ctx, LoginInput{Email: "ANN@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, reg.ID, login.ID)

	id, err := f.auth.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, id.ID)
	assert.Equal(t, "Ann", id.Name)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@example.com")

	_, err := f.auth.Register(context.Background(), RegisterInput{Name: "Other", Email: "ANN@example.com", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Email: "a@example.com", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.auth.Register(ctx, RegisterInput{Name: "A", Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@example.com")
	ctx := context.Background()

	_, unknown := f.auth.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret123"})
	_, wrong := f.auth.Login(ctx, LoginInput{Email: "ann@example.com", Password: "nope"})

	require.ErrorIs(t, unknown, apperr.ErrAuth)
	require.ErrorIs(t, wrong, apperr.ErrAuth)
	assert.Equal(t, apperr.PublicMessage(unknown), apperr.PublicMessage(wrong))
}

func TestAuthenticateFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrAuth)

	ghost, err := f.tokens.Generate("no-such-user", auth.RoleUser)
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, ghost)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	other := auth.NewTokens("other-secret", time.Hour)
	u := f.register(t, "Ann", "ann@example.com")
	forged, err := other.Generate(u.ID, auth.RoleAdmin)
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

// ── Orders ───────────────────────────────────────────────────────────────────

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "Ann", "ann@example.com")

	res, err := f.orders.CreateOrder(context.Background(), u, CreateOrderInput{
		PackageType: "flash",
		TotalAmount: 250,
		Items:       []ItemInput{},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, res.Order.Status)
	assert.Equal(t, models.PaymentRequiresPayment, res.Order.PaymentStatus)
	assert.Regexp(t, regexp.MustCompile(`^VO-\d{8}-[0-9A-F]{8}$`), res.Order.Code)
	assert.Equal(t, "usd", res.Order.Currency)
	assert.NotEmpty(t, res.PaymentIntent.ClientSecret)
	assert.Equal(t, res.Order.PaymentIntentID, res.PaymentIntent.ID)

	intent, err := f.gateway.RetrieveIntent(context.Background(), res.PaymentIntent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), intent.Amount)
	assert.Equal(t, res.Order.Code, intent.Metadata["orderId"])
	assert.Equal(t, u.ID, intent.Metadata["userId"])
}

func TestCreateOrderRejectsInvalidInputWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "Ann", "ann@example.com")
	ctx := context.Background()

	cases := []CreateOrderInput{
		{PackageType: "mega", TotalAmount: 10},
		{PackageType: "spark", TotalAmount: 0},
		{PackageType: "spark", TotalAmount: -5},
		{PackageType: "", TotalAmount: 5},
	}
	for _, in := range cases {
		_, err := f.orders.CreateOrder(ctx, u, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
	}

	assert.Zero(t, f.gateway.Calls("create_intent"))
	all, err := f.orderRepo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateOrderGatewayFailureCancelsDraft(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "Ann", "ann@example.com")
	ctx := context.Background()

	f.gateway.FailNext("Your card was declined.")
	_, err := f.orders.CreateOrder(ctx, u, CreateOrderInput{PackageType: "ultra", TotalAmount: 99})
	require.ErrorIs(t, err, apperr.ErrPayment)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Equal(t, "Your card was declined.", apperr.PublicMessage(err))

	mine, err := f.orders.ListOwnOrders(ctx, u)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusCancelled, mine[0].Status)
	assert.Equal(t, models.PaymentGatewayFailed, mine[0].PaymentStatus)

	summary, err := f.dashboard.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.OrderStats.Total)
}

func TestGetOrderAccess(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	other := f.register(t, "Bob", "bob@example.com")
	order := f.createOrder(t, owner, 10)
	ctx := context.Background()

	_, err := f.orders.GetOrder(ctx, order.Code, owner)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, order.Code, admin)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, order.Code, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.orders.GetOrder(ctx, "VO-00000000-NOPE", owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAllOrdersJoinsOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	f.createOrder(t, owner, 10)

	all, err := f.orders.ListAllOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Ann", all[0].Owner.Name)
	assert.Equal(t, "ann@example.com", all[0].Owner.Email)
}

func TestAttachUploads(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	other := f.register(t, "Bob", "bob@example.com")
	order := f.createOrder(t, owner, 10)
	ctx := context.Background()

	files := []FileInput{
		{Filename: "a.mp4", ContentType: "video/mp4", Data: b64("clip-a")},
		{Filename: "b.png", ContentType: "image/png", Data: "data:image/png;base64," + b64("img-b")},
	}

	_, err := f.orders.AttachUploads(ctx, order.Code, other, files)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.orders.AttachUploads(ctx, "VO-00000000-NOPE", owner, files)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.orders.AttachUploads(ctx, order.Code, owner, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.orders.AttachUploads(ctx, order.Code, owner, []FileInput{{Filename: "x", ContentType: "video/mp4", Data: "%%%"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.orders.AttachUploads(ctx, order.Code, owner, []FileInput{{Filename: "x", Data: b64("x")}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.orders.AttachUploads(ctx, order.Code, owner, files)
	require.NoError(t, err)
	require.Len(t, updated.Uploads, 2)
	assert.Equal(t, "a.mp4", updated.Uploads[0].Filename)
	assert.Equal(t, int64(len("clip-a")), updated.Uploads[0].Size)

	asset, rc, err := f.orders.OpenAsset(ctx, order.Code, updated.Uploads[1].ID, admin)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "img-b", string(data))
	assert.Equal(t, "image/png", asset.ContentType)

	_, _, err = f.orders.OpenAsset(ctx, order.Code, updated.Uploads[0].ID, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, _, err = f.orders.OpenAsset(ctx, order.Code, "missing", owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetStatusFollowsTransitionTable(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	order := f.createOrder(t, owner, 10)
	ctx := context.Background()

	_, err := f.orders.SetStatus(ctx, order.Code, "shipped")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.orders.SetStatus(ctx, "VO-00000000-NOPE", "processing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.orders.SetStatus(ctx, order.Code, "completed")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.orders.SetStatus(ctx, order.Code, "processing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	got, err = f.orders.SetStatus(ctx, order.Code, "processing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	got, err = f.orders.SetStatus(ctx, order.Code, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	_, err = f.orders.SetStatus(ctx, order.Code, "pending")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAttachProcessedAssetAlwaysCompletes(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	order := f.createOrder(t, owner, 10)
	ctx := context.Background()

	_, err := f.orders.SetStatus(ctx, order.Code, "cancelled")
	require.NoError(t, err)

	_, err = f.orders.AttachProcessedAsset(ctx, order.Code, FileInput{Filename: "final.mp4"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := f.orders.AttachProcessedAsset(ctx, order.Code, FileInput{
		Filename: "final.mp4", ContentType: "video/mp4", Data: b64("final-cut"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Processed)
	assert.Equal(t, "final.mp4", got.Processed.Filename)
	assert.Equal(t, 1, f.dispatched.named(jobs.VideoDeliveredName))

	_, rc, err := f.orders.OpenAsset(ctx, order.Code, got.Processed.ID, owner)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "final-cut", string(data))

	_, err = f.orders.AttachProcessedAsset(ctx, "VO-00000000-NOPE", FileInput{
		Filename: "final.mp4", ContentType: "video/mp4", Data: b64("x"),
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (f *fixture) checkout(t *testing.T, user auth.Identity, order *models.Order) string {
	t.Helper()
	res, err := f.payments.CreateCheckoutSession(context.Background(), user, CheckoutInput{
		OrderID: order.Code, Amount: order.Total, Currency: "usd",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.URL)
	return res.ID
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	other := f.register(t, "Bob", "bob@example.com")
	order := f.createOrder(t, owner, 25)
	ctx := context.Background()

	_, err := f.payments.CreateCheckoutSession(ctx, other, CheckoutInput{OrderID: order.Code, Amount: 25})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.payments.CreateCheckoutSession(ctx, owner, CheckoutInput{OrderID: order.Code, Amount: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.payments.CreateCheckoutSession(ctx, owner, CheckoutInput{OrderID: order.Code, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.payments.CreateCheckoutSession(ctx, owner, CheckoutInput{OrderID: "VO-00000000-NOPE", Amount: 25})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	id := f.checkout(t, owner, order)
	stored, err := f.orderRepo.FindByCode(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, id, stored.CheckoutSessionID)

	session, err := f.gateway.RetrieveSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.Code, session.Reference)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	order := f.createOrder(t, owner, 25)
	ctx := context.Background()
	sessionID := f.checkout(t, owner, order)

	_, err := f.payments.VerifyPayment(ctx, owner, sessionID, order.Code)
	assert.ErrorIs(t, err, apperr.ErrPayment, "unpaid session")
	assert.Equal(t, 400, apperr.Status(err))

	_, err = f.gateway.Pay(sessionID)
	require.NoError(t, err)

	res, err := f.payments.VerifyPayment(ctx, owner, sessionID, order.Code)
	require.NoError(t, err)
	assert.Equal(t, "paid", res.Status)
	assert.Equal(t, order.Code, res.OrderID)
	assert.Equal(t, "ann@example.com", res.CustomerEmail)
	assert.NotEmpty(t, res.PaymentIntentID)

	stored, err := f.orderRepo.FindByCode(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, res.PaymentIntentID, stored.PaymentIntentID)

	_, err = f.payments.VerifyPayment(ctx, owner, sessionID, order.Code)
	require.NoError(t, err, "verifying twice is idempotent")
	assert.Equal(t, 1, f.dispatched.named(jobs.PaymentReceivedName))
}

func TestVerifyPaymentReferenceMismatchLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	paidFor := f.createOrder(t, owner, 25)
	victim := f.createOrder(t, owner, 500)
	ctx := context.Background()

	sessionID := f.checkout(t, owner, paidFor)
	_, err := f.gateway.Pay(sessionID)
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(ctx, owner, sessionID, victim.Code)
	require.ErrorIs(t, err, apperr.ErrPayment)

	stored, err := f.orderRepo.FindByCode(ctx, victim.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, models.PaymentRequiresPayment, stored.PaymentStatus)
}

func TestHandleWebhookSettlesOnce(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	order := f.createOrder(t, owner, 25)
	ctx := context.Background()

	payload := f.gateway.EncodeEvent(payment.Event{
		ID:   "evt_1",
		Type: payment.EventCheckoutCompleted,
		Session: &payment.Session{
			ID: "cs_1", PaymentStatus: payment.SessionPaid, Reference: order.Code, PaymentIntentID: "pi_hook",
		},
	})

	require.NoError(t, f.payments.HandleWebhook(ctx, payload, f.gateway.Sign(payload)))
	require.NoError(t, f.payments.HandleWebhook(ctx, payload, f.gateway.Sign(payload)))

	stored, err := f.orderRepo.FindByCode(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, "pi_hook", stored.PaymentIntentID)
	assert.Equal(t, 1, f.dispatched.named(jobs.PaymentReceivedName))

	err = f.payments.HandleWebhook(ctx, payload, "forged")
	assert.ErrorIs(t, err, apperr.ErrPayment)
}

func TestHandleWebhookIntentEvents(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	failed := f.createOrder(t, owner, 25)
	paid := f.createOrder(t, owner, 30)
	ctx := context.Background()

	send := func(ev payment.Event) {
		payload := f.gateway.EncodeEvent(ev)
		require.NoError(t, f.payments.HandleWebhook(ctx, payload, f.gateway.Sign(payload)))
	}

	send(payment.Event{ID: "evt_f", Type: payment.EventIntentFailed, Intent: &payment.Intent{ID: failed.PaymentIntentID}})
	send(payment.Event{ID: "evt_p", Type: payment.EventIntentSucceeded, Intent: &payment.Intent{
		ID: paid.PaymentIntentID, Metadata: map[string]string{"orderId": paid.Code},
	}})
	send(payment.Event{ID: "evt_x", Type: "customer.created"})
	send(payment.Event{ID: "evt_u", Type: payment.EventIntentSucceeded, Intent: &payment.Intent{ID: "pi_unknown"}})

	got, err := f.orderRepo.FindByCode(ctx, failed.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)

	got, err = f.orderRepo.FindByCode(ctx, paid.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestReconcileSettlesPaidOrders(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "Ann", "ann@example.com")
	viaIntent := f.createOrder(t, owner, 10)
	viaSession := f.createOrder(t, owner, 20)
	unpaid := f.createOrder(t, owner, 30)
	ctx := context.Background()

	require.NoError(t, f.gateway.Succeed(viaIntent.PaymentIntentID))
	sessionID := f.checkout(t, owner, viaSession)
	_, err := f.gateway.Pay(sessionID)
	require.NoError(t, err)

	report, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked, "orders younger than the minimum age are skipped")

	f.reconciler.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	report, err = f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Checked)
	assert.Equal(t, int64(2), report.Settled)
	assert.Zero(t, report.Errors)

	for code, want := range map[string]models.OrderStatus{
		viaIntent.Code:  models.StatusProcessing,
		viaSession.Code: models.StatusProcessing,
		unpaid.Code:     models.StatusPending,
	} {
		got, err := f.orderRepo.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, code)
	}
}

// ── Dashboard ────────────────────────────────────────────────────────────────

func TestDashboardSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.dashboard.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.RevenueStats.AverageOrderValue)
	assert.NotNil(t, empty.RecentOrders)

	owner := f.register(t, "Ann", "ann@example.com")
	f.createOrder(t, owner, 100)
	processing := f.createOrder(t, owner, 200)
	completed := f.createOrder(t, owner, 300)

	_, err = f.orders.SetStatus(ctx, processing.Code, "processing")
	require.NoError(t, err)
	_, err = f.orders.SetStatus(ctx, completed.Code, "processing")
	require.NoError(t, err)
	_, err = f.orders.SetStatus(ctx, completed.Code, "completed")
	require.NoError(t, err)

	s, err := f.dashboard.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, OrderStats{Total: 3, Pending: 1, Processing: 1, Completed: 1}, s.OrderStats)
	assert.InDelta(t, 600, s.RevenueStats.TotalRevenue, 0.001)
	assert.InDelta(t, 600, s.RevenueStats.MonthlyRevenue, 0.001)
	assert.InDelta(t, 200, s.RevenueStats.AverageOrderValue, 0.001)
	assert.Equal(t, UserStats{Total: 1, NewUsers: 1}, s.UserStats)
	require.Len(t, s.RecentOrders, 3)
	assert.Equal(t, "Ann", s.RecentOrders[0].Owner.Name)
}

func TestNewOrderCode(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	code := NewOrderCode(now)
	assert.Regexp(t, `^VO-20240309-[0-9A-F]{8}$`, code)
	assert.NotEqual(t, code, NewOrderCode(now))
	assert.Equal(t, int64(1999), MinorUnits(19.99))
}

func TestCreateOrderConcurrentCodesAreDistinct(t *testing.T) {
	f := newFixture(t)
	ann := f.register(t, "Ann", "ann@example.com")

	const n = 200
	codes := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := f.orders.CreateOrder(context.Background(), ann, CreateOrderInput{PackageType: "spark", TotalAmount: 10})
			errs[i] = err
			if err == nil {
				codes[i] = res.Order.Code
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[codes[i]], "duplicate code %s", codes[i])
		seen[codes[i]] = true
	}
	assert.Len(t, seen, n)
}

func TestSetStatusConcurrentConflict(t *testing.T) {
	f := newFixture(t)
	ann := f.register(t, "Ann", "ann@example.com")
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		order := f.createOrder(t, ann, 50)
		_, err := f.orders.SetStatus(ctx, order.Code, "processing")
		require.NoError(t, err)

		// Neither target can follow the other, so exactly one may win.
		targets := []string{"completed", "cancelled"}
		errs := make([]error, len(targets))
		start := make(chan struct{})

		var wg sync.WaitGroup
		wg.Add(len(targets))
		for i, target := range targets {
			go func(i int, target string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.orders.SetStatus(ctx, order.Code, target)
			}(i, target)
		}
		close(start)
		wg.Wait()

		var won int
		var winner models.OrderStatus
		for i, err := range errs {
			if err == nil {
				won++
				winner = models.OrderStatus(targets[i])
				continue
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
		require.Equal(t, 1, won, "errors: %v", errs)

		final, err := f.orderRepo.FindByCode(ctx, order.Code)
		require.NoError(t, err)
		assert.Equal(t, winner, final.Status)
	}
}
