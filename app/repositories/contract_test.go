package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vidorder/app/models"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newUser(email string, created time.Time) *models.User {
	return &models.User{
		ID:        uuid.NewString(),
		Name:      "User " + email,
		Email:     email,
		Password:  "hash",
		Role:      "user",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newOrder(code, userID string, status models.OrderStatus, total float64, created time.Time) *models.Order {
	return &models.Order{
		ID:              uuid.NewString(),
		Code:            code,
		UserID:          userID,
		PackageType:     models.PackageFlash,
		Total:           total,
		Currency:        "usd",
		Status:          status,
		PaymentStatus:   models.PaymentRequiresPayment,
		PaymentIntentID: "pi_" + code,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func runUserContract(t *testing.T, repo UserRepository) {
	ctx := context.Background()

	alice := newUser("Alice@Example.com ", base.Add(-40*24*time.Hour))
	require.NoError(t, repo.Create(ctx, alice))
	assert.Equal(t, "alice@example.com", alice.Email)

	err := repo.Create(ctx, newUser("alice@example.com", base))
	assert.ErrorIs(t, err, ErrDuplicate)

	bob := newUser("bob@example.com", base)
	require.NoError(t, repo.Create(ctx, bob))

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)
	assert.Equal(t, "hash", found.Password)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	byID, err := repo.FindByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", byID.Email)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	many, err := repo.FindByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
	assert.Equal(t, bob.Name, many[bob.ID].Name)

	all, err := repo.Count(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all)

	recent, err := repo.Count(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent)
}

func runOrderContract(t *testing.T, repo OrderRepository) {
	ctx := context.Background()

	older := newOrder("VO-20250301-aaaaaaaa", "u1", models.StatusPending, 100, base.Add(-2*time.Hour))
	newer := newOrder("VO-20250310-bbbbbbbb", "u1", models.StatusProcessing, 200, base)
	other := newOrder("VO-20250305-cccccccc", "u2", models.StatusCompleted, 300, base.Add(-time.Hour))
	failed := newOrder("VO-20250305-dddddddd", "u2", models.StatusCancelled, 999, base.Add(-3*time.Hour))
	failed.PaymentStatus = models.PaymentGatewayFailed
	failed.PaymentIntentID = ""

	for _, o := range []*models.Order{older, newer, other, failed} {
		require.NoError(t, repo.Create(ctx, o))
	}
	assert.ErrorIs(t, repo.Create(ctx, newOrder(older.Code, "u9", models.StatusPending, 1, base)), ErrDuplicate)

	got, err := repo.FindByCode(ctx, older.Code)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Total)
	assert.NotNil(t, got.Uploads)

	_, err = repo.FindByCode(ctx, "VO-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	byIntent, err := repo.FindByPaymentIntent(ctx, "pi_"+newer.Code)
	require.NoError(t, err)
	assert.Equal(t, newer.Code, byIntent.Code)

	mine, err := repo.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.Code, mine[0].Code, "newest first")

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending, err := repo.ListPending(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, older.Code, pending[0].Code)

	asset := models.Asset{ID: "a1", Filename: "clip.mp4", ContentType: "video/mp4", Size: 5, UploadedAt: base}
	withUploads, err := repo.AppendUploads(ctx, older.Code, []models.Asset{asset, {ID: "a2", Filename: "b.png", ContentType: "image/png"}})
	require.NoError(t, err)
	assert.Len(t, withUploads.Uploads, 2)

	_, err = repo.AppendUploads(ctx, "VO-missing", []models.Asset{asset})
	assert.ErrorIs(t, err, ErrNotFound)

	processing := models.StatusProcessing
	paid := models.PaymentPaid
	intent := "pi_settled"
	settled, err := repo.Update(ctx, older.Code, OrderPatch{Status: &processing, PaymentStatus: &paid, PaymentIntentID: &intent}, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, settled.Status)
	assert.Equal(t, "pi_settled", settled.PaymentIntentID)
	assert.Len(t, settled.Uploads, 2, "uploads survive a patch")

	_, err = repo.Update(ctx, older.Code, OrderPatch{Status: &processing}, models.StatusPending)
	assert.ErrorIs(t, err, ErrStale)

	_, err = repo.Update(ctx, "VO-missing", OrderPatch{Status: &processing})
	assert.ErrorIs(t, err, ErrNotFound)

	completed := models.StatusCompleted
	delivered, err := repo.Update(ctx, older.Code, OrderPatch{Status: &completed, Processed: &asset})
	require.NoError(t, err)
	require.NotNil(t, delivered.Processed)
	assert.Equal(t, "clip.mp4", delivered.Processed.Filename)

	reloaded, err := repo.FindByCode(ctx, older.Code)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Processed)
	assert.Equal(t, models.StatusCompleted, reloaded.Status)
	assert.Len(t, reloaded.Uploads, 2)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusCompleted])
	assert.Equal(t, int64(1), counts[models.StatusProcessing])
	assert.Zero(t, counts[models.StatusCancelled], "failed drafts are not counted")

	rev, err := repo.Revenue(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 600.0, rev.Sum)
	assert.Equal(t, int64(3), rev.Count)

	monthly, err := repo.Revenue(ctx, base.Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 500.0, monthly.Sum)

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.Code, recent[0].Code)
	assert.Equal(t, other.Code, recent[1].Code)
}

// runConcurrentUpdateContract races conditional updates from one expected
// status; only the first may apply.
func runConcurrentUpdateContract(t *testing.T, repo OrderRepository) {
	ctx := context.Background()

	o := newOrder("VO-20250310-RACE0001", uuid.NewString(), models.StatusPending, 40, base)
	require.NoError(t, repo.Create(ctx, o))

	targets := []models.OrderStatus{models.StatusProcessing, models.StatusCancelled}
	const perTarget = 4
	var (
		mu      sync.Mutex
		applied []models.OrderStatus
		stale   int
	)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < perTarget; i++ {
		for _, target := range targets {
			wg.Add(1)
			go func(target models.OrderStatus) {
				defer wg.Done()
				<-start
				_, err := repo.Update(ctx, o.Code, OrderPatch{Status: &target}, models.StatusPending)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					applied = append(applied, target)
				case errors.Is(err, ErrStale):
					stale++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(target)
		}
	}
	close(start)
	wg.Wait()

	require.Len(t, applied, 1)
	assert.Equal(t, perTarget*len(targets)-1, stale)

	final, err := repo.FindByCode(ctx, o.Code)
	require.NoError(t, err)
	assert.Equal(t, applied[0], final.Status)
}

func TestMemoryRepositories(t *testing.T) {
	runUserContract(t, NewMemoryUserRepository())
	runOrderContract(t, NewMemoryOrderRepository())
	runConcurrentUpdateContract(t, NewMemoryOrderRepository())
}
