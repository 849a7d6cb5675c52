// Package repositories persists users and orders. Each store has a MongoDB,
// a gorm (SQL) and an in-memory implementation behind the same interface.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/shashiranjanraj/vidorder/app/models"
)

var (
	ErrNotFound  = errors.New("repositories: not found")
	ErrDuplicate = errors.New("repositories: duplicate key")
	// ErrStale means the order exists but was not in one of the expected
	// statuses when a conditional update ran.
	ErrStale = errors.New("repositories: order status changed")
)

// UserRepository stores accounts. Emails are stored lower-cased.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	// Count returns users created at or after since; a zero since counts all.
	Count(ctx context.Context, since time.Time) (int64, error)
}

// OrderPatch lists the order fields an update may overwrite. Nil fields
// are left alone.
type OrderPatch struct {
	Status            *models.OrderStatus
	PaymentStatus     *string
	PaymentIntentID   *string
	CheckoutSessionID *string
	Processed         *models.Asset
}

// Revenue is a sum of order totals and how many orders it covers.
type Revenue struct {
	Sum   float64
	Count int64
}

// OrderRepository stores orders keyed by their public code.
//
// Aggregates (CountByStatus, Revenue, Recent) skip drafts whose gateway call
// failed; those never became payable orders.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	FindByCode(ctx context.Context, code string) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListByOwner(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	// ListPending returns pending orders created before olderThan that carry
	// a gateway reference.
	ListPending(ctx context.Context, olderThan time.Time) ([]models.Order, error)
	// AppendUploads adds assets to the order's upload list in one update.
	AppendUploads(ctx context.Context, code string, assets []models.Asset) (*models.Order, error)
	// Update applies patch. When expect is non-empty the update only
	// happens while the current status is one of expect; otherwise it
	// returns ErrStale.
	Update(ctx context.Context, code string, patch OrderPatch, expect ...models.OrderStatus) (*models.Order, error)
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
	Revenue(ctx context.Context, since time.Time) (Revenue, error)
	Recent(ctx context.Context, limit int) ([]models.Order, error)
}

func normalizeOrder(o *models.Order) {
	if o.Items == nil {
		o.Items = []models.OrderItem{}
	}
	if o.Uploads == nil {
		o.Uploads = []models.Asset{}
	}
}

func applyPatch(o *models.Order, p OrderPatch, now time.Time) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentIntentID != nil {
		o.PaymentIntentID = *p.PaymentIntentID
	}
	if p.CheckoutSessionID != nil {
		o.CheckoutSessionID = *p.CheckoutSessionID
	}
	if p.Processed != nil {
		asset := *p.Processed
		o.Processed = &asset
	}
	o.UpdatedAt = now
}

func statusIn(s models.OrderStatus, expect []models.OrderStatus) bool {
	if len(expect) == 0 {
		return true
	}
	for _, e := range expect {
		if s == e {
			return true
		}
	}
	return false
}
