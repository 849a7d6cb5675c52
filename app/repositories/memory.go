package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/vidorder/app/models"
)

// MemoryUserRepository keeps users in a map. Used by tests and
// DB_DRIVER=memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, taken := r.byEmail[email]; taken {
		return ErrDuplicate
	}
	if _, taken := r.byID[u.ID]; taken {
		return ErrDuplicate
	}

	u.Email = email
	r.byID[u.ID] = *u
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) FindByIDs(_ context.Context, ids []string) (map[string]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) Count(_ context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.byID {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// MemoryOrderRepository keeps orders in a map keyed by code.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]models.Order
	now    func() time.Time
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]models.Order), now: time.Now}
}

func (r *MemoryOrderRepository) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[o.Code]; taken {
		return ErrDuplicate
	}
	normalizeOrder(o)
	r.orders[o.Code] = cloneOrder(*o)
	return nil
}

func (r *MemoryOrderRepository) FindByCode(_ context.Context, code string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (r *MemoryOrderRepository) FindByPaymentIntent(_ context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.PaymentIntentID == intentID {
			out := cloneOrder(o)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOrderRepository) ListByOwner(_ context.Context, userID string) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.UserID == userID }, 0), nil
}

func (r *MemoryOrderRepository) ListAll(_ context.Context) ([]models.Order, error) {
	return r.filter(func(models.Order) bool { return true }, 0), nil
}

func (r *MemoryOrderRepository) ListPending(_ context.Context, olderThan time.Time) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool {
		return o.Status == models.StatusPending &&
			o.CreatedAt.Before(olderThan) &&
			o.PaymentStatus != models.PaymentGatewayFailed &&
			(o.PaymentIntentID != "" || o.CheckoutSessionID != "")
	}, 0), nil
}

func (r *MemoryOrderRepository) AppendUploads(_ context.Context, code string, assets []models.Asset) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[code]
	if !ok {
		return nil, ErrNotFound
	}
	o = cloneOrder(o)
	o.Uploads = append(o.Uploads, assets...)
	o.UpdatedAt = r.now()
	r.orders[code] = o

	out := cloneOrder(o)
	return &out, nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, code string, patch OrderPatch, expect ...models.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[code]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(o.Status, expect) {
		return nil, ErrStale
	}

	o = cloneOrder(o)
	applyPatch(&o, patch, r.now())
	r.orders[code] = o

	out := cloneOrder(o)
	return &out, nil
}

func (r *MemoryOrderRepository) CountByStatus(_ context.Context) (map[models.OrderStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.OrderStatus]int64)
	for _, o := range r.orders {
		if o.PaymentStatus == models.PaymentGatewayFailed {
			continue
		}
		out[o.Status]++
	}
	return out, nil
}

func (r *MemoryOrderRepository) Revenue(_ context.Context, since time.Time) (Revenue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rev Revenue
	for _, o := range r.orders {
		if o.PaymentStatus == models.PaymentGatewayFailed || o.CreatedAt.Before(since) {
			continue
		}
		rev.Sum += o.Total
		rev.Count++
	}
	return rev, nil
}

func (r *MemoryOrderRepository) Recent(_ context.Context, limit int) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool {
		return o.PaymentStatus != models.PaymentGatewayFailed
	}, limit), nil
}

// filter returns matching orders newest first, at most limit when limit > 0.
func (r *MemoryOrderRepository) filter(keep func(models.Order) bool, limit int) []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code > out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	o.Uploads = append([]models.Asset{}, o.Uploads...)
	if o.Processed != nil {
		p := *o.Processed
		o.Processed = &p
	}
	return o
}
