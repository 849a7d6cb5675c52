package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/vidorder/app/models"
)

// isDuplicate recognises unique violations from every supported dialect,
// with or without gorm's error translation.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	default:
		return err
	}
}

type SQLUserRepository struct {
	db *gorm.DB
}

func NewSQLUserRepository(db *gorm.DB) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

func (r *SQLUserRepository) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r *SQLUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *SQLUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *SQLUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Omit("password").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *SQLUserRepository) Count(ctx context.Context, since time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

type SQLOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQLOrderRepository(db *gorm.DB) *SQLOrderRepository {
	return &SQLOrderRepository{db: db, now: time.Now}
}

func (r *SQLOrderRepository) Create(ctx context.Context, o *models.Order) error {
	normalizeOrder(o)
	return translate(r.db.WithContext(ctx).Create(o).Error)
}

func (r *SQLOrderRepository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *SQLOrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	var o models.Order
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *SQLOrderRepository) newestFirst(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Order("created_at DESC").Order("code DESC")
}

func (r *SQLOrderRepository) ListByOwner(ctx context.Context, userID string) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := r.newestFirst(ctx).Where("user_id = ?", userID).Find(&orders).Error
	return orders, err
}

func (r *SQLOrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := r.newestFirst(ctx).Find(&orders).Error
	return orders, err
}

func (r *SQLOrderRepository) ListPending(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := r.newestFirst(ctx).
		Where("status = ? AND created_at < ? AND payment_status <> ?",
			models.StatusPending, olderThan, models.PaymentGatewayFailed).
		Where("payment_intent_id <> '' OR checkout_session_id <> ''").
		Find(&orders).Error
	return orders, err
}

func (r *SQLOrderRepository) Recent(ctx context.Context, limit int) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := r.newestFirst(ctx).
		Where("payment_status <> ?", models.PaymentGatewayFailed).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// locked reads the order row for update. SQLite has no row locks; its
// single-connection pool serialises writers instead.
func (r *SQLOrderRepository) locked(tx *gorm.DB, code string) (*models.Order, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var o models.Order
	if err := q.Where("code = ?", code).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *SQLOrderRepository) AppendUploads(ctx context.Context, code string, assets []models.Asset) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := r.locked(tx, code)
		if err != nil {
			return err
		}

		o.Uploads = append(o.Uploads, assets...)
		o.UpdatedAt = r.now()
		if err := tx.Model(o).Select("uploads", "updated_at").Updates(o).Error; err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (r *SQLOrderRepository) Update(ctx context.Context, code string, patch OrderPatch, expect ...models.OrderStatus) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := r.locked(tx, code)
		if err != nil {
			return err
		}
		if !statusIn(o.Status, expect) {
			return ErrStale
		}

		applyPatch(o, patch, r.now())
		err = tx.Model(o).
			Select("status", "payment_status", "payment_intent_id", "checkout_session_id", "processed", "updated_at").
			Updates(o).Error
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (r *SQLOrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Where("payment_status <> ?", models.PaymentGatewayFailed).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *SQLOrderRepository) Revenue(ctx context.Context, since time.Time) (Revenue, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0) AS sum, COUNT(*) AS count").
		Where("payment_status <> ?", models.PaymentGatewayFailed)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}

	var rev Revenue
	err := q.Scan(&rev).Error
	return rev, err
}
