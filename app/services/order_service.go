package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/vidorder/app/jobs"
	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/bind"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/metrics"
	"github.com/shashiranjanraj/vidorder/pkg/payment"
	"github.com/shashiranjanraj/vidorder/pkg/storage"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
)

// ItemInput is one order line.
type ItemInput struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"min=1"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// CreateOrderInput is the order placement payload.
type CreateOrderInput struct {
	PackageType string      `json:"packageType" validate:"required"`
	TotalAmount float64     `json:"totalAmount" validate:"gt=0"`
	Items       []ItemInput `json:"items" validate:"dive"`
	Currency    string      `json:"currency" validate:"omitempty,len=3,alpha"`
	Description string      `json:"description" validate:"max=5000"`
}

// FileInput is a base64 file. Data may be a data URL.
type FileInput struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=255"`
	Data        string `json:"data" validate:"required"`
}

// PaymentIntentRef is what the client needs to confirm a card payment.
type PaymentIntentRef struct {
	ClientSecret string `json:"clientSecret"`
	ID           string `json:"id"`
}

type CreateOrderResult struct {
	Order         *models.Order    `json:"order"`
	PaymentIntent PaymentIntentRef `json:"paymentIntent"`
}

type OrderService struct {
	orders  repositories.OrderRepository
	users   repositories.UserRepository
	gateway payment.Gateway
	disk    storage.Disk
	jobs    Dispatcher
	now     func() time.Time
}

func NewOrderService(orders repositories.OrderRepository, users repositories.UserRepository,
	gateway payment.Gateway, disk storage.Disk, jobs Dispatcher) *OrderService {
	return &OrderService{orders: orders, users: users, gateway: gateway, disk: disk, jobs: jobs, now: utcNow}
}

// NewOrderCode returns VO-YYYYMMDD-XXXXXXXX with 8 random hex characters.
func NewOrderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "VO-" + now.UTC().Format("20060102") + "-" + suffix
}

// MinorUnits converts a major-unit amount to integer cents.
func MinorUnits(total float64) int64 { return int64(math.Round(total * 100)) }

// CreateOrder stores a draft order and then requests a payment intent for
// it. A failed gateway call leaves the draft cancelled.
func (s *OrderService) CreateOrder(ctx context.Context, user auth.Identity, in CreateOrderInput) (*CreateOrderResult, error) {
	ctx, span := telemetry.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := bind.Struct(in); err != nil {
		return nil, err
	}
	pkg := models.PackageType(strings.ToLower(strings.TrimSpace(in.PackageType)))
	if !pkg.Valid() {
		return nil, apperr.ValidationFields("Invalid package type",
			map[string]string{"packageType": "must be one of spark, flash, ultra"})
	}
	if math.IsInf(in.TotalAmount, 0) || MinorUnits(in.TotalAmount) <= 0 {
		return nil, apperr.ValidationFields("Invalid total amount",
			map[string]string{"totalAmount": "must be greater than 0"})
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, models.OrderItem{Name: strings.TrimSpace(it.Name), Quantity: it.Quantity, Price: it.Price})
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		PackageType:   pkg,
		Description:   strings.TrimSpace(in.Description),
		Items:         items,
		Total:         in.TotalAmount,
		Currency:      payment.NormalizeCurrency(in.Currency),
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentDraft,
		Uploads:       []models.Asset{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.insertWithFreshCode(ctx, order); err != nil {
		return nil, err
	}

	log := logger.WithCtx(ctx).With("order", order.Code)

	intent, err := s.gateway.CreateIntent(ctx, MinorUnits(order.Total), order.Currency, map[string]string{
		"userId":      user.ID,
		"packageType": string(pkg),
		"orderId":     order.Code,
	})
	if err != nil {
		s.markGatewayFailed(ctx, order.Code)
		log.Warn("payment intent failed", "error", err)
		if _, ok := apperr.As(err); !ok {
			err = apperr.Gateway("Payment provider unavailable", err)
		}
		return nil, err
	}

	reqPay := models.PaymentRequiresPayment
	updated, err := s.orders.Update(ctx, order.Code, repositories.OrderPatch{
		PaymentIntentID: &intent.ID,
		PaymentStatus:   &reqPay,
	})
	if err != nil {
		return nil, apperr.Internal("record payment intent", err)
	}

	metrics.OrdersCreated.WithLabelValues(string(pkg)).Inc()
	log.Info("order created", "package", pkg, "total", order.Total)

	return &CreateOrderResult{
		Order:         updated,
		PaymentIntent: PaymentIntentRef{ClientSecret: intent.ClientSecret, ID: intent.ID},
	}, nil
}

// insertWithFreshCode assigns a code, drawing a new one on collision.
func (s *OrderService) insertWithFreshCode(ctx context.Context, order *models.Order) error {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		order.Code = NewOrderCode(order.CreatedAt)
		err := s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return apperr.Internal("create order", err)
		}
	}
	return apperr.Internal("create order", fmt.Errorf("no free order code after %d attempts", attempts))
}

func (s *OrderService) markGatewayFailed(ctx context.Context, code string) {
	cancelled := models.StatusCancelled
	failed := models.PaymentGatewayFailed
	_, err := s.orders.Update(ctx, code, repositories.OrderPatch{
		Status:        &cancelled,
		PaymentStatus: &failed,
	}, models.StatusPending)
	if err != nil {
		logger.WithCtx(ctx).Error("mark draft gateway_failed", "order", code, "error", err)
	}
}

// AttachUploads stores customer source files and appends them to the order.
func (s *OrderService) AttachUploads(ctx context.Context, code string, user auth.Identity, files []FileInput) (*models.Order, error) {
	ctx, span := telemetry.Start(ctx, "OrderService.AttachUploads")
	defer span.End()

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}
	if !order.OwnedBy(user.ID) {
		return nil, apperr.Forbidden("Not authorized to upload files to this order")
	}
	if len(files) == 0 {
		return nil, apperr.Validation("No files uploaded")
	}

	decoded := make([][]byte, len(files))
	for i, f := range files {
		if err := bind.Struct(f); err != nil {
			return nil, apperr.ValidationFields("Invalid file", map[string]string{
				fmt.Sprintf("files[%d]", i): "filename, contentType and data are required",
			})
		}
		data, err := decodeFileData(f.Data)
		if err != nil {
			return nil, apperr.ValidationFields("Invalid file", map[string]string{
				fmt.Sprintf("files[%d].data", i): "must be base64 encoded",
			})
		}
		decoded[i] = data
	}

	assets := make([]models.Asset, 0, len(files))
	for i, f := range files {
		asset, err := s.store(ctx, code, f, decoded[i])
		if err != nil {
			s.discard(ctx, code, assets)
			return nil, err
		}
		assets = append(assets, asset)
	}

	updated, err := s.orders.AppendUploads(ctx, code, assets)
	if err != nil {
		s.discard(ctx, code, assets)
		return nil, storeError(err, "Order not found")
	}

	logger.WithCtx(ctx).Info("uploads attached", "order", code, "count", len(assets))
	return updated, nil
}

func (s *OrderService) store(ctx context.Context, code string, f FileInput, data []byte) (models.Asset, error) {
	asset := models.Asset{
		ID:          uuid.NewString(),
		Filename:    strings.TrimSpace(f.Filename),
		ContentType: strings.TrimSpace(f.ContentType),
		Size:        int64(len(data)),
		UploadedAt:  s.now(),
	}
	asset.URL = assetURL(code, asset.ID)

	key := models.AssetKey(code, asset.ID)
	if err := s.disk.Put(ctx, key, bytes.NewReader(data), asset.Size, asset.ContentType); err != nil {
		return models.Asset{}, apperr.Internal("store asset", err)
	}
	return asset, nil
}

// discard removes blobs whose metadata never made it onto the order.
func (s *OrderService) discard(ctx context.Context, code string, assets []models.Asset) {
	for _, a := range assets {
		if err := s.disk.Delete(ctx, models.AssetKey(code, a.ID)); err != nil {
			logger.WithCtx(ctx).Warn("discard orphan asset", "order", code, "asset", a.ID, "error", err)
		}
	}
}

func assetURL(code, assetID string) string {
	return "/api/orders/" + code + "/assets/" + assetID
}

// decodeFileData accepts plain base64 or a data URL.
func decodeFileData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		_, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		data = payload
	}
	if data == "" {
		return nil, errors.New("empty data")
	}

	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		out, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	return out, err
}

// GetOrder returns an order visible to user.
func (s *OrderService) GetOrder(ctx context.Context, code string, user auth.Identity) (*models.Order, error) {
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}
	if !order.OwnedBy(user.ID) && !user.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to view this order")
	}
	return order, nil
}

func (s *OrderService) ListOwnOrders(ctx context.Context, user auth.Identity) ([]models.Order, error) {
	orders, err := s.orders.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("list orders", err)
	}
	return orders, nil
}

// ListAllOrders returns every order, newest first, with owner details.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.OrderWithOwner, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal("list orders", err)
	}
	return withOwners(ctx, s.users, orders)
}

func withOwners(ctx context.Context, users repositories.UserRepository, orders []models.Order) ([]models.OrderWithOwner, error) {
	ids := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}

	owners, err := users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("load order owners", err)
	}

	out := make([]models.OrderWithOwner, len(orders))
	for i, o := range orders {
		out[i] = models.OrderWithOwner{Order: o}
		if u, ok := owners[o.UserID]; ok {
			out[i].Owner = models.Owner{ID: u.ID, Name: u.Name, Email: u.Email}
		}
	}
	return out, nil
}

// SetStatus moves an order along the status table.
func (s *OrderService) SetStatus(ctx context.Context, code, status string) (*models.Order, error) {
	next := models.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, apperr.ValidationFields("Invalid status",
			map[string]string{"status": "must be one of pending, processing, completed, cancelled"})
	}

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}
	if order.Status == next {
		return order, nil
	}
	if !order.Status.CanTransition(next) {
		return nil, apperr.Conflict(fmt.Sprintf("Cannot change order status from %s to %s", order.Status, next))
	}

	updated, err := s.orders.Update(ctx, code, repositories.OrderPatch{Status: &next}, order.Status)
	if errors.Is(err, repositories.ErrStale) {
		return nil, apperr.Conflict("Order status changed concurrently, reload and retry")
	}
	if err != nil {
		return nil, storeError(err, "Order not found")
	}

	logger.WithCtx(ctx).Info("order status changed", "order", code, "from", order.Status, "to", next)
	return updated, nil
}

// AttachProcessedAsset stores the delivered video and completes the order
// whatever its current status.
func (s *OrderService) AttachProcessedAsset(ctx context.Context, code string, in FileInput) (*models.Order, error) {
	if err := bind.Struct(in); err != nil {
		return nil, err
	}
	data, err := decodeFileData(in.Data)
	if err != nil {
		return nil, apperr.ValidationFields("Invalid file", map[string]string{"data": "must be base64 encoded"})
	}

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return nil, storeError(err, "Order not found")
	}

	asset, err := s.store(ctx, code, in, data)
	if err != nil {
		return nil, err
	}

	completed := models.StatusCompleted
	updated, err := s.orders.Update(ctx, code, repositories.OrderPatch{
		Status:    &completed,
		Processed: &asset,
	})
	if err != nil {
		s.discard(ctx, code, []models.Asset{asset})
		return nil, storeError(err, "Order not found")
	}

	if order.Processed != nil {
		s.discard(ctx, code, []models.Asset{*order.Processed})
	}

	logger.WithCtx(ctx).Info("processed video attached", "order", code, "previous_status", order.Status)

	if owner, err := s.users.FindByID(ctx, order.UserID); err == nil {
		dispatch(ctx, s.jobs, &jobs.VideoDelivered{
			OrderCode:   code,
			Email:       owner.Email,
			Name:        owner.Name,
			DownloadURL: asset.URL,
		})
	}
	return updated, nil
}

// OpenAsset streams an upload or the processed asset. Caller closes the
// reader.
func (s *OrderService) OpenAsset(ctx context.Context, code, assetID string, user auth.Identity) (*models.Asset, io.ReadCloser, error) {
	order, err := s.GetOrder(ctx, code, user)
	if err != nil {
		return nil, nil, err
	}

	var asset *models.Asset
	if order.Processed != nil && order.Processed.ID == assetID {
		asset = order.Processed
	}
	for i := range order.Uploads {
		if order.Uploads[i].ID == assetID {
			asset = &order.Uploads[i]
		}
	}
	if asset == nil {
		return nil, nil, apperr.NotFound("Asset not found")
	}

	rc, err := s.disk.Open(ctx, models.AssetKey(code, asset.ID))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil, apperr.NotFound("Asset not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal("open asset", err)
	}
	return asset, rc, nil
}
