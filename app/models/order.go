package models

import (
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusProcessing},
	StatusCancelled:  {StatusPending},
}

// CanTransition reports whether an admin may move an order from s to next.
// Staying in the same state is always allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PackageType is the product tier an order is placed for.
type PackageType string

const (
	PackageSpark PackageType = "spark"
	PackageFlash PackageType = "flash"
	PackageUltra PackageType = "ultra"
)

func (p PackageType) Valid() bool {
	switch p {
	case PackageSpark, PackageFlash, PackageUltra:
		return true
	}
	return false
}

// Payment status values written by this service. Provider-reported values
// may appear too.
const (
	PaymentDraft           = "draft"
	PaymentRequiresPayment = "requires_payment"
	PaymentGatewayFailed   = "gateway_failed"
	PaymentPaid            = "paid"
	PaymentFailed          = "payment_failed"
)

// OrderItem is one line of an order. Upsell add-ons travel as items too.
type OrderItem struct {
	Name     string  `bson:"name" json:"name"`
	Quantity int     `bson:"quantity" json:"quantity"`
	Price    float64 `bson:"price" json:"price"`
}

// Asset is a file attached to an order. The bytes live in blob storage
// under AssetKey(order code, asset id); the order only carries metadata.
type Asset struct {
	ID          string    `bson:"id" json:"id"`
	Filename    string    `bson:"filename" json:"filename"`
	ContentType string    `bson:"contentType" json:"contentType"`
	Size        int64     `bson:"size" json:"size"`
	URL         string    `bson:"url" json:"url"`
	UploadedAt  time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// AssetKey is the blob storage key of an order's asset.
func AssetKey(code, assetID string) string {
	return "orders/" + code + "/" + assetID
}

// Order is a customer's video order.
type Order struct {
	ID                string      `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	Code              string      `gorm:"uniqueIndex;size:32;not null" bson:"orderId" json:"orderId"`
	UserID            string      `gorm:"index;size:36;not null" bson:"user" json:"user"`
	PackageType       PackageType `gorm:"size:20;not null" bson:"packageType" json:"packageType"`
	Description       string      `gorm:"type:text" bson:"description" json:"description"`
	Items             []OrderItem `gorm:"serializer:json" bson:"items" json:"items"`
	Total             float64     `gorm:"not null" bson:"totalAmount" json:"totalAmount"`
	Currency          string      `gorm:"size:3;not null" bson:"currency" json:"currency"`
	Status            OrderStatus `gorm:"index;size:20;not null" bson:"status" json:"status"`
	PaymentStatus     string      `gorm:"size:40" bson:"paymentStatus" json:"paymentStatus"`
	PaymentIntentID   string      `gorm:"index;size:255" bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	CheckoutSessionID string      `gorm:"index;size:255" bson:"checkoutSessionId,omitempty" json:"checkoutSessionId,omitempty"`
	Uploads           []Asset     `gorm:"serializer:json" bson:"uploads" json:"uploads"`
	Processed         *Asset      `gorm:"serializer:json" bson:"processed,omitempty" json:"processed,omitempty"`
	CreatedAt         time.Time   `gorm:"index" bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time   `bson:"updatedAt" json:"updatedAt"`
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool { return o.UserID == userID }

// OrderWithOwner is an order with its owner's name and email joined in.
type OrderWithOwner struct {
	Order
	Owner Owner `json:"owner"`
}
