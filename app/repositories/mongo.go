package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shashiranjanraj/vidorder/app/models"
)

const (
	usersCollection  = "users"
	ordersCollection = "orders"
)

// EnsureMongoIndexes creates the unique and lookup indexes both stores rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	if _, err := db.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "paymentIntentId", Value: 1}}, Options: options.Index().SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("orders indexes: %w", err)
	}
	return nil
}

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"password": 0}))
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *MongoUserRepository) Count(ctx context.Context, since time.Time) (int64, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": since}
	}
	return r.col.CountDocuments(ctx, filter)
}

type MongoOrderRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection(ordersCollection), now: time.Now}
}

var notFailedDraft = bson.M{"paymentStatus": bson.M{"$ne": models.PaymentGatewayFailed}}

func (r *MongoOrderRepository) Create(ctx context.Context, o *models.Order) error {
	normalizeOrder(o)
	if _, err := r.col.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MongoOrderRepository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"orderId": code})
}

func (r *MongoOrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"paymentIntentId": intentID})
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var o models.Order
	if err := r.col.FindOne(ctx, filter).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *MongoOrderRepository) ListByOwner(ctx context.Context, userID string) ([]models.Order, error) {
	return r.find(ctx, bson.M{"user": userID}, 0)
}

func (r *MongoOrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	return r.find(ctx, bson.M{}, 0)
}

func (r *MongoOrderRepository) ListPending(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	return r.find(ctx, bson.M{
		"status":        models.StatusPending,
		"createdAt":     bson.M{"$lt": olderThan},
		"paymentStatus": bson.M{"$ne": models.PaymentGatewayFailed},
		"$or": bson.A{
			bson.M{"paymentIntentId": bson.M{"$nin": bson.A{"", nil}}},
			bson.M{"checkoutSessionId": bson.M{"$nin": bson.A{"", nil}}},
		},
	}, 0)
}

func (r *MongoOrderRepository) Recent(ctx context.Context, limit int) ([]models.Order, error) {
	return r.find(ctx, notFailedDraft, limit)
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M, limit int) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "orderId", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0)
	if err := cur.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *MongoOrderRepository) AppendUploads(ctx context.Context, code string, assets []models.Asset) (*models.Order, error) {
	update := bson.M{
		"$push": bson.M{"uploads": bson.M{"$each": assets}},
		"$set":  bson.M{"updatedAt": r.now()},
	}
	return r.findAndUpdate(ctx, bson.M{"orderId": code}, update)
}

func (r *MongoOrderRepository) Update(ctx context.Context, code string, patch OrderPatch, expect ...models.OrderStatus) (*models.Order, error) {
	set := bson.M{"updatedAt": r.now()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.PaymentStatus != nil {
		set["paymentStatus"] = *patch.PaymentStatus
	}
	if patch.PaymentIntentID != nil {
		set["paymentIntentId"] = *patch.PaymentIntentID
	}
	if patch.CheckoutSessionID != nil {
		set["checkoutSessionId"] = *patch.CheckoutSessionID
	}
	if patch.Processed != nil {
		set["processed"] = *patch.Processed
	}

	filter := bson.M{"orderId": code}
	if len(expect) > 0 {
		filter["status"] = bson.M{"$in": expect}
	}

	o, err := r.findAndUpdate(ctx, filter, bson.M{"$set": set})
	if errors.Is(err, ErrNotFound) && len(expect) > 0 {
		if _, findErr := r.FindByCode(ctx, code); findErr == nil {
			return nil, ErrStale
		}
	}
	return o, err
}

func (r *MongoOrderRepository) findAndUpdate(ctx context.Context, filter, update bson.M) (*models.Order, error) {
	var o models.Order
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *MongoOrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: notFailedDraft}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.OrderStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	out := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *MongoOrderRepository) Revenue(ctx context.Context, since time.Time) (Revenue, error) {
	match := bson.M{"paymentStatus": bson.M{"$ne": models.PaymentGatewayFailed}}
	if !since.IsZero() {
		match["createdAt"] = bson.M{"$gte": since}
	}

	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"sum":   bson.M{"$sum": "$totalAmount"},
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return Revenue{}, err
	}

	var rows []struct {
		Sum   float64 `bson:"sum"`
		Count int64   `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Revenue{}, err
	}
	if len(rows) == 0 {
		return Revenue{}, nil
	}
	return Revenue{Sum: rows[0].Sum, Count: rows[0].Count}, nil
}
