package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cartwheel/storefront/cart-service/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// cartTTL expires carts nobody touched for 90 days.
const cartTTL = 90 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"owner": owner}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

// AddItem merges quantity into the owner's line for productID, capped at
// maxQuantity, or appends a new line. Both paths are single-document
// updates, so concurrent adds neither lose an increment nor add a second
// line for the same product.
func (m *MongoRepository) AddItem(ctx context.Context, owner string, productID int64, quantity, maxQuantity int) (*domain.CartItem, error) {
	for range addItemAttempts {
		item, err := m.mergeItem(ctx, owner, productID, quantity, maxQuantity)
		if !errors.Is(err, errNoLine) {
			return item, err
		}

		item, err = m.pushItem(ctx, owner, productID, min(quantity, maxQuantity))
		if !errors.Is(err, errLinePresent) {
			return item, err
		}
		// a concurrent add created the line first; merge into it
	}
	return nil, fmt.Errorf("failed to add item: cart %s kept changing", owner)
}

const addItemAttempts = 3

var (
	errNoLine      = errors.New("no line for product")
	errLinePresent = errors.New("line for product already present")
)

func (m *MongoRepository) mergeItem(ctx context.Context, owner string, productID int64, quantity, maxQuantity int) (*domain.CartItem, error) {
	filter := bson.M{"owner": owner, "items.product_id": productID}
	merged := bson.M{"$min": bson.A{bson.M{"$add": bson.A{"$$it.quantity", quantity}}, maxQuantity}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updated_at": time.Now().UTC(),
			"items": bson.M{"$map": bson.M{
				"input": "$items",
				"as":    "it",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$it.product_id", productID}},
					bson.M{"$mergeObjects": bson.A{"$$it", bson.M{"quantity": merged}}},
					"$$it",
				}},
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNoLine
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update existing item: %w", err)
	}

	for _, it := range cart.Items {
		if it.ProductID == productID {
			return &it, nil
		}
	}
	return nil, errNoLine
}

// pushItem appends a line unless the cart already has one for productID.
// A missing cart is created; the unique owner index turns a lost race into
// errLinePresent.
func (m *MongoRepository) pushItem(ctx context.Context, owner string, productID int64, quantity int) (*domain.CartItem, error) {
	now := time.Now().UTC()
	item := domain.CartItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   now,
	}
	filter := bson.M{"owner": owner, "items.product_id": bson.M{"$ne": productID}}
	update := bson.M{
		"$push":        bson.M{"items": item},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil, errLinePresent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add new item: %w", err)
	}
	return &item, nil
}

func (m *MongoRepository) UpdateItemQuantity(ctx context.Context, owner, itemID string, quantity int) (*domain.CartItem, error) {
	filter := bson.M{
		"owner":         owner,
		"items.item_id": itemID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now().UTC(),
		},
	}

	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"elem.item_id": itemID},
			},
		}).
		SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item quantity: %w", err)
	}

	item, ok := cart.FindItem(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	return &item, nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, owner, itemID string) error {
	filter := bson.M{
		"owner":         owner,
		"items.item_id": itemID,
	}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"item_id": itemID},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, owner string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner": owner})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// PruneItems removes the owner's items added at or before cutoff, and the
// cart itself once nothing is left in it. Later items are kept.
func (m *MongoRepository) PruneItems(ctx context.Context, owner string, cutoff time.Time) error {
	filter := bson.M{"owner": owner, "items.added_at": bson.M{"$lte": cutoff}}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"added_at": bson.M{"$lte": cutoff}}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to prune cart: %w", err)
	}

	empty := bson.M{"owner": owner, "items": bson.M{"$size": 0}}
	if _, err := m.collection.DeleteOne(ctx, empty); err != nil {
		return fmt.Errorf("failed to delete emptied cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
