package database

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// collOrders is the collection holding one document per completed
	// checkout.
	collOrders = "orders"
)

// schema returns a mapping between a collection name and the indexes that
// must exist for that collection.
//
// We return a map literal instead of using a global variable because the global
// variable causes data races when multiple tests are creating their own
// databases and are iterating over the schema at the same time.
//
// The session_id index is not unique. Webhook retries are not deduplicated.
func schema() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		collOrders: {
			{
				Keys:    bson.D{{Key: "session_id", Value: 1}},
				Options: options.Index().SetName("session_id"),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email"),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: 1}},
				Options: options.Index().SetName("created_at"),
			},
		},
	}
}
