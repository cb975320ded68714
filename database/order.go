package database

import (
	"context"
	"time"

	"gitlab.com/NebulousLabs/errors"
)

const (
	// StoreAirtable is the name of the Airtable record store.
	StoreAirtable = "airtable"

	// StoreMongoDB is the name of the MongoDB record store.
	StoreMongoDB = "mongodb"
)

type (
	// OrderRecord is a single order as written to a record store. It is
	// created once per completed checkout and never modified afterwards.
	OrderRecord struct {
		Name      string  `bson:"name"`
		Email     string  `bson:"email"`
		Amount    float64 `bson:"amount"`
		Status    string  `bson:"status"`
		SessionID string  `bson:"session_id"`
	}

	// orderDocument is the MongoDB representation of an OrderRecord.
	orderDocument struct {
		OrderRecord `bson:",inline"`
		CreatedAt   time.Time `bson:"created_at"`
	}
)

// Fields returns the record's columns keyed by their column name in the
// spreadsheet.
func (o OrderRecord) Fields() map[string]interface{} {
	return map[string]interface{}{
		"Name":      o.Name,
		"Email":     o.Email,
		"Amount":    o.Amount,
		"Status":    o.Status,
		"SessionID": o.SessionID,
	}
}

// CreateOrder inserts a new order document. Every call inserts a new
// document, even for a SessionID that was seen before.
func (db *DB) CreateOrder(ctx context.Context, o OrderRecord) error {
	doc := orderDocument{
		OrderRecord: o,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.staticDB.Collection(collOrders).InsertOne(ctx, doc)
	if err != nil {
		return errors.AddContext(err, "failed to insert order")
	}
	db.staticLogger.WithField("session", o.SessionID).Debug("Order inserted")
	return nil
}

// Name returns the name of the store.
func (db *DB) Name() string {
	return StoreMongoDB
}
