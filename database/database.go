package database

import (
	"context"

	"github.com/sirupsen/logrus"
	"gitlab.com/NebulousLabs/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	// DefaultDBName is the name of the database used when none is
	// configured.
	DefaultDBName = "checkout"
)

type (
	// Health contains health information about the database. If everything
	// is ok all fields are 'nil'. Otherwise, the corresponding fields will
	// contain an error.
	Health struct {
		Database error
	}

	// DB is a MongoDB backed record store.
	DB struct {
		staticDB     *mongo.Database
		staticCtx    context.Context
		staticLogger *logrus.Entry
	}
)

// New connects to a MongoDB and makes sure the order collection has its
// indexes.
func New(ctx context.Context, log *logrus.Entry, uri, username, password, dbName string) (*DB, error) {
	client, err := connect(ctx, uri, username, password)
	if err != nil {
		return nil, err
	}
	db := &DB{
		staticDB:     client.Database(dbName),
		staticCtx:    ctx,
		staticLogger: log,
	}
	if err := db.ensureSchema(ctx); err != nil {
		return nil, errors.Compose(err, db.Close())
	}
	return db, nil
}

// connect creates a new database object that is connected to a mongodb.
func connect(ctx context.Context, uri, username, password string) (*mongo.Client, error) {
	// Connect to database.
	creds := options.Credential{
		Username: username,
		Password: password,
	}
	opts := options.Client().
		ApplyURI(uri).
		SetAuth(creds).
		SetReadConcern(readconcern.Majority()).
		SetReadPreference(readpref.Nearest()).
		SetWriteConcern(writeconcern.New(writeconcern.WMajority()))

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ensureSchema creates the indexes returned by schema.
func (db *DB) ensureSchema(ctx context.Context) error {
	for coll, models := range schema() {
		_, err := db.staticDB.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return errors.AddContext(err, "failed to create indexes for "+coll)
		}
	}
	return nil
}

// Close gracefully shuts down the DB.
func (db *DB) Close() error {
	return db.staticDB.Client().Disconnect(context.Background())
}

// Health returns some health information about the database.
func (db *DB) Health() Health {
	return Health{
		Database: db.staticDB.Client().Ping(db.staticCtx, nil),
	}
}
