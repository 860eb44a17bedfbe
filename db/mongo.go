package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fall-detection/models"
	"fall-detection/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const runsCollection = "runs"

// MongoClient stores runs as documents with their fall events embedded.
type MongoClient struct {
	client   *mongo.Client
	database string
	timeout  time.Duration
}

func NewMongoClient(uri, database string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	mc := &MongoClient{client: client, database: database, timeout: 10 * time.Second}

	index := mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}
	if _, err := mc.runs().Indexes().CreateOne(ctx, index); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating runs index: %w", err)
	}

	return mc, nil
}

func (db *MongoClient) runs() *mongo.Collection {
	return db.client.Database(db.database).Collection(runsCollection)
}

func (db *MongoClient) Close() error {
	if db.client != nil {
		return db.client.Disconnect(context.Background())
	}
	return nil
}

func (db *MongoClient) StoreRun(run *models.Run) error {
	if run.ID == "" {
		run.ID = utils.GenerateRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()

	if _, err := db.runs().InsertOne(ctx, run); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("run %s already exists: %w", run.ID, err)
		}
		return fmt.Errorf("error inserting run: %w", err)
	}
	return nil
}

func (db *MongoClient) GetRun(id string) (*models.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()

	var run models.Run
	err := db.runs().FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to retrieve run: %w", err)
	}
	return &run, nil
}

func (db *MongoClient) ListRuns(limit int) ([]models.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.runs().Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []models.Run
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("error decoding runs: %w", err)
	}
	return runs, nil
}

func (db *MongoClient) DeleteRun(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()

	res, err := db.runs().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
