package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// bulkWriter is the subset of *mongo.Collection used by Store.
type bulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// document is the stored form of a record: the output row plus the run that
// last wrote it.
type document struct {
	domain.Row `bson:",inline"`
	RunID      string `bson:"run_id"`
}

// Store upserts output rows into a MongoDB collection keyed by record ID, so
// re-processing a bulletin replaces rows instead of duplicating them. It
// implements pipeline.RecordSink.
type Store struct {
	client     *mongo.Client
	collection bulkWriter
	logger     *slog.Logger
}

// Connect dials uri, verifies the connection, and ensures the collection's
// query indexes exist.
func Connect(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cli, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(connectCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := cli.Database(database).Collection(collection)
	if err := ensureIndexes(connectCtx, coll); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo store connected", "database", database, "collection", collection)
	return &Store{client: cli, collection: coll, logger: logger}, nil
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "region", Value: 1}}},
		{Keys: bson.D{{Key: "malformed", Value: 1}}},
		{Keys: bson.D{{Key: "in_force", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "mongo" }

// Store upserts every record in one unordered bulk write.
func (s *Store) Store(ctx context.Context, runID string, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	res, err := s.collection.BulkWrite(ctx, upsertModels(runID, records), options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	s.logger.Debug("records upserted",
		"run_id", runID,
		"inserted", res.UpsertedCount,
		"replaced", res.ModifiedCount,
	)
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func upsertModels(runID string, records []domain.OutputRecord) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc := document{Row: domain.ToRow(rec), RunID: runID}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.ID}}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return models
}
