package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicdata/registry-ingest/pkg/logging"
)

// reasonSampleSize caps how many per-document errors a PartialBulkFailure
// carries.
const reasonSampleSize = 3

// MongoStore implements SearchStore on MongoDB. Documents live one
// collection per source with the document key as _id; search uses a
// wildcard text index.
type MongoStore struct {
	db     *mongo.Database
	logger zerolog.Logger
}

// NewMongoStore wraps an already connected client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	if client == nil {
		panic("store: mongo client is required")
	}
	return &MongoStore{
		db:     client.Database(database),
		logger: logging.NewLogger("store"),
	}
}

// BulkUpsert implements SearchStore. The batch runs unordered, so one bad
// document does not block the rest.
func (s *MongoStore) BulkUpsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		var body bson.D
		if err := bson.UnmarshalExtJSON(doc.Body, false, &body); err != nil {
			return fmt.Errorf("document %s is not valid JSON: %w", doc.Key, err)
		}
		body = append(bson.D{{Key: "_id", Value: doc.Key}}, body...)

		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.Key}).
			SetReplacement(body).
			SetUpsert(true))
	}

	start := time.Now()
	_, err := s.db.Collection(collection).BulkWrite(ctx, models,
		options.BulkWrite().SetOrdered(false))
	bulkDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())

	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 && len(bwe.WriteErrors) < len(docs) {
			partial := &PartialBulkFailure{
				Collection: collection,
				Succeeded:  len(docs) - len(bwe.WriteErrors),
				Failed:     len(bwe.WriteErrors),
			}
			for i, we := range bwe.WriteErrors {
				if we.Index >= 0 && we.Index < len(docs) {
					partial.FailedKeys = append(partial.FailedKeys, docs[we.Index].Key)
				}
				if i < reasonSampleSize {
					partial.Reasons = append(partial.Reasons, we.Message)
				}
			}
			bulkDocs.WithLabelValues(collection, "ok").Add(float64(partial.Succeeded))
			bulkDocs.WithLabelValues(collection, "error").Add(float64(partial.Failed))
			return partial
		}
		bulkDocs.WithLabelValues(collection, "error").Add(float64(len(docs)))
		return fmt.Errorf("bulk write to %s: %w", collection, err)
	}

	bulkDocs.WithLabelValues(collection, "ok").Add(float64(len(docs)))
	s.logger.Debug().
		Str("collection", collection).
		Int("documents", len(docs)).
		Dur("duration", time.Since(start)).
		Msg("Bulk write complete")
	return nil
}

// Search implements SearchStore.
func (s *MongoStore) Search(ctx context.Context, collection string, q Query) ([]Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	scoreField := bson.M{"$meta": "textScore"}
	cursor, err := s.db.Collection(collection).Find(ctx,
		bson.M{"$text": bson.M{"$search": q.Text}},
		options.Find().
			SetProjection(bson.M{"score": scoreField}).
			SetSort(bson.M{"score": scoreField}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var hits []Hit
	for cursor.Next(ctx) {
		var row struct {
			ID    string  `bson:"_id"`
			Score float64 `bson:"score"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		source, err := bson.MarshalExtJSON(cursor.Current, false, false)
		if err != nil {
			return nil, fmt.Errorf("encode hit %s: %w", row.ID, err)
		}
		hits = append(hits, Hit{Key: row.ID, Score: row.Score, Source: source})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	return hits, nil
}

// EnsureCollection implements SearchStore. The wildcard text index covers
// every string field, so all sources share one schema-free setup.
func (s *MongoStore) EnsureCollection(ctx context.Context, collection string) error {
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "$**", Value: "text"}},
		Options: options.Index().SetName("text_all"),
	})
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	s.logger.Info().Str("collection", collection).Msg("Collection ready")
	return nil
}

// DropCollection implements SearchStore.
func (s *MongoStore) DropCollection(ctx context.Context, collection string) error {
	if err := s.db.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	s.logger.Info().Str("collection", collection).Msg("Collection dropped")
	return nil
}
