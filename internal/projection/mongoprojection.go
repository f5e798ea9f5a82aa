package projection

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nimbusline/platform-core/internal/eventlog"
)

// MongoApplyFunc is ApplyFunc's Mongo-backed counterpart: projections
// that serve full-text/aggregate queries (the search-service example,
// SPEC_FULL §11) are more naturally a document store than a relational
// table. The Consumer Runtime's transactional dedup guarantee is still
// Postgres-backed (spec §4.5 requires a local transaction for the dedup
// check); MongoStore only owns the projected document itself.
type MongoApplyFunc func(ctx context.Context, coll *mongo.Collection, rec eventlog.Record) error

// MongoDefinition is a Definition whose apply writes to a Mongo
// collection instead of a SQL table.
type MongoDefinition struct {
	Name       string
	Service    string
	Topics     []string
	Collection string
	Apply      MongoApplyFunc
}

// MongoStore adapts a MongoDefinition into a function the Consumer
// Runtime can use as its Handler.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore builds a MongoStore over an already-connected database
// handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Handler adapts def into a consumer.Handler-shaped function.
func (s *MongoStore) Handler(def MongoDefinition) func(ctx context.Context, rec eventlog.Record) error {
	coll := s.db.Collection(def.Collection)

	return func(ctx context.Context, rec eventlog.Record) error {
		return def.Apply(ctx, coll, rec)
	}
}

// UpsertByAggregateID is a convenience MongoApplyFunc for the common
// case: one document per aggregate_id, upserted on every event by a
// $set of fields plus last_applied_event_id and updated_at; other fields
// already on the document are left as they are.
func UpsertByAggregateID(fields bson.M) MongoApplyFunc {
	return func(ctx context.Context, coll *mongo.Collection, rec eventlog.Record) error {
		update := bson.M{"$set": mergeFields(fields, bson.M{
			"last_applied_event_id": rec.EventID,
			"updated_at":            time.Now().UTC(),
		})}

		_, err := coll.UpdateOne(ctx,
			bson.M{"_id": rec.AggregateID},
			update,
			options.Update().SetUpsert(true),
		)

		return err
	}
}

func mergeFields(base, extra bson.M) bson.M {
	out := make(bson.M, len(base)+len(extra))

	for k, v := range base {
		out[k] = v
	}

	for k, v := range extra {
		out[k] = v
	}

	return out
}

// TruncateCollection drops every document in coll, the Mongo
// equivalent of Rebuilder.Truncate's SQL TRUNCATE for a Mongo-backed
// projection.
func TruncateCollection(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.DeleteMany(ctx, bson.M{})
	return err
}
