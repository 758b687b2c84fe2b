package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo implements Gateway on a MongoDB database.
type Mongo struct {
	db  *mongo.Database
	log zerolog.Logger
}

// OpenMongo connects to uri and verifies the connection.
func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewMongo(db *mongo.Database, log zerolog.Logger) *Mongo {
	return &Mongo{db: db, log: log.With().Str("component", "docstore").Logger()}
}

func (m *Mongo) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) Result {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if limit := opts.effectiveLimit(); limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := m.db.Collection(collection).Find(ctx, nonNilFilter(filter), findOpts)
	if err != nil {
		return m.failure("find", collection, err)
	}
	docs := make([]bson.M, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return m.failure("find decode", collection, err)
	}

	res := okResult()
	res.Results = docs
	res.Number = int64(len(docs))
	return res
}

func (m *Mongo) Save(ctx context.Context, collection string, doc bson.M) Result {
	if doc == nil {
		return InvalidArguments()
	}
	id, ok := doc["_id"]
	if !ok || id == nil || id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}

	_, err := m.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return m.failure("save", collection, err)
	}
	res := okResult()
	res.ID = id
	return res
}

func (m *Mongo) Update(ctx context.Context, collection string, filter, update bson.M, multi bool) Result {
	if len(update) == 0 {
		return InvalidArguments()
	}
	coll := m.db.Collection(collection)

	var (
		out *mongo.UpdateResult
		err error
	)
	if multi {
		out, err = coll.UpdateMany(ctx, nonNilFilter(filter), update)
	} else {
		out, err = coll.UpdateOne(ctx, nonNilFilter(filter), update)
	}
	if err != nil {
		return m.failure("update", collection, err)
	}
	res := okResult()
	res.Number = out.ModifiedCount
	return res
}

func (m *Mongo) Delete(ctx context.Context, collection string, filter bson.M) Result {
	out, err := m.db.Collection(collection).DeleteMany(ctx, nonNilFilter(filter))
	if err != nil {
		return m.failure("delete", collection, err)
	}
	res := okResult()
	res.Number = out.DeletedCount
	return res
}

func (m *Mongo) Distinct(ctx context.Context, collection, field string, filter bson.M) Result {
	if field == "" {
		return InvalidArguments()
	}
	out := m.db.Collection(collection).Distinct(ctx, field, nonNilFilter(filter))
	if err := out.Err(); err != nil {
		return m.failure("distinct", collection, err)
	}
	values := make([]any, 0)
	if err := out.Decode(&values); err != nil {
		return m.failure("distinct decode", collection, err)
	}
	res := okResult()
	res.Values = values
	return res
}

func (m *Mongo) failure(op, collection string, err error) Result {
	m.log.Error().Err(err).Str("collection", collection).Str("op", op).Msg("document store call failed")
	return ErrorResult(fmt.Sprintf("%s %s: %v", op, collection, err))
}

func nonNilFilter(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
