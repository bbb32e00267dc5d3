package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/formify/core"
)

// Collections
const (
	usersCollection        = "users"
	groupsCollection       = "groups"
	submissionsCollection  = "submissions"
	studentMarksCollection = "student_marks"
	groupMarksCollection   = "group_marks"
	overrideLogsCollection = "override_logs"
	locksCollection        = "locks"
)

// Open connects to the replica set described by conf. Transactions need a replica set.
func Open(ctx context.Context, conf core.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, errors.Wrap(err, "pinging mongo")
	}
	return client, client.Database(conf.Database), nil
}

// EnsureIndexes creates the unique indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "roll_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		groupsCollection: {
			{Keys: bson.D{{Key: "group_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "member_roll_numbers", Value: 1}}},
			{Keys: bson.D{{Key: "expected_partner_roll_numbers", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_supervisor", Value: 1}}},
		},
		submissionsCollection: {
			{
				Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "student_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"group_id": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "student_id", Value: 1}}},
		},
		studentMarksCollection: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "student_id", Value: 1}, {Key: "teacher_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		groupMarksCollection: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "teacher_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		overrideLogsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// Transactor runs units of work in mongo transactions.
// Every transaction on a key first bumps the key's lock document, so concurrent ones
// hit a write conflict and are retried one after the other.
type Transactor struct {
	client *mongo.Client
	db     *mongo.Database
}

var (
	// interface compliance checks
	_ core.Transactor = (*Transactor)(nil)
	_ core.Pinger     = (*Transactor)(nil)
)

func NewTransactor(client *mongo.Client, db *mongo.Database) *Transactor {
	return &Transactor{client: client, db: db}
}

func (t *Transactor) Ping(ctx context.Context) error {
	return t.client.Ping(ctx, nil)
}

// RunInTx joins the session already carried by ctx, if any. fn may run more than once.
func (t *Transactor) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := t.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := t.db.Collection(locksCollection).UpdateOne(sc,
			bson.M{"_id": key},
			bson.M{"$inc": bson.M{"version": 1}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "locking %q", key)
		}
		return nil, fn(sc)
	})
	return err
}

// decodeAll drains the cursor into a slice of documents.
func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]T, error) {
	defer cur.Close(ctx)
	docs := make([]T, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding documents")
	}
	return docs, nil
}
