package index

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/retry"
)

// MongoCollection is the subset of *mongo.Collection used by Mongo.
type MongoCollection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Mongo stores one document per sample, keyed by sample id.
type Mongo struct {
	coll       MongoCollection
	disconnect func(context.Context) error
	policy     retry.Policy

	mu     sync.Mutex
	closed bool
}

// NewMongo wraps an existing collection. disconnect may be nil.
func NewMongo(coll MongoCollection, disconnect func(context.Context) error, policy retry.Policy) *Mongo {
	if policy.Attempts == 0 {
		policy = retry.Default()
	}
	return &Mongo{coll: coll, disconnect: disconnect, policy: policy}
}

// DialMongo connects to uri and uses database.collection.
func DialMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "mongo connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "mongo ping")
	}
	coll := client.Database(database).Collection(collection)
	return NewMongo(coll, client.Disconnect, retry.Default()), nil
}

// Add implements Index.
func (m *Mongo) Add(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.TargetLocation == nil {
		e.TargetLocation = []float64{}
	}
	err := m.policy.Do(ctx, func() error {
		_, err := m.coll.InsertOne(ctx, e)
		switch {
		case err == nil:
			return nil
		case mongo.IsDuplicateKeyError(err):
			// An earlier attempt landed before its reply was lost.
			return nil
		case mongo.IsTimeout(err), mongo.IsNetworkError(err):
			return retry.Mark(err)
		}
		return err
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "mongo insert %s", e.ID)
	}
	return nil
}

// Close implements Index.
func (m *Mongo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.disconnect == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.disconnect(ctx)
}

var _ Index = (*Mongo)(nil)
