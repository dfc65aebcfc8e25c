package index

import (
	"context"

	"github.com/matzehuels/domrand/pkg/errors"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	RedisURL    string
	RedisStream string
	RedisMaxLen int64

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// Open creates the configured backend. dir is the run directory used by the
// file backend.
func Open(ctx context.Context, o Options, dir string) (Index, error) {
	switch o.Backend {
	case "", BackendNone:
		return Null{}, nil
	case BackendFile:
		return OpenFile(dir)
	case BackendRedis:
		return DialRedis(ctx, o.RedisURL, RedisOptions{Stream: o.RedisStream, MaxLen: o.RedisMaxLen})
	case BackendMongo:
		return DialMongo(ctx, o.MongoURI, o.MongoDatabase, o.MongoCollection)
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown index backend %q", o.Backend)
}
