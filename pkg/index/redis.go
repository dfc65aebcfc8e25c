package index

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/retry"
)

// RedisClient is the subset of *redis.Client used by Redis.
type RedisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// RedisOptions configures a Redis index.
type RedisOptions struct {
	// Stream receives one XADD per sample.
	Stream string
	// MaxLen trims the stream approximately; 0 keeps everything.
	MaxLen int64
	// Prefix namespaces the positive/negative counters.
	Prefix string
	Retry  retry.Policy
}

// Redis appends entries to a Redis stream and keeps positive and negative
// totals in two counters (<prefix>:positive, <prefix>:negative).
type Redis struct {
	client RedisClient
	opts   RedisOptions

	mu     sync.Mutex
	closed bool
}

// NewRedis wraps an existing client.
func NewRedis(client RedisClient, opts RedisOptions) *Redis {
	if opts.Stream == "" {
		opts.Stream = "domrand:samples"
	}
	if opts.Prefix == "" {
		opts.Prefix = opts.Stream
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default()
	}
	return &Redis{client: client, opts: opts}
}

// DialRedis connects to the server at url (redis://host:port/db) and
// checks it with PING.
func DialRedis(ctx context.Context, url string, opts RedisOptions) (*Redis, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "redis url")
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "redis ping %s", o.Addr)
	}
	return NewRedis(client, opts), nil
}

// Add implements Index.
func (r *Redis) Add(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if e.TargetLocation == nil {
		e.TargetLocation = []float64{}
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode index entry")
	}
	positive := "0"
	if e.Positive() {
		positive = "1"
	}
	args := &redis.XAddArgs{
		Stream: r.opts.Stream,
		MaxLen: r.opts.MaxLen,
		Approx: r.opts.MaxLen > 0,
		Values: map[string]any{
			"id":       e.ID,
			"run":      e.Run,
			"step":     e.StepNum,
			"positive": positive,
			"entry":    string(doc),
		},
	}
	err = r.opts.Retry.Do(ctx, func() error {
		return classifyRedis(r.client.XAdd(ctx, args).Err())
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "redis xadd %s", r.opts.Stream)
	}

	counter := r.opts.Prefix + ":negative"
	if e.Positive() {
		counter = r.opts.Prefix + ":positive"
	}
	err = r.opts.Retry.Do(ctx, func() error {
		return classifyRedis(r.client.Incr(ctx, counter).Err())
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "redis incr %s", counter)
	}
	return nil
}

// Close implements Index.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// classifyRedis marks connection-level failures as retryable. Server
// replies (WRONGTYPE, OOM, ...) are returned as-is.
func classifyRedis(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, io.EOF) {
		return retry.Mark(err)
	}
	return err
}

var _ Index = (*Redis)(nil)
