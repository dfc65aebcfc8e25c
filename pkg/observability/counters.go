package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matzehuels/domrand/pkg/errors"
)

// Counters aggregates collection progress. It implements every hook
// interface in this package and is safe for concurrent use.
type Counters struct {
	started   time.Time
	episodes  atomic.Int64
	recorded  atomic.Int64
	positive  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	indexErrs atomic.Int64
	simCalls  atomic.Int64
	simErrs   atomic.Int64
	simNanos  atomic.Int64

	mu      sync.Mutex
	lastErr string
	lastID  string
}

// NewCounters returns zeroed counters started now.
func NewCounters() *Counters {
	return &Counters{started: time.Now()}
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Episodes    int64         `json:"episodes"`
	Recorded    int64         `json:"recorded"`
	Positive    int64         `json:"positive"`
	Negative    int64         `json:"negative"`
	Skipped     int64         `json:"skipped"`
	Failed      int64         `json:"failed"`
	Bytes       int64         `json:"bytes"`
	IndexErrors int64         `json:"index_errors"`
	SimCalls    int64         `json:"sim_calls"`
	SimErrors   int64         `json:"sim_errors"`
	SimTime     time.Duration `json:"sim_time_ns"`
	Uptime      time.Duration `json:"uptime_ns"`
	LastID      string        `json:"last_id,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	lastErr, lastID := c.lastErr, c.lastID
	c.mu.Unlock()

	rec, pos := c.recorded.Load(), c.positive.Load()
	return Snapshot{
		Episodes:    c.episodes.Load(),
		Recorded:    rec,
		Positive:    pos,
		Negative:    rec - pos,
		Skipped:     c.skipped.Load(),
		Failed:      c.failed.Load(),
		Bytes:       c.bytes.Load(),
		IndexErrors: c.indexErrs.Load(),
		SimCalls:    c.simCalls.Load(),
		SimErrors:   c.simErrs.Load(),
		SimTime:     time.Duration(c.simNanos.Load()),
		Uptime:      time.Since(c.started),
		LastID:      lastID,
		LastError:   lastErr,
	}
}

// OnEpisodeStart implements EpisodeHooks.
func (c *Counters) OnEpisodeStart(context.Context, int) {
	c.episodes.Add(1)
}

// OnEpisodeComplete implements EpisodeHooks. Recoverable errors count as
// skipped episodes, anything else as failed.
func (c *Counters) OnEpisodeComplete(_ context.Context, _ int, _ time.Duration, err error) {
	if err == nil {
		return
	}
	if errors.Recoverable(err) {
		c.skipped.Add(1)
	} else {
		c.failed.Add(1)
	}
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// OnSampleWritten implements RecorderHooks.
func (c *Counters) OnSampleWritten(_ context.Context, id string, positive bool, bytes int) {
	c.recorded.Add(1)
	if positive {
		c.positive.Add(1)
	}
	c.bytes.Add(int64(bytes))
	c.mu.Lock()
	c.lastID = id
	c.mu.Unlock()
}

// OnIndexError implements RecorderHooks.
func (c *Counters) OnIndexError(context.Context, string, error) {
	c.indexErrs.Add(1)
}

// OnCall implements SimHooks.
func (c *Counters) OnCall(_ context.Context, _ string, d time.Duration, err error) {
	c.simCalls.Add(1)
	c.simNanos.Add(int64(d))
	if err != nil {
		c.simErrs.Add(1)
	}
}

var (
	_ EpisodeHooks  = (*Counters)(nil)
	_ RecorderHooks = (*Counters)(nil)
	_ SimHooks      = (*Counters)(nil)
)
