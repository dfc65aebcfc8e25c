package episode

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene"
)

// DefaultWarmupSteps lets the scene settle after a restart.
const DefaultWarmupSteps = 5

// CollectorOptions bounds a collection run.
type CollectorOptions struct {
	// WarmupSteps are simulated after every Reset.
	WarmupSteps int
	// MaxEpisodes stops Run after this many episodes; 0 runs until the
	// context ends.
	MaxEpisodes int
	// MaxConsecutiveSkips turns a streak of recoverable failures into a
	// fatal error; 0 disables the check.
	MaxConsecutiveSkips int
	// OnRecord is called after every recorded sample.
	OnRecord func(recorder.Record)
}

// DefaultCollectorOptions returns the collector's defaults.
func DefaultCollectorOptions() CollectorOptions {
	return CollectorOptions{
		WarmupSteps:         DefaultWarmupSteps,
		MaxConsecutiveSkips: 100,
	}
}

// Summary counts the outcome of a collection run.
type Summary struct {
	Episodes int
	Recorded int
	Positive int
	Skipped  int
	Elapsed  time.Duration
}

// Collector drives an Episode in a loop.
type Collector struct {
	sim     *scene.Simulation
	episode *Episode
	opts    CollectorOptions
	logger  *log.Logger
}

// NewCollector creates a Collector.
func NewCollector(sim *scene.Simulation, ep *Episode, opts CollectorOptions, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Collector{sim: sim, episode: ep, opts: opts, logger: logger}
}

// Reset restarts the simulation, steps it WarmupSteps times and zeroes the
// episode counter.
func (c *Collector) Reset(ctx context.Context) error {
	if err := c.sim.Restart(ctx, c.opts.WarmupSteps); err != nil {
		return err
	}
	c.episode.ResetStep()
	c.logger.Debug("simulation reset", "warmup", c.opts.WarmupSteps)
	return nil
}

// Run resets once and collects until ctx ends or MaxEpisodes is reached.
// Cancellation returns the summary so far together with ctx.Err().
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()

	if err := c.Reset(ctx); err != nil {
		return sum, err
	}

	streak := 0
	for c.opts.MaxEpisodes == 0 || sum.Episodes < c.opts.MaxEpisodes {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}

		sum.Episodes++
		rec, err := c.episode.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
			if !errors.Recoverable(err) {
				c.logger.Error("episode failed", "step", c.episode.Step(), "err", err)
				sum.Elapsed = time.Since(start)
				return sum, err
			}
			sum.Skipped++
			streak++
			c.logger.Warn("episode skipped", "step", c.episode.Step(), "reason", errors.GetCode(err), "err", err)
			if c.opts.MaxConsecutiveSkips > 0 && streak >= c.opts.MaxConsecutiveSkips {
				sum.Elapsed = time.Since(start)
				return sum, errors.Wrap(errors.ErrCodeInternal, err, "%d consecutive episodes skipped", streak)
			}
			continue
		}

		streak = 0
		sum.Recorded++
		if rec.Positive() {
			sum.Positive++
		}
		if c.opts.OnRecord != nil {
			c.opts.OnRecord(rec)
		}
		if sum.Recorded%100 == 0 {
			c.logger.Info("collected samples", "recorded", sum.Recorded, "skipped", sum.Skipped)
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}
